package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/fundry/internal/events"
	"github.com/foxzi/fundry/internal/payout"
)

const testAuthorityKey = "withdraw-secret"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Publish(ctx context.Context, ev events.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) kinds() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Kind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestLedger(t *testing.T, sink events.Sink) (*Ledger, *payout.Recorder, *fakeClock) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAuthorityKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	recorder := payout.NewRecorder()

	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), Options{
		Authority:        "pool-authority",
		AuthorityKeyHash: string(hash),
		Sender:           recorder,
		Events:           sink,
		Now:              clock.Now,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })

	return l, recorder, clock
}

func TestCreateCampaign(t *testing.T) {
	l, _, clock := newTestLedger(t, nil)
	ctx := context.Background()

	id, err := l.CreateCampaign(ctx, CreateParams{
		Title:       "Community well",
		Description: "Clean water for the village",
		Recipient:   "recipient-1",
		Goal:        100,
		Duration:    time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	if id != 0 {
		t.Errorf("first campaign id = %d, want 0", id)
	}

	id2, err := l.CreateCampaign(ctx, CreateParams{Title: "Second", Recipient: "recipient-2", Goal: 1, Duration: time.Hour})
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	if id2 != 1 {
		t.Errorf("second campaign id = %d, want 1", id2)
	}

	c, err := l.Campaign(ctx, id)
	if err != nil {
		t.Fatalf("Campaign() error = %v", err)
	}
	if c.Title != "Community well" || c.Recipient != "recipient-1" || c.Goal != 100 {
		t.Errorf("Campaign() = %+v, fields do not match creation params", c)
	}
	if want := clock.Now().Add(time.Hour); !c.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", c.Deadline, want)
	}
	if c.AmountRaised != 0 || c.Ended {
		t.Errorf("new campaign AmountRaised = %d, Ended = %v, want 0 and false", c.AmountRaised, c.Ended)
	}
}

func TestCreateCampaignInvalidGoal(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	ctx := context.Background()

	if _, err := l.CreateCampaign(ctx, CreateParams{Title: "Zero", Recipient: "r", Goal: 0, Duration: time.Hour}); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("CreateCampaign() error = %v, want ErrInvalidGoal", err)
	}

	// No campaign must have been appended.
	all, err := l.Campaigns(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("Campaigns() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("campaign count = %d after rejected create, want 0", len(all))
	}

	// The next id is still dense.
	id, err := l.CreateCampaign(ctx, CreateParams{Title: "First", Recipient: "r", Goal: 1, Duration: time.Hour})
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	if id != 0 {
		t.Errorf("campaign id after rejected create = %d, want 0", id)
	}
}

func TestDonate(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	ctx := context.Background()

	id, err := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "r", Goal: 100, Duration: time.Hour})
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	for _, amount := range []uint64{30, 50, 0, 5} {
		if err := l.Donate(ctx, id, "donor", amount); err != nil {
			t.Fatalf("Donate(%d) error = %v", amount, err)
		}
	}

	c, err := l.Campaign(ctx, id)
	if err != nil {
		t.Fatalf("Campaign() error = %v", err)
	}
	if c.AmountRaised != 85 {
		t.Errorf("AmountRaised = %d, want 85", c.AmountRaised)
	}

	pool, err := l.Pool(ctx)
	if err != nil {
		t.Fatalf("Pool() error = %v", err)
	}
	if pool.Total != 85 || pool.Committed != 85 || pool.Free != 0 {
		t.Errorf("Pool() = %+v, want total=85 committed=85 free=0", pool)
	}
}

func TestDonateUnknownCampaign(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)

	if err := l.Donate(context.Background(), 42, "donor", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Donate() error = %v, want ErrNotFound", err)
	}
}

func TestDonateAfterDeadline(t *testing.T) {
	l, _, clock := newTestLedger(t, nil)
	ctx := context.Background()

	id, _ := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "r", Goal: 100, Duration: time.Hour})
	if err := l.Donate(ctx, id, "donor", 10); err != nil {
		t.Fatalf("Donate() error = %v", err)
	}

	clock.Advance(time.Hour) // exactly at the deadline

	if err := l.Donate(ctx, id, "donor", 10); !errors.Is(err, ErrCampaignExpired) {
		t.Fatalf("Donate() at deadline error = %v, want ErrCampaignExpired", err)
	}

	c, _ := l.Campaign(ctx, id)
	if c.AmountRaised != 10 {
		t.Errorf("AmountRaised = %d after rejected donation, want 10", c.AmountRaised)
	}
}

func TestEndCampaignBeforeDeadline(t *testing.T) {
	l, recorder, _ := newTestLedger(t, nil)
	ctx := context.Background()

	id, _ := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "r", Goal: 100, Duration: time.Hour})

	if err := l.EndCampaign(ctx, id); !errors.Is(err, ErrCampaignStillOngoing) {
		t.Fatalf("EndCampaign() error = %v, want ErrCampaignStillOngoing", err)
	}

	c, _ := l.Campaign(ctx, id)
	if c.Ended {
		t.Error("campaign marked ended after rejected settlement")
	}
	if len(recorder.Sent()) != 0 {
		t.Errorf("payouts sent = %d, want 0", len(recorder.Sent()))
	}
}

func TestEndCampaign(t *testing.T) {
	l, recorder, clock := newTestLedger(t, nil)
	ctx := context.Background()

	id, _ := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "the-recipient", Goal: 100, Duration: time.Hour})
	l.Donate(ctx, id, "alice", 30)
	l.Donate(ctx, id, "bob", 50)

	clock.Advance(2 * time.Hour)

	if err := l.EndCampaign(ctx, id); err != nil {
		t.Fatalf("EndCampaign() error = %v", err)
	}

	sent := recorder.Sent()
	if len(sent) != 1 {
		t.Fatalf("payouts sent = %d, want 1", len(sent))
	}
	if sent[0].To != "the-recipient" || sent[0].Amount != 80 {
		t.Errorf("payout = %+v, want 80 to the-recipient", sent[0])
	}

	c, _ := l.Campaign(ctx, id)
	if !c.Ended {
		t.Error("campaign not marked ended after settlement")
	}
	if c.AmountRaised != 80 {
		t.Errorf("AmountRaised = %d after settlement, want 80", c.AmountRaised)
	}

	pool, _ := l.Pool(ctx)
	if pool.Total != 0 || pool.Committed != 0 {
		t.Errorf("Pool() = %+v after settlement, want empty", pool)
	}

	// Settlement is terminal.
	if err := l.EndCampaign(ctx, id); !errors.Is(err, ErrCampaignAlreadyEnded) {
		t.Fatalf("second EndCampaign() error = %v, want ErrCampaignAlreadyEnded", err)
	}
	if err := l.Donate(ctx, id, "carol", 10); !errors.Is(err, ErrCampaignExpired) && !errors.Is(err, ErrCampaignAlreadyEnded) {
		t.Fatalf("Donate() after settlement error = %v, want expired or already ended", err)
	}
}

func TestEndCampaignTransferFailure(t *testing.T) {
	l, recorder, clock := newTestLedger(t, nil)
	ctx := context.Background()

	id, _ := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "r", Goal: 100, Duration: time.Hour})
	l.Donate(ctx, id, "alice", 80)
	clock.Advance(2 * time.Hour)

	recorder.FailWith(errors.New("recipient rejected funds"))

	err := l.EndCampaign(ctx, id)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("EndCampaign() error = %v, want ErrTransferFailed", err)
	}

	// Everything rolls back, including the ended flag and pool bookkeeping.
	c, _ := l.Campaign(ctx, id)
	if c.Ended {
		t.Error("campaign marked ended although the payout failed")
	}
	if c.AmountRaised != 80 {
		t.Errorf("AmountRaised = %d after failed settlement, want 80", c.AmountRaised)
	}
	pool, _ := l.Pool(ctx)
	if pool.Total != 80 || pool.Committed != 80 {
		t.Errorf("Pool() = %+v after failed settlement, want total=80 committed=80", pool)
	}

	// Settlement can be retried once the payout works again.
	recorder.FailWith(nil)
	if err := l.EndCampaign(ctx, id); err != nil {
		t.Fatalf("retried EndCampaign() error = %v", err)
	}
	if sent := recorder.Sent(); len(sent) != 1 || sent[0].Amount != 80 {
		t.Errorf("payouts after retry = %+v, want one of 80", sent)
	}
}

func TestWithdrawResidual(t *testing.T) {
	l, recorder, _ := newTestLedger(t, nil)
	ctx := context.Background()

	id, _ := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "r", Goal: 100, Duration: time.Hour})
	l.Donate(ctx, id, "alice", 80)
	l.Deposit(ctx, "anonymous", 40)

	// Committed funds are off limits; only the unsolicited 40 is free.
	if err := l.WithdrawResidual(ctx, testAuthorityKey, 50); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("WithdrawResidual(50) error = %v, want ErrInsufficientBalance", err)
	}

	if err := l.WithdrawResidual(ctx, "wrong-key", 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("WithdrawResidual() with bad key error = %v, want ErrUnauthorized", err)
	}

	if err := l.WithdrawResidual(ctx, testAuthorityKey, 40); err != nil {
		t.Fatalf("WithdrawResidual(40) error = %v", err)
	}

	sent := recorder.Sent()
	if len(sent) != 1 || sent[0].To != "pool-authority" || sent[0].Amount != 40 {
		t.Errorf("withdrawal payout = %+v, want 40 to pool-authority", sent)
	}

	pool, _ := l.Pool(ctx)
	if pool.Total != 80 || pool.Committed != 80 || pool.Free != 0 {
		t.Errorf("Pool() = %+v after withdrawal, want total=80 committed=80 free=0", pool)
	}
}

func TestWithdrawResidualNoKeyConfigured(t *testing.T) {
	recorder := payout.NewRecorder()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), Options{
		Authority: "pool-authority",
		Sender:    recorder,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if err := l.WithdrawResidual(context.Background(), "", 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("WithdrawResidual() error = %v, want ErrUnauthorized", err)
	}
}

func TestWithdrawResidualTransferFailure(t *testing.T) {
	l, recorder, _ := newTestLedger(t, nil)
	ctx := context.Background()

	l.Deposit(ctx, "anonymous", 40)
	recorder.FailWith(errors.New("endpoint down"))

	if err := l.WithdrawResidual(ctx, testAuthorityKey, 40); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("WithdrawResidual() error = %v, want ErrTransferFailed", err)
	}

	pool, _ := l.Pool(ctx)
	if pool.Total != 40 {
		t.Errorf("Pool().Total = %d after failed withdrawal, want 40", pool.Total)
	}
}

func TestCampaignsList(t *testing.T) {
	l, _, clock := newTestLedger(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.CreateCampaign(ctx, CreateParams{Title: "c", Recipient: "r", Goal: 1, Duration: time.Hour}); err != nil {
			t.Fatalf("CreateCampaign() error = %v", err)
		}
	}
	clock.Advance(2 * time.Hour)
	if err := l.EndCampaign(ctx, 2); err != nil {
		t.Fatalf("EndCampaign() error = %v", err)
	}

	all, err := l.Campaigns(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("Campaigns() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Campaigns() len = %d, want 5", len(all))
	}
	for i, c := range all {
		if c.ID != uint64(i) {
			t.Errorf("Campaigns()[%d].ID = %d, want creation order", i, c.ID)
		}
	}

	open, err := l.Campaigns(ctx, ListFilter{OnlyOpen: true})
	if err != nil {
		t.Fatalf("Campaigns() error = %v", err)
	}
	if len(open) != 4 {
		t.Errorf("open campaigns = %d, want 4", len(open))
	}

	page, err := l.Campaigns(ctx, ListFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Campaigns() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != 1 || page[1].ID != 2 {
		t.Errorf("paged campaigns = %+v, want ids 1 and 2", page)
	}
}

func TestIDsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	recorder := payout.NewRecorder()
	ctx := context.Background()

	l, err := Open(path, Options{Sender: recorder})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := l.CreateCampaign(ctx, CreateParams{Title: "a", Recipient: "r", Goal: 1, Duration: time.Hour}); err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	l, err = Open(path, Options{Sender: recorder})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer l.Close()

	id, err := l.CreateCampaign(ctx, CreateParams{Title: "b", Recipient: "r", Goal: 1, Duration: time.Hour})
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	if id != 1 {
		t.Errorf("campaign id after reopen = %d, want 1", id)
	}
}

func TestNotifications(t *testing.T) {
	sink := &captureSink{}
	l, _, clock := newTestLedger(t, sink)
	ctx := context.Background()

	id, _ := l.CreateCampaign(ctx, CreateParams{Title: "Well", Recipient: "r", Goal: 100, Duration: time.Hour})
	l.Donate(ctx, id, "alice", 30)
	clock.Advance(2 * time.Hour)
	l.EndCampaign(ctx, id)
	l.Deposit(ctx, "anon", 5)
	l.WithdrawResidual(ctx, testAuthorityKey, 5)

	want := []events.Kind{
		events.KindCampaignCreated,
		events.KindDonationReceived,
		events.KindCampaignEnded,
		events.KindPoolDeposit,
		events.KindPoolWithdrawal,
	}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("event kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if ev := sink.events[1]; ev.CampaignID != id || ev.Actor != "alice" || ev.Amount != 30 {
		t.Errorf("donation event = %+v, want campaign %d, alice, 30", ev, id)
	}
	if ev := sink.events[2]; ev.Amount != 30 || ev.Recipient != "r" {
		t.Errorf("ended event = %+v, want amount 30 to r", ev)
	}
}
