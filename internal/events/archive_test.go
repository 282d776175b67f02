package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(filepath.Join(t.TempDir(), "events.db"), nil)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestPublishAndRecent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	deadline := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	err := a.Publish(ctx, Event{
		Kind:       KindCampaignCreated,
		CampaignID: 0,
		Title:      "well repair",
		Recipient:  "the-recipient",
		Goal:       500,
		Deadline:   deadline,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := a.Publish(ctx, Event{
		Kind:       KindDonationReceived,
		CampaignID: 0,
		Actor:      "alice",
		Amount:     40,
	}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}

	// Newest first.
	if got[0].Kind != KindDonationReceived {
		t.Errorf("expected donation.received first, got %s", got[0].Kind)
	}
	if got[0].Actor != "alice" || got[0].Amount != 40 {
		t.Errorf("unexpected donation event: %+v", got[0])
	}
	if got[0].ID == "" {
		t.Error("expected event ID to be filled in")
	}
	if got[0].OccurredAt.IsZero() {
		t.Error("expected occurred_at to be filled in")
	}

	if got[1].Kind != KindCampaignCreated {
		t.Errorf("expected campaign.created second, got %s", got[1].Kind)
	}
	if got[1].Title != "well repair" || got[1].Goal != 500 {
		t.Errorf("unexpected created event: %+v", got[1])
	}
	if !got[1].Deadline.Equal(deadline) {
		t.Errorf("expected deadline %v, got %v", deadline, got[1].Deadline)
	}
}

func TestRecentLimit(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := a.Publish(ctx, Event{Kind: KindPoolDeposit, Amount: uint64(i + 1)}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	got, err := a.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Amount != 5 {
		t.Errorf("expected newest event first (amount 5), got %d", got[0].Amount)
	}
}

func TestSubscribe(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	ch, cancel := a.Subscribe(4)
	defer cancel()

	if err := a.Publish(ctx, Event{Kind: KindPoolWithdrawal, Amount: 25, Recipient: "authority"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Kind != KindPoolWithdrawal || ev.Amount != 25 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeCancel(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	ch, cancel := a.Subscribe(1)
	cancel()
	// Cancel twice is a no-op.
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}

	// Publishing after cancel must not panic or block.
	if err := a.Publish(ctx, Event{Kind: KindPoolDeposit, Amount: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	_, cancel := a.Subscribe(1)
	defer cancel()

	// Second publish overflows the buffer of 1 and is dropped for the
	// subscriber, but still archived.
	for i := 0; i < 3; i++ {
		if err := a.Publish(ctx, Event{Kind: KindPoolDeposit, Amount: uint64(i)}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	got, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 events archived, got %d", len(got))
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	a, err := Open(path, nil)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	if err := a.Publish(ctx, Event{Kind: KindCampaignEnded, CampaignID: 2, Amount: 90}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	a, err = Open(path, nil)
	if err != nil {
		t.Fatalf("failed to reopen archive: %v", err)
	}
	defer a.Close()

	got, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 1 || got[0].Kind != KindCampaignEnded || got[0].CampaignID != 2 {
		t.Errorf("unexpected events after reopen: %+v", got)
	}
}
