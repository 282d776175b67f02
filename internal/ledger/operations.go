package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/fundry/internal/events"
)

// CreateCampaign appends a new campaign and returns its id. The goal must
// be greater than zero; it is informational and never gates settlement.
func (l *Ledger) CreateCampaign(ctx context.Context, p CreateParams) (uint64, error) {
	if p.Goal == 0 {
		return 0, ErrInvalidGoal
	}

	now := l.now()
	var c Campaign

	err := l.db.Update(func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(bucketCampaigns).NextSequence()
		if err != nil {
			return fmt.Errorf("failed to assign campaign id: %w", err)
		}

		c = Campaign{
			ID:          seq - 1,
			Title:       p.Title,
			Description: p.Description,
			Recipient:   p.Recipient,
			Goal:        p.Goal,
			Deadline:    now.Add(p.Duration),
			CreatedAt:   now,
		}
		return putCampaign(tx, &c)
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("campaign created",
		"id", c.ID,
		"title", c.Title,
		"recipient", c.Recipient,
		"goal", c.Goal,
		"deadline", c.Deadline,
	)

	l.notify(ctx, events.Event{
		Kind:       events.KindCampaignCreated,
		CampaignID: c.ID,
		Title:      c.Title,
		Recipient:  string(c.Recipient),
		Goal:       c.Goal,
		Deadline:   c.Deadline,
		OccurredAt: now,
	})

	return c.ID, nil
}

// Donate adds amount to the campaign's accumulator and to the pool. Zero
// amounts are accepted as no-op increments. Donations are rejected once the
// deadline passes or the campaign has ended.
func (l *Ledger) Donate(ctx context.Context, id uint64, donor Address, amount uint64) error {
	now := l.now()

	err := l.db.Update(func(tx *bolt.Tx) error {
		c, err := getCampaign(tx, id)
		if err != nil {
			return err
		}
		if !now.Before(c.Deadline) {
			return ErrCampaignExpired
		}
		if c.Ended {
			return ErrCampaignAlreadyEnded
		}

		c.AmountRaised += amount
		if err := putCampaign(tx, c); err != nil {
			return err
		}
		if err := poolPut(tx, keyPoolTotal, poolGet(tx, keyPoolTotal)+amount); err != nil {
			return err
		}
		return poolPut(tx, keyPoolCommitted, poolGet(tx, keyPoolCommitted)+amount)
	})
	if err != nil {
		return err
	}

	l.logger.Info("donation accepted", "campaign", id, "donor", donor, "amount", amount)

	l.notify(ctx, events.Event{
		Kind:       events.KindDonationReceived,
		CampaignID: id,
		Actor:      string(donor),
		Amount:     amount,
		OccurredAt: now,
	})

	return nil
}

// EndCampaign settles a campaign: marks it ended, releases its committed
// balance and pays amount_raised to the recipient. Anyone may call it once
// the deadline has passed. If the payout fails the transaction rolls back,
// so the campaign stays open and can be settled again later.
func (l *Ledger) EndCampaign(ctx context.Context, id uint64) error {
	now := l.now()
	var settled Campaign

	err := l.db.Update(func(tx *bolt.Tx) error {
		c, err := getCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Ended {
			return ErrCampaignAlreadyEnded
		}
		if now.Before(c.Deadline) {
			return ErrCampaignStillOngoing
		}

		// The ended flag is persisted before the payout runs; the
		// transaction makes the pair atomic.
		c.Ended = true
		if err := putCampaign(tx, c); err != nil {
			return err
		}
		if err := poolPut(tx, keyPoolTotal, poolGet(tx, keyPoolTotal)-c.AmountRaised); err != nil {
			return err
		}
		if err := poolPut(tx, keyPoolCommitted, poolGet(tx, keyPoolCommitted)-c.AmountRaised); err != nil {
			return err
		}

		reference := fmt.Sprintf("campaign-%d-settlement", c.ID)
		if err := l.sender.Send(ctx, string(c.Recipient), c.AmountRaised, reference); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}

		settled = *c
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("campaign settled",
		"campaign", settled.ID,
		"amount_raised", settled.AmountRaised,
		"recipient", settled.Recipient,
	)

	l.notify(ctx, events.Event{
		Kind:       events.KindCampaignEnded,
		CampaignID: settled.ID,
		Recipient:  string(settled.Recipient),
		Amount:     settled.AmountRaised,
		OccurredAt: now,
	})

	return nil
}

// WithdrawResidual pays amount from the pool's free balance to the
// authority. The caller proves authority by presenting the withdrawal key.
// Committed funds (owed to open campaigns) are never touched.
func (l *Ledger) WithdrawResidual(ctx context.Context, callerKey string, amount uint64) error {
	if l.authorityKeyHash == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(l.authorityKeyHash), []byte(callerKey)); err != nil {
		return ErrUnauthorized
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		total := poolGet(tx, keyPoolTotal)
		committed := poolGet(tx, keyPoolCommitted)
		if amount > total-committed {
			return ErrInsufficientBalance
		}

		if err := poolPut(tx, keyPoolTotal, total-amount); err != nil {
			return err
		}

		if err := l.sender.Send(ctx, string(l.authority), amount, "residual-withdrawal"); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("residual withdrawn", "authority", l.authority, "amount", amount)

	l.notify(ctx, events.Event{
		Kind:       events.KindPoolWithdrawal,
		Actor:      string(l.authority),
		Amount:     amount,
		OccurredAt: l.now(),
	})

	return nil
}

// Deposit accepts value sent to the pool with no associated campaign. Such
// funds are only reachable via WithdrawResidual.
func (l *Ledger) Deposit(ctx context.Context, from Address, amount uint64) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		return poolPut(tx, keyPoolTotal, poolGet(tx, keyPoolTotal)+amount)
	})
	if err != nil {
		return err
	}

	l.logger.Info("unsolicited deposit accepted", "from", from, "amount", amount)

	l.notify(ctx, events.Event{
		Kind:       events.KindPoolDeposit,
		Actor:      string(from),
		Amount:     amount,
		OccurredAt: l.now(),
	})

	return nil
}

// Campaign returns a campaign by id.
func (l *Ledger) Campaign(ctx context.Context, id uint64) (*Campaign, error) {
	var c *Campaign
	err := l.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = getCampaign(tx, id)
		return err
	})
	return c, err
}

// Campaigns lists campaigns in creation order.
func (l *Ledger) Campaigns(ctx context.Context, filter ListFilter) ([]Campaign, error) {
	var out []Campaign

	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCampaigns).Cursor()

		skipped := 0
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var camp Campaign
			if err := json.Unmarshal(v, &camp); err != nil {
				return fmt.Errorf("failed to decode campaign %d: %w", btoi(k), err)
			}

			if filter.OnlyOpen && camp.Ended {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			out = append(out, camp)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return out, err
}

// Pool returns the pool balances.
func (l *Ledger) Pool(ctx context.Context) (PoolStats, error) {
	var stats PoolStats

	err := l.db.View(func(tx *bolt.Tx) error {
		stats.Total = poolGet(tx, keyPoolTotal)
		stats.Committed = poolGet(tx, keyPoolCommitted)
		stats.Free = stats.Total - stats.Committed
		return nil
	})

	return stats, err
}
