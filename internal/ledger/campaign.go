package ledger

import "time"

// Address identifies a party that can send or receive funds. The ledger
// treats addresses as opaque strings; resolving them to real accounts is
// the payout layer's problem.
type Address string

// Campaign is one fundraiser. Title, Description, Recipient, Goal and
// Deadline are fixed at creation; AmountRaised and Ended change over the
// lifecycle. IDs are dense, zero-based and assigned in creation order.
type Campaign struct {
	ID           uint64    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Recipient    Address   `json:"recipient"`
	Goal         uint64    `json:"goal"`
	Deadline     time.Time `json:"deadline"`
	AmountRaised uint64    `json:"amount_raised"`
	Ended        bool      `json:"ended"`
	CreatedAt    time.Time `json:"created_at"`
}

// Accepting reports whether the campaign can take donations at the given
// instant.
func (c *Campaign) Accepting(now time.Time) bool {
	return !c.Ended && now.Before(c.Deadline)
}

// CreateParams are the inputs to CreateCampaign. Duration is relative to
// the creation time and fixes the deadline.
type CreateParams struct {
	Title       string
	Description string
	Recipient   Address
	Goal        uint64
	Duration    time.Duration
}

// ListFilter narrows Campaigns results.
type ListFilter struct {
	// OnlyOpen keeps campaigns that have not ended yet.
	OnlyOpen bool
	// Limit caps the number of results; 0 means no cap.
	Limit int
	// Offset skips that many campaigns from the start.
	Offset int
}

// PoolStats describes the shared fund pool. Committed is the sum of
// amount_raised across campaigns that have not settled; Free is what
// WithdrawResidual may touch.
type PoolStats struct {
	Total     uint64 `json:"total"`
	Committed uint64 `json:"committed"`
	Free      uint64 `json:"free"`
}
