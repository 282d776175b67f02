package events

import (
	"context"
	"time"
)

// Kind identifies the type of a ledger notification.
type Kind string

const (
	KindCampaignCreated  Kind = "campaign.created"
	KindDonationReceived Kind = "donation.received"
	KindCampaignEnded    Kind = "campaign.ended"
	KindPoolDeposit      Kind = "pool.deposit"
	KindPoolWithdrawal   Kind = "pool.withdrawal"
)

// Event is a single entry in the notification log. Events are a side channel
// for external observers; the ledger never reads them back.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	CampaignID uint64    `json:"campaign_id"`
	Title      string    `json:"title,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Amount     uint64    `json:"amount"`
	Goal       uint64    `json:"goal,omitempty"`
	Deadline   time.Time `json:"deadline,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives emitted events. Delivery is best-effort: a failing sink must
// never affect the outcome of the ledger operation that produced the event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}
