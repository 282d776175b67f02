package payout

import (
	"context"
	"sync"
)

// Payout is one recorded transfer.
type Payout struct {
	To        string
	Amount    uint64
	Reference string
}

// Recorder is a Sender that records transfers in memory. Used in tests and
// in dry-run mode, where settlement should be exercised without moving
// real funds.
type Recorder struct {
	mu      sync.Mutex
	sent    []Payout
	failErr error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Send calls fail with err. Passing nil restores
// normal operation.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.failErr = err
	r.mu.Unlock()
}

// Send records the transfer, or fails if armed via FailWith.
func (r *Recorder) Send(ctx context.Context, to string, amount uint64, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return r.failErr
	}

	r.sent = append(r.sent, Payout{To: to, Amount: amount, Reference: reference})
	return nil
}

// Sent returns a copy of all recorded transfers.
func (r *Recorder) Sent() []Payout {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Payout, len(r.sent))
	copy(out, r.sent)
	return out
}
