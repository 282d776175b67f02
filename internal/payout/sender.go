// Package payout performs the external value transfers ordered by the
// ledger. Sending funds is treated as a fallible remote effect: the caller
// decides what a failure means for its own state.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sender transfers an amount (in the smallest currency unit) to an address.
// A nil error means the funds are on their way; any error means nothing was
// transferred.
type Sender interface {
	Send(ctx context.Context, to string, amount uint64, reference string) error
}

// Order is the payout request body sent to the payout endpoint.
type Order struct {
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

// HTTPSender submits payout orders to an external payment endpoint.
type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPSender creates a sender for the given endpoint. The token, if set,
// is sent as a bearer token.
func NewHTTPSender(endpoint, token string, timeout time.Duration, logger *slog.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Send posts a payout order and treats any non-2xx response as failure.
func (s *HTTPSender) Send(ctx context.Context, to string, amount uint64, reference string) error {
	body, err := json.Marshal(Order{To: to, Amount: amount, Reference: reference})
	if err != nil {
		return fmt.Errorf("failed to encode payout order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("payout request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("payout endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	s.logger.Info("payout sent", "to", to, "amount", amount, "reference", reference)
	return nil
}
