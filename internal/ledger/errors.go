package ledger

import "errors"

// Operation errors. Callers classify with errors.Is; every failed operation
// leaves the ledger exactly as it was.
var (
	ErrInvalidGoal          = errors.New("campaign goal must be greater than zero")
	ErrNotFound             = errors.New("campaign not found")
	ErrCampaignExpired      = errors.New("campaign deadline has passed")
	ErrCampaignAlreadyEnded = errors.New("campaign already ended")
	ErrCampaignStillOngoing = errors.New("campaign deadline has not passed yet")
	ErrUnauthorized         = errors.New("caller is not the pool authority")
	ErrInsufficientBalance  = errors.New("insufficient free pool balance")
	ErrTransferFailed       = errors.New("payout transfer failed")
)
