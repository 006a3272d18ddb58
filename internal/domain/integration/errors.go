package integration

import (
	"errors"

	"github.com/atelier/backend/internal/domain/shared"
)

// DomainError codes in the sync error taxonomy. Validation errors are never
// retried; not-yet-synced is transient and retried with backoff; the state
// machine's own rejection codes are final and recorded on the ledger.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeOrderNotYetSynced = "ORDER_NOT_YET_SYNCED"
)

// NewOrderNotYetSyncedError signals an update or status event arriving
// before the created event for the same external order
func NewOrderNotYetSyncedError(externalOrderID string) *shared.DomainError {
	return shared.NewDomainError(ErrCodeOrderNotYetSynced,
		"no local order exists yet for external order "+externalOrderID)
}

// Platform transport errors
var (
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
)

// Ledger errors
var (
	ErrEventInFlight = errors.New("integration: event reservation held by another worker")
)
