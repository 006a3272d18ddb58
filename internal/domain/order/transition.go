package order

import (
	"fmt"
	"time"

	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes for rejected transitions
const (
	ErrCodeInvalidTransition      = "INVALID_TRANSITION"
	ErrCodeStaleExternalUpdate    = "STALE_EXTERNAL_UPDATE"
	ErrCodeTerminalStateViolation = "TERMINAL_STATE_VIOLATION"
)

// NewInvalidTransitionError builds the rejection for an edge outside the allowed set
func NewInvalidTransitionError(from, to OrderStatus) *shared.DomainError {
	return shared.NewDomainError(ErrCodeInvalidTransition,
		fmt.Sprintf("transition from %s to %s is not allowed", from, to))
}

// NewStaleExternalUpdateError builds the rejection for an external status write
// that is older than the latest local write to the status group
func NewStaleExternalUpdateError(localAt, eventAt time.Time) *shared.DomainError {
	return shared.NewDomainError(ErrCodeStaleExternalUpdate,
		fmt.Sprintf("local status write at %s supersedes external event at %s",
			localAt.Format(time.RFC3339), eventAt.Format(time.RFC3339)))
}

// NewTerminalStateViolationError builds the rejection for any change attempted
// against an order already in CANCELLED or REFUNDED
func NewTerminalStateViolationError(current OrderStatus) *shared.DomainError {
	return shared.NewDomainError(ErrCodeTerminalStateViolation,
		fmt.Sprintf("order is in terminal status %s and cannot change", current))
}

// Transition is an append-only record of a status change.
// Transitions are totally ordered per order by AppliedAt; the order's current
// status is always the To of its latest transition.
type Transition struct {
	ID             uuid.UUID
	OrderID        uuid.UUID `gorm:"type:uuid;not null;index"`
	FromStatus     OrderStatus
	ToStatus       OrderStatus
	Origin         WriteOrigin
	TriggerEventID *string `gorm:"index"` // nil for manual transitions
	AppliedAt      time.Time
}

// NewTransition creates a transition record for an applied status change
func NewTransition(orderID uuid.UUID, from, to OrderStatus, origin WriteOrigin, triggerEventID *string, appliedAt time.Time) *Transition {
	return &Transition{
		ID:             uuid.New(),
		OrderID:        orderID,
		FromStatus:     from,
		ToStatus:       to,
		Origin:         origin,
		TriggerEventID: triggerEventID,
		AppliedAt:      appliedAt,
	}
}

// Matches reports whether this transition already records the given status
// change, which makes a redelivery of the same trigger a no-op replay.
func (t *Transition) Matches(target OrderStatus, triggerEventID *string) bool {
	if t.ToStatus != target {
		return false
	}
	if t.TriggerEventID == nil || triggerEventID == nil {
		return t.TriggerEventID == nil && triggerEventID == nil
	}
	return *t.TriggerEventID == *triggerEventID
}
