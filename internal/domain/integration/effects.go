package integration

import (
	"context"
	"time"

	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EffectKind names a side effect triggered by a status transition
type EffectKind string

const (
	// EffectKindCommission accrues the maker's commission when an order
	// enters COMPLETED
	EffectKindCommission EffectKind = "commission_accrual"
	// EffectKindPaymentCheck verifies payment when an order enters SHIPPED
	// or COMPLETED
	EffectKindPaymentCheck EffectKind = "payment_check"
	// EffectKindStatusPush mirrors a locally originated transition back to
	// the storefront
	EffectKindStatusPush EffectKind = "status_push"
)

// IsValid returns true if the kind is valid
func (k EffectKind) IsValid() bool {
	switch k {
	case EffectKindCommission, EffectKindPaymentCheck, EffectKindStatusPush:
		return true
	default:
		return false
	}
}

// DispatchStatus tracks the lifecycle of one effect execution
type DispatchStatus string

const (
	DispatchStatusPending   DispatchStatus = "pending"
	DispatchStatusSucceeded DispatchStatus = "succeeded"
	DispatchStatusFailed    DispatchStatus = "failed"
)

// DispatchReceipt is the exactly-once record for one effect of one
// transition. Uniqueness on (TransitionID, Effect) makes retries after a
// crash-after-effect safe: the receipt survives even when the effect call
// itself cannot be rolled back.
type DispatchReceipt struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TransitionID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_receipt_transition_effect,priority:1"`
	OrderID      uuid.UUID      `gorm:"type:uuid;not null;index"`
	Effect       EffectKind     `gorm:"size:30;not null;uniqueIndex:idx_receipt_transition_effect,priority:2"`
	Status       DispatchStatus `gorm:"size:10;not null"`
	Attempts     int            `gorm:"not null;default:0"`
	LastError    string         `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (DispatchReceipt) TableName() string {
	return "dispatch_receipts"
}

// NewDispatchReceipt creates a pending receipt for an effect
func NewDispatchReceipt(transitionID, orderID uuid.UUID, effect EffectKind) *DispatchReceipt {
	now := time.Now()
	return &DispatchReceipt{
		ID:           uuid.New(),
		TransitionID: transitionID,
		OrderID:      orderID,
		Effect:       effect,
		Status:       DispatchStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkSucceeded records a successful effect execution
func (r *DispatchReceipt) MarkSucceeded() {
	r.Status = DispatchStatusSucceeded
	r.Attempts++
	r.LastError = ""
	r.UpdatedAt = time.Now()
}

// MarkFailed records a failed attempt; the receipt stays eligible for retry
func (r *DispatchReceipt) MarkFailed(err error) {
	r.Status = DispatchStatusFailed
	r.Attempts++
	if err != nil {
		r.LastError = err.Error()
	}
	r.UpdatedAt = time.Now()
}

// DispatchReceiptRepository persists effect receipts
type DispatchReceiptRepository interface {
	// FindByTransition returns the receipts recorded for a transition
	FindByTransition(ctx context.Context, transitionID uuid.UUID) ([]DispatchReceipt, error)

	// FindByTransitionAndEffect finds one receipt, or nil
	FindByTransitionAndEffect(ctx context.Context, transitionID uuid.UUID, effect EffectKind) (*DispatchReceipt, error)

	// FindFailed returns failed receipts eligible for retry, oldest first
	FindFailed(ctx context.Context, limit int) ([]DispatchReceipt, error)

	// FindAll finds receipts matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]DispatchReceipt, error)

	// Save creates or updates a receipt
	Save(ctx context.Context, receipt *DispatchReceipt) error
}

// CommissionService is the outbound port for commission accrual
type CommissionService interface {
	// Accrue records the maker's commission for a completed order
	Accrue(ctx context.Context, orderID uuid.UUID, transition *order.Transition) error
}

// PaymentReconciliationService is the outbound port for payment checks
type PaymentReconciliationService interface {
	// Check verifies the order's payment state after shipment or completion
	Check(ctx context.Context, orderID uuid.UUID, transition *order.Transition) error
}
