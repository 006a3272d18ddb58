package integration

import (
	"context"
	"time"

	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// SyncOutcome records how an event left the pipeline
type SyncOutcome string

const (
	// SyncOutcomeApplied means the event mutated local state
	SyncOutcomeApplied SyncOutcome = "applied"
	// SyncOutcomeRejected means a business rule finally rejected the event.
	// Rejections are committed to the ledger like applies so replays of the
	// same event short-circuit instead of failing again.
	SyncOutcomeRejected SyncOutcome = "rejected"
)

// IsValid returns true if the outcome is valid
func (o SyncOutcome) IsValid() bool {
	return o == SyncOutcomeApplied || o == SyncOutcomeRejected
}

// SyncRecord is the durable ledger entry for a fully processed event.
// Exactly one record exists per EventID, forever.
type SyncRecord struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey"`
	EventID         string      `gorm:"uniqueIndex;size:128;not null"`
	ExternalOrderID string      `gorm:"index;size:64;not null"`
	LocalOrderID    *uuid.UUID  `gorm:"type:uuid;index"`
	ResultingStatus string      `gorm:"size:20"`
	Outcome         SyncOutcome `gorm:"size:10;not null"`
	RejectReason    string      `gorm:"type:text"`
	AppliedAt       time.Time   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRecord) TableName() string {
	return "sync_records"
}

// NewSyncRecord creates a ledger entry for an applied event
func NewSyncRecord(event *ExternalOrderEvent, localOrderID uuid.UUID, resultingStatus string) *SyncRecord {
	return &SyncRecord{
		ID:              uuid.New(),
		EventID:         event.EventID,
		ExternalOrderID: event.ExternalOrderID,
		LocalOrderID:    &localOrderID,
		ResultingStatus: resultingStatus,
		Outcome:         SyncOutcomeApplied,
		AppliedAt:       time.Now(),
	}
}

// NewRejectedSyncRecord creates a ledger entry for a finally rejected event
func NewRejectedSyncRecord(event *ExternalOrderEvent, localOrderID *uuid.UUID, reason string) *SyncRecord {
	return &SyncRecord{
		ID:              uuid.New(),
		EventID:         event.EventID,
		ExternalOrderID: event.ExternalOrderID,
		LocalOrderID:    localOrderID,
		Outcome:         SyncOutcomeRejected,
		RejectReason:    reason,
		AppliedAt:       time.Now(),
	}
}

// Reservation is a short-lived exclusive claim on an event id. Exactly one
// worker holds the reservation while processing; the lease expires on its
// own if the worker crashes before commit or release.
type Reservation struct {
	EventID    string
	AcquiredAt time.Time
	LeaseTTL   time.Duration
}

// CheckResult is the answer to CheckAndReserve
type CheckResult struct {
	// Reservation is non-nil when the caller now holds the claim and must
	// process the event
	Reservation *Reservation
	// Applied is non-nil when a committed record already exists; the caller
	// must skip processing and return the recorded result
	Applied *SyncRecord
}

// IdempotencyLedger guarantees each external event mutates local state at
// most once, across concurrent deliveries and process restarts.
type IdempotencyLedger interface {
	// CheckAndReserve atomically checks the ledger and claims the event.
	// Returns ErrEventInFlight when another worker currently holds the
	// reservation for this event id.
	CheckAndReserve(ctx context.Context, eventID string) (*CheckResult, error)

	// Commit durably records the outcome, then drops the reservation.
	// After Commit the event id short-circuits permanently.
	Commit(ctx context.Context, record *SyncRecord) error

	// Release drops the reservation without recording an outcome so the
	// event can be retried.
	Release(ctx context.Context, eventID string) error
}

// SyncRecordRepository persists the durable half of the ledger
type SyncRecordRepository interface {
	// FindByEventID finds the committed record for an event, or nil
	FindByEventID(ctx context.Context, eventID string) (*SyncRecord, error)

	// FindAll finds sync records matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]SyncRecord, error)

	// Count counts sync records matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Save inserts a record. EventID uniqueness is enforced by the store.
	Save(ctx context.Context, record *SyncRecord) error
}
