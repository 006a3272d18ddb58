package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ParkedEvent is an event that exhausted its retries and was taken out of
// the pipeline. It keeps the full serialized event so an operator can
// replay it after fixing the underlying problem.
type ParkedEvent struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID         string    `gorm:"uniqueIndex;size:128;not null"`
	ExternalOrderID string    `gorm:"index;size:64;not null"`
	Payload         string    `gorm:"type:text;not null"` // JSON-encoded ExternalOrderEvent
	RetryCount      int       `gorm:"not null"`
	Reason          string    `gorm:"type:text"`
	ParkedAt        time.Time `gorm:"not null"`
	ReplayedAt      *time.Time
}

// TableName returns the table name for GORM
func (ParkedEvent) TableName() string {
	return "parked_events"
}

// NewParkedEvent serializes an event into the dead-letter store
func NewParkedEvent(event *ExternalOrderEvent, retryCount int, reason string) (*ParkedEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &ParkedEvent{
		ID:              uuid.New(),
		EventID:         event.EventID,
		ExternalOrderID: event.ExternalOrderID,
		Payload:         string(payload),
		RetryCount:      retryCount,
		Reason:          reason,
		ParkedAt:        time.Now(),
	}, nil
}

// Event deserializes the parked event for replay
func (p *ParkedEvent) Event() (*ExternalOrderEvent, error) {
	var event ExternalOrderEvent
	if err := json.Unmarshal([]byte(p.Payload), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkReplayed records that an operator re-submitted this event
func (p *ParkedEvent) MarkReplayed() {
	now := time.Now()
	p.ReplayedAt = &now
}

// DeadLetterRepository persists parked events
type DeadLetterRepository interface {
	// FindByID finds a parked event by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*ParkedEvent, error)

	// FindByEventID finds a parked event by the original event id, or nil
	FindByEventID(ctx context.Context, eventID string) (*ParkedEvent, error)

	// FindAll finds parked events matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]ParkedEvent, error)

	// Count counts parked events matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Save creates or updates a parked event
	Save(ctx context.Context, parked *ParkedEvent) error

	// Delete removes a parked event after successful replay
	Delete(ctx context.Context, id uuid.UUID) error
}
