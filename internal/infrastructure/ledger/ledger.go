package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Ledger implements integration.IdempotencyLedger by composing a durable
// sync-record store with a leased reservation store. The durable half makes
// dedup permanent; the reservation half makes concurrent deliveries of the
// same event mutually exclusive without a database lock.
type Ledger struct {
	records      integration.SyncRecordRepository
	reservations cache.ReservationStore
	leaseTTL     time.Duration
	logger       *zap.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLeaseTTL overrides the reservation lease duration
func WithLeaseTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.leaseTTL = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger over the given stores
func New(records integration.SyncRecordRepository, reservations cache.ReservationStore, opts ...Option) *Ledger {
	l := &Ledger{
		records:      records,
		reservations: reservations,
		leaseTTL:     2 * time.Minute,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndReserve atomically checks the ledger and claims the event.
//
// Order matters: the durable record is consulted first so permanently
// processed events short-circuit without touching the reservation store,
// then the reservation is taken, then the record is re-checked. The second
// read closes the race where another worker committed between our first
// read and our claim.
func (l *Ledger) CheckAndReserve(ctx context.Context, eventID string) (*integration.CheckResult, error) {
	record, err := l.records.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	if record != nil {
		return &integration.CheckResult{Applied: record}, nil
	}

	acquired, err := l.reservations.Acquire(ctx, eventID, l.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("reservation acquire failed: %w", err)
	}
	if !acquired {
		return nil, integration.ErrEventInFlight
	}

	record, err = l.records.FindByEventID(ctx, eventID)
	if err != nil {
		l.releaseQuietly(ctx, eventID)
		return nil, fmt.Errorf("ledger recheck failed: %w", err)
	}
	if record != nil {
		l.releaseQuietly(ctx, eventID)
		return &integration.CheckResult{Applied: record}, nil
	}

	return &integration.CheckResult{
		Reservation: &integration.Reservation{
			EventID:    eventID,
			AcquiredAt: time.Now(),
			LeaseTTL:   l.leaseTTL,
		},
	}, nil
}

// Commit durably records the outcome, then drops the reservation.
// A failed reservation release is harmless: the lease expires on its own
// and the durable record already short-circuits any retry.
func (l *Ledger) Commit(ctx context.Context, record *integration.SyncRecord) error {
	if err := l.records.Save(ctx, record); err != nil {
		return fmt.Errorf("ledger commit failed: %w", err)
	}

	l.releaseQuietly(ctx, record.EventID)
	return nil
}

// Release drops the reservation without recording an outcome
func (l *Ledger) Release(ctx context.Context, eventID string) error {
	if err := l.reservations.Release(ctx, eventID); err != nil {
		return fmt.Errorf("reservation release failed: %w", err)
	}
	return nil
}

func (l *Ledger) releaseQuietly(ctx context.Context, eventID string) {
	if err := l.reservations.Release(ctx, eventID); err != nil {
		l.logger.Warn("failed to release event reservation, lease will expire on its own",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}

// Ensure Ledger implements the port
var _ integration.IdempotencyLedger = (*Ledger)(nil)
