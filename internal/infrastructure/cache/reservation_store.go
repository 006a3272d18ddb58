package cache

import (
	"context"
	"time"
)

// ReservationStore hands out short-lived exclusive claims on string keys.
// The idempotency ledger uses it to make sure only one worker processes a
// given sync event at a time. Leases expire on their own so a crashed
// holder never blocks the key forever.
type ReservationStore interface {
	// Acquire claims the key for the lease duration. Returns false when the
	// key is currently held by someone else.
	Acquire(ctx context.Context, key string, lease time.Duration) (bool, error)

	// Release drops the claim on the key. Releasing an unheld key is a no-op.
	Release(ctx context.Context, key string) error

	// Close releases underlying resources
	Close() error
}
