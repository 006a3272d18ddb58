package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryReservationStore implements ReservationStore with a mutex-guarded
// map. Suitable for single-instance deployments and tests; leases are
// checked lazily on Acquire, no background sweeper is needed because the
// reservation keyspace is bounded by in-flight events.
type InMemoryReservationStore struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

// NewInMemoryReservationStore creates a new in-memory reservation store
func NewInMemoryReservationStore() *InMemoryReservationStore {
	return &InMemoryReservationStore{
		leases: make(map[string]time.Time),
	}
}

// Acquire claims the key for the lease duration
func (s *InMemoryReservationStore) Acquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiresAt, held := s.leases[key]; held && time.Now().Before(expiresAt) {
		return false, nil
	}

	s.leases[key] = time.Now().Add(lease)
	return true, nil
}

// Release drops the claim on the key
func (s *InMemoryReservationStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, key)
	return nil
}

// Close releases resources
func (s *InMemoryReservationStore) Close() error {
	return nil
}

// Ensure InMemoryReservationStore implements ReservationStore
var _ ReservationStore = (*InMemoryReservationStore)(nil)
