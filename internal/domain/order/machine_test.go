package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTransitionRepo is an in-memory append-only transition log for tests
type memTransitionRepo struct {
	transitions []Transition
}

func (r *memTransitionRepo) Append(ctx context.Context, t *Transition) error {
	r.transitions = append(r.transitions, *t)
	return nil
}

func (r *memTransitionRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Transition, error) {
	var out []Transition
	for _, t := range r.transitions {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTransitionRepo) FindByTrigger(ctx context.Context, orderID uuid.UUID, triggerEventID string) (*Transition, error) {
	for i := range r.transitions {
		t := r.transitions[i]
		if t.OrderID == orderID && t.TriggerEventID != nil && *t.TriggerEventID == triggerEventID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memTransitionRepo) FindLatest(ctx context.Context, orderID uuid.UUID) (*Transition, error) {
	var latest *Transition
	for i := range r.transitions {
		t := r.transitions[i]
		if t.OrderID != orderID {
			continue
		}
		if latest == nil || t.AppliedAt.After(latest.AppliedAt) {
			latest = &t
		}
	}
	return latest, nil
}

func (r *memTransitionRepo) FindByID(ctx context.Context, id uuid.UUID) (*Transition, error) {
	for i := range r.transitions {
		if r.transitions[i].ID == id {
			return &r.transitions[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func newTestMachine() (*StateMachine, *memTransitionRepo) {
	repo := &memTransitionRepo{}
	return NewStateMachine(repo), repo
}

// apply runs a transition and appends it to the log on success, the way the
// application layer does
func apply(t *testing.T, m *StateMachine, repo *memTransitionRepo, o *Order, target OrderStatus, origin WriteOrigin, eventTime time.Time, trigger *string) *Transition {
	tr, replayed, err := m.Apply(context.Background(), o, target, origin, eventTime, trigger, "")
	require.NoError(t, err)
	if !replayed {
		require.NoError(t, repo.Append(context.Background(), tr))
	}
	return tr
}

func strPtr(s string) *string { return &s }

func domainCode(t *testing.T, err error) string {
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	return de.Code
}

// ============================================
// StateMachine Tests
// ============================================

func TestStateMachine_LinearPath(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestOrder(t)

	path := []OrderStatus{
		OrderStatusConfirmed,
		OrderStatusInProduction,
		OrderStatusReadyToShip,
		OrderStatusShipped,
		OrderStatusCompleted,
	}
	for _, target := range path {
		tr := apply(t, m, repo, o, target, OriginLocal, time.Now(), nil)
		assert.Equal(t, target, tr.ToStatus)
		assert.Equal(t, target, o.Status)
	}

	log, err := repo.FindByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, log, 5)
	assert.NotNil(t, o.ConfirmedAt)
	assert.NotNil(t, o.ShippedAt)
	assert.NotNil(t, o.CompletedAt)
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	m, _ := newTestMachine()
	o := createTestOrder(t)

	_, _, err := m.Apply(context.Background(), o, OrderStatusShipped, OriginLocal, time.Now(), nil, "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidTransition, domainCode(t, err))
	assert.Equal(t, OrderStatusDraft, o.Status)
}

func TestStateMachine_NeverReachesIllegalStates(t *testing.T) {
	// Brute-force every (from, to) pair: Apply must succeed exactly on the
	// allowed edge set and never mutate the order otherwise.
	all := []OrderStatus{
		OrderStatusDraft, OrderStatusConfirmed, OrderStatusInProduction,
		OrderStatusReadyToShip, OrderStatusShipped, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusRefunded,
	}

	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				m, _ := newTestMachine()
				o := createTestOrder(t)
				o.Status = from
				o.StatusStamp = WrittenBy(OriginLocal, time.Now().Add(-time.Hour))

				_, _, err := m.Apply(context.Background(), o, to, OriginLocal, time.Now(), nil, "")
				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, to, o.Status)
				} else {
					require.Error(t, err)
					assert.Equal(t, from, o.Status, "rejected apply must not mutate the order")
				}
			})
		}
	}
}

func TestStateMachine_TerminalStateViolation(t *testing.T) {
	tests := []struct {
		name   string
		from   OrderStatus
		target OrderStatus
	}{
		{"cancelled rejects confirm", OrderStatusCancelled, OrderStatusConfirmed},
		{"cancelled rejects ship", OrderStatusCancelled, OrderStatusShipped},
		{"refunded rejects complete", OrderStatusRefunded, OrderStatusCompleted},
		{"refunded rejects cancel", OrderStatusRefunded, OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine()
			o := createTestOrder(t)
			o.Status = tt.from

			_, _, err := m.Apply(context.Background(), o, tt.target, OriginExternal, time.Now(), nil, "")
			require.Error(t, err)
			assert.Equal(t, ErrCodeTerminalStateViolation, domainCode(t, err))
		})
	}
}

func TestStateMachine_CompletedIsNotFullyTerminal(t *testing.T) {
	// COMPLETED still accepts a refund; everything else from COMPLETED is an
	// invalid transition, not a terminal-state violation.
	m, repo := newTestMachine()
	o := createTestOrder(t)
	o.Status = OrderStatusCompleted
	o.StatusStamp = WrittenBy(OriginLocal, time.Now().Add(-time.Hour))

	_, _, err := m.Apply(context.Background(), o, OrderStatusCancelled, OriginLocal, time.Now(), nil, "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidTransition, domainCode(t, err))

	tr := apply(t, m, repo, o, OrderStatusRefunded, OriginExternal, time.Now(), nil)
	assert.Equal(t, OrderStatusRefunded, tr.ToStatus)
	assert.NotNil(t, o.RefundedAt)
}

func TestStateMachine_StaleExternalUpdate(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestExternalOrder(t, time.Now().Add(-2*time.Hour))
	o.Status = OrderStatusShipped

	// Local operator cancels after the storefront snapshot was taken
	localAt := time.Now()
	apply(t, m, repo, o, OrderStatusCancelled, OriginLocal, localAt, nil)
	require.Equal(t, OrderStatusCancelled, o.Status)

	// An external event carrying an older timestamp arrives late. The order
	// is already terminal, so the terminal rule fires first.
	_, _, err := m.Apply(context.Background(), o, OrderStatusCompleted, OriginExternal,
		localAt.Add(-time.Hour), strPtr("evt-late"), "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeTerminalStateViolation, domainCode(t, err))
}

func TestStateMachine_StaleExternalUpdate_NonTerminal(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestExternalOrder(t, time.Now().Add(-2*time.Hour))
	o.Status = OrderStatusConfirmed

	// Local edit moves the order forward
	localAt := time.Now()
	apply(t, m, repo, o, OrderStatusInProduction, OriginLocal, localAt, nil)

	// External event older than the local write must lose, even though the
	// edge itself would be legal
	_, _, err := m.Apply(context.Background(), o, OrderStatusReadyToShip, OriginExternal,
		localAt.Add(-30*time.Minute), strPtr("evt-old"), "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeStaleExternalUpdate, domainCode(t, err))
	assert.Equal(t, OrderStatusInProduction, o.Status)

	// The same edge with a newer event time goes through
	tr := apply(t, m, repo, o, OrderStatusReadyToShip, OriginExternal,
		localAt.Add(time.Minute), strPtr("evt-new"))
	assert.Equal(t, OrderStatusReadyToShip, tr.ToStatus)
	assert.Equal(t, OriginExternal, o.StatusStamp.Origin)
}

func TestStateMachine_IdempotentReplay(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestExternalOrder(t, time.Now().Add(-time.Hour))

	trigger := strPtr("wc-evt-7")
	first := apply(t, m, repo, o, OrderStatusConfirmed, OriginExternal, time.Now(), trigger)

	// Replaying the exact same event returns the recorded transition and
	// leaves the log untouched
	second, replayed, err := m.Apply(context.Background(), o, OrderStatusConfirmed, OriginExternal,
		time.Now(), trigger, "")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	log, err := repo.FindByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestTransitionMatches(t *testing.T) {
	tr := NewTransition(uuid.New(), OrderStatusDraft, OrderStatusConfirmed, OriginExternal, strPtr("wc-evt-9"), time.Now())

	assert.True(t, tr.Matches(OrderStatusConfirmed, strPtr("wc-evt-9")))
	assert.False(t, tr.Matches(OrderStatusCancelled, strPtr("wc-evt-9")))
	assert.False(t, tr.Matches(OrderStatusConfirmed, strPtr("wc-evt-10")))
	assert.False(t, tr.Matches(OrderStatusConfirmed, nil))

	manual := NewTransition(uuid.New(), OrderStatusDraft, OrderStatusConfirmed, OriginLocal, nil, time.Now())
	assert.True(t, manual.Matches(OrderStatusConfirmed, nil))
	assert.False(t, manual.Matches(OrderStatusConfirmed, strPtr("wc-evt-9")))
}

func TestStateMachine_SameStatusNoOp(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestExternalOrder(t, time.Now().Add(-time.Hour))

	first := apply(t, m, repo, o, OrderStatusConfirmed, OriginExternal, time.Now(), strPtr("evt-1"))

	// A different event reporting the status the order already has resolves
	// to the transition that got it there
	tr, replayed, err := m.Apply(context.Background(), o, OrderStatusConfirmed, OriginExternal,
		time.Now(), strPtr("evt-2"), "")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, tr.ID)
}

func TestStateMachine_CancelRecordsReason(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestOrder(t)

	tr, replayed, err := m.Apply(context.Background(), o, OrderStatusCancelled, OriginLocal,
		time.Now(), nil, "customer withdrew the commission")
	require.NoError(t, err)
	require.False(t, replayed)
	require.NoError(t, repo.Append(context.Background(), tr))

	assert.Equal(t, "customer withdrew the commission", o.CancelReason)
	assert.NotNil(t, o.CancelledAt)
}

func TestStateMachine_QueuesStatusChangedEvent(t *testing.T) {
	m, repo := newTestMachine()
	o := createTestOrder(t)
	o.ClearDomainEvents()

	tr := apply(t, m, repo, o, OrderStatusConfirmed, OriginLocal, time.Now(), nil)

	events := o.GetDomainEvents()
	require.Len(t, events, 1)
	evt, ok := events[0].(*OrderStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, tr.ID, evt.TransitionID)
	assert.Equal(t, OrderStatusDraft, evt.FromStatus)
	assert.Equal(t, OrderStatusConfirmed, evt.ToStatus)
	assert.Equal(t, OriginLocal, evt.Origin)
}
