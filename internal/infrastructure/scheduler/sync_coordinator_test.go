package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appintegration "github.com/atelier/backend/internal/application/integration"
	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/partner"
	"github.com/atelier/backend/internal/infrastructure/cache"
	"github.com/atelier/backend/internal/infrastructure/config"
	"github.com/atelier/backend/internal/infrastructure/ledger"
	"github.com/atelier/backend/internal/infrastructure/persistence"
)

type stubCommission struct{}

func (stubCommission) Accrue(ctx context.Context, orderID uuid.UUID, t *order.Transition) error {
	return nil
}

type stubPayments struct {
	mu  sync.Mutex
	err error
}

func (s *stubPayments) Check(ctx context.Context, orderID uuid.UUID, t *order.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubPayments) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type stubPlatform struct {
	mu     sync.Mutex
	events []*integration.ExternalOrderEvent
	pulls  int
}

func (p *stubPlatform) PlatformCode() string { return "stub" }

func (p *stubPlatform) PullOrders(ctx context.Context, since, until time.Time) ([]*integration.ExternalOrderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulls++
	events := p.events
	p.events = nil
	return events, nil
}

func (p *stubPlatform) UpdateOrderStatus(ctx context.Context, externalOrderID string, status order.OrderStatus) error {
	return nil
}

type coordinatorHarness struct {
	coordinator *SyncCoordinator
	orders      order.OrderRepository
	transitions order.TransitionRepository
	receipts    integration.DispatchReceiptRepository
	deadLetters integration.DeadLetterRepository
	platform    *stubPlatform
	payments    *stubPayments
}

func newCoordinatorHarness(t *testing.T, cfg config.SyncConfig) *coordinatorHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A pooled second connection would see its own empty in-memory
	// database, so the workers must share one
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&order.Order{}, &order.OrderItem{}, &order.Transition{},
		&partner.Customer{}, &integration.SyncRecord{},
		&integration.DispatchReceipt{}, &integration.ParkedEvent{},
	))

	h := &coordinatorHarness{
		orders:      persistence.NewGormOrderRepository(db),
		transitions: persistence.NewGormTransitionRepository(db),
		receipts:    persistence.NewGormDispatchReceiptRepository(db),
		deadLetters: persistence.NewGormDeadLetterRepository(db),
		platform:    &stubPlatform{},
		payments:    &stubPayments{},
	}
	customers := persistence.NewGormCustomerRepository(db)
	syncRecords := persistence.NewGormSyncRecordRepository(db)

	machine := order.NewStateMachine(h.transitions)
	dispatcher := appintegration.NewEffectDispatcher(
		h.receipts, h.orders, h.transitions,
		stubCommission{}, h.payments, h.platform,
	)
	reconciler := appintegration.NewReconciler(
		ledger.New(syncRecords, cache.NewInMemoryReservationStore()),
		h.orders, customers, h.transitions, machine, dispatcher,
	)

	h.coordinator = NewSyncCoordinator(reconciler, dispatcher, h.platform, h.deadLetters, cfg)
	require.NoError(t, h.coordinator.Start())
	t.Cleanup(h.coordinator.Stop)
	return h
}

func fastRetryConfig() config.SyncConfig {
	return config.SyncConfig{
		WorkerCount:    2,
		QueueCapacity:  64,
		MaxRetries:     3,
		RetryBaseDelay: 5 * time.Millisecond,
		RetryMaxDelay:  50 * time.Millisecond,
	}
}

func coordinatorEvent(eventID, extID string, kind integration.EventKind, at time.Time, status order.OrderStatus) *integration.ExternalOrderEvent {
	total := decimal.RequireFromString("120.00")
	return &integration.ExternalOrderEvent{
		EventID:         eventID,
		ExternalOrderID: extID,
		Kind:            kind,
		OccurredAt:      at,
		Snapshot: integration.OrderSnapshot{
			Status: status,
			Buyer:  &integration.BuyerInfo{Name: "Nora Brandt", Email: "nora.brandt@example.com"},
			Items: []integration.SnapshotItem{
				{ProductName: "Ash bench", Quantity: 1, UnitPrice: total},
			},
			Total:    &total,
			Currency: "EUR",
		},
	}
}

func (h *coordinatorHarness) waitForStatus(t *testing.T, extID string, want order.OrderStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		o, err := h.orders.FindByExternalID(context.Background(), extID)
		return err == nil && o.Status == want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSyncCoordinator_ProcessesSubmittedEvents(t *testing.T) {
	h := newCoordinatorHarness(t, fastRetryConfig())
	t0 := time.Now().Add(-time.Hour)

	require.NoError(t, h.coordinator.Submit(
		coordinatorEvent("ev-1", "300", integration.EventKindCreated, t0, order.OrderStatusDraft)))
	h.waitForStatus(t, "300", order.OrderStatusDraft)

	require.NoError(t, h.coordinator.Submit(
		coordinatorEvent("ev-2", "300", integration.EventKindStatusChanged, t0.Add(time.Minute), order.OrderStatusConfirmed)))
	h.waitForStatus(t, "300", order.OrderStatusConfirmed)
}

func TestSyncCoordinator_RetriesUntilCreatedArrives(t *testing.T) {
	h := newCoordinatorHarness(t, fastRetryConfig())
	t0 := time.Now().Add(-time.Hour)

	// Status change first: parked in backoff until the created event lands
	require.NoError(t, h.coordinator.Submit(
		coordinatorEvent("ev-late-2", "301", integration.EventKindStatusChanged, t0.Add(time.Minute), order.OrderStatusConfirmed)))
	require.NoError(t, h.coordinator.Submit(
		coordinatorEvent("ev-late-1", "301", integration.EventKindCreated, t0, order.OrderStatusDraft)))

	h.waitForStatus(t, "301", order.OrderStatusConfirmed)
}

func TestSyncCoordinator_ParksEventAfterExhaustingRetries(t *testing.T) {
	h := newCoordinatorHarness(t, fastRetryConfig())
	t0 := time.Now().Add(-time.Hour)

	// No created event ever arrives for this order
	require.NoError(t, h.coordinator.Submit(
		coordinatorEvent("ev-orphan", "302", integration.EventKindStatusChanged, t0, order.OrderStatusConfirmed)))

	require.Eventually(t, func() bool {
		parked, err := h.deadLetters.FindByEventID(context.Background(), "ev-orphan")
		return err == nil && parked != nil
	}, 3*time.Second, 10*time.Millisecond)

	parked, err := h.deadLetters.FindByEventID(context.Background(), "ev-orphan")
	require.NoError(t, err)
	assert.Equal(t, 3, parked.RetryCount)
	assert.Contains(t, parked.Reason, "no local order exists yet")
	assert.Nil(t, parked.ReplayedAt)
}

func TestSyncCoordinator_ParksScheduledRetryOnShutdown(t *testing.T) {
	h := newCoordinatorHarness(t, fastRetryConfig())
	t0 := time.Now().Add(-time.Hour)

	// The order was never created, so the first attempt fails and a
	// backoff retry is scheduled. Stopping before the timer fires must
	// park the event rather than drop it.
	require.NoError(t, h.coordinator.Submit(
		coordinatorEvent("ev-cut", "305", integration.EventKindStatusChanged, t0, order.OrderStatusConfirmed)))
	h.coordinator.Stop()

	parked, err := h.deadLetters.FindByEventID(context.Background(), "ev-cut")
	require.NoError(t, err)
	require.NotNil(t, parked)
	assert.Equal(t, 1, parked.RetryCount)
	assert.Nil(t, parked.ReplayedAt)
}

func TestSyncCoordinator_SameOrderEventsApplyInArrivalOrder(t *testing.T) {
	// A long retry delay makes retries observable: if any event were
	// processed out of order it could only recover through a retry, and
	// the chain would not complete within the wait window below.
	cfg := fastRetryConfig()
	cfg.WorkerCount = 4
	cfg.RetryBaseDelay = 3 * time.Second
	cfg.RetryMaxDelay = 10 * time.Second
	h := newCoordinatorHarness(t, cfg)
	t0 := time.Now().Add(-time.Hour)

	steps := []struct {
		kind   integration.EventKind
		status order.OrderStatus
	}{
		{integration.EventKindCreated, order.OrderStatusDraft},
		{integration.EventKindStatusChanged, order.OrderStatusConfirmed},
		{integration.EventKindStatusChanged, order.OrderStatusInProduction},
		{integration.EventKindStatusChanged, order.OrderStatusReadyToShip},
		{integration.EventKindStatusChanged, order.OrderStatusShipped},
		{integration.EventKindStatusChanged, order.OrderStatusCompleted},
	}
	extIDs := []string{"310", "311", "312"}

	// Interleave the three orders so their events share the worker pool
	for i, step := range steps {
		for _, extID := range extIDs {
			require.NoError(t, h.coordinator.Submit(coordinatorEvent(
				"ev-seq-"+extID+"-"+step.status.String(), extID,
				step.kind, t0.Add(time.Duration(i)*time.Minute), step.status)))
		}
	}

	for _, extID := range extIDs {
		require.Eventually(t, func() bool {
			o, err := h.orders.FindByExternalID(context.Background(), extID)
			return err == nil && o.Status == order.OrderStatusCompleted
		}, 2*time.Second, 10*time.Millisecond,
			"order %s should complete without a single retry", extID)

		o, err := h.orders.FindByExternalID(context.Background(), extID)
		require.NoError(t, err)
		log, err := h.transitions.FindByOrder(context.Background(), o.ID)
		require.NoError(t, err)
		require.Len(t, log, len(steps)-1)
		for i, tr := range log {
			assert.Equal(t, steps[i].status, tr.FromStatus)
			assert.Equal(t, steps[i+1].status, tr.ToStatus)
		}
	}
}

func TestSyncCoordinator_EffectRetryTickerHealsFailedReceipts(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.EffectRetryEvery = 20 * time.Millisecond
	cfg.EffectRetryBatch = 10
	h := newCoordinatorHarness(t, cfg)
	t0 := time.Now().Add(-time.Hour)

	h.payments.setErr(assert.AnError)

	events := []struct {
		id     string
		kind   integration.EventKind
		status order.OrderStatus
	}{
		{"ev-fx-1", integration.EventKindCreated, order.OrderStatusDraft},
		{"ev-fx-2", integration.EventKindStatusChanged, order.OrderStatusConfirmed},
		{"ev-fx-3", integration.EventKindStatusChanged, order.OrderStatusInProduction},
		{"ev-fx-4", integration.EventKindStatusChanged, order.OrderStatusReadyToShip},
		{"ev-fx-5", integration.EventKindStatusChanged, order.OrderStatusShipped},
	}
	for i, e := range events {
		require.NoError(t, h.coordinator.Submit(
			coordinatorEvent(e.id, "303", e.kind, t0.Add(time.Duration(i)*time.Minute), e.status)))
	}
	h.waitForStatus(t, "303", order.OrderStatusShipped)

	require.Eventually(t, func() bool {
		failed, err := h.receipts.FindFailed(context.Background(), 10)
		return err == nil && len(failed) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Downstream recovers; the ticker should heal the receipt
	h.payments.setErr(nil)

	require.Eventually(t, func() bool {
		failed, err := h.receipts.FindFailed(context.Background(), 10)
		return err == nil && len(failed) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSyncCoordinator_PollSubmitsPulledEvents(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.PollEnabled = true
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollOverlap = time.Minute

	h := newCoordinatorHarness(t, cfg)
	t0 := time.Now().Add(-time.Hour)

	h.platform.mu.Lock()
	h.platform.events = []*integration.ExternalOrderEvent{
		coordinatorEvent("ev-poll-1", "304", integration.EventKindCreated, t0, order.OrderStatusDraft),
	}
	h.platform.mu.Unlock()

	h.waitForStatus(t, "304", order.OrderStatusDraft)
}

func TestSyncCoordinator_Lifecycle(t *testing.T) {
	h := newCoordinatorHarness(t, fastRetryConfig())

	assert.ErrorIs(t, h.coordinator.Start(), ErrCoordinatorAlreadyRunning)

	h.coordinator.Stop()
	err := h.coordinator.Submit(
		coordinatorEvent("ev-after-stop", "305", integration.EventKindCreated, time.Now(), order.OrderStatusDraft))
	assert.ErrorIs(t, err, ErrCoordinatorNotRunning)

	// Stop is idempotent
	h.coordinator.Stop()
}
