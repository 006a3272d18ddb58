package scheduler

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	appintegration "github.com/atelier/backend/internal/application/integration"
	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/atelier/backend/internal/infrastructure/config"
	"github.com/atelier/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Sync Coordinator
// ---------------------------------------------------------------------------

// syncTask is one delivery attempt of an event through the pipeline
type syncTask struct {
	event   *integration.ExternalOrderEvent
	attempt int
}

// SyncCoordinator drives external order events through the reconciliation
// pipeline. Events for the same external order id always land on the same
// worker, which gives per-order FIFO processing while different orders
// reconcile concurrently. Transient failures are re-submitted with
// exponential backoff; events that exhaust their retries are parked in the
// dead-letter store for operator replay.
type SyncCoordinator struct {
	reconciler  *appintegration.Reconciler
	dispatcher  *appintegration.EffectDispatcher
	platform    integration.StorefrontPlatform
	deadLetters integration.DeadLetterRepository
	cfg         config.SyncConfig
	logger      *zap.Logger
	metrics     *telemetry.SyncMetrics

	queues []chan syncTask

	mu       sync.Mutex
	running  bool
	lastPoll time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup

	// pending counts queued plus backoff-scheduled tasks, so Stop can
	// drain without abandoning a retry timer's submission
	pending sync.WaitGroup
}

// SyncCoordinatorOption configures a SyncCoordinator
type SyncCoordinatorOption func(*SyncCoordinator)

// WithSyncLogger sets the logger
func WithSyncLogger(logger *zap.Logger) SyncCoordinatorOption {
	return func(c *SyncCoordinator) {
		c.logger = logger
	}
}

// WithSyncMetrics attaches pipeline metrics. Nil disables instrumentation.
func WithSyncMetrics(metrics *telemetry.SyncMetrics) SyncCoordinatorOption {
	return func(c *SyncCoordinator) {
		c.metrics = metrics
	}
}

// NewSyncCoordinator creates a new SyncCoordinator
func NewSyncCoordinator(
	reconciler *appintegration.Reconciler,
	dispatcher *appintegration.EffectDispatcher,
	platform integration.StorefrontPlatform,
	deadLetters integration.DeadLetterRepository,
	cfg config.SyncConfig,
	opts ...SyncCoordinatorOption,
) *SyncCoordinator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Minute
	}

	c := &SyncCoordinator{
		reconciler:  reconciler,
		dispatcher:  dispatcher,
		platform:    platform,
		deadLetters: deadLetters,
		cfg:         cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the workers and the background tickers
func (c *SyncCoordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrCoordinatorAlreadyRunning
	}

	c.stopCh = make(chan struct{})
	c.queues = make([]chan syncTask, c.cfg.WorkerCount)
	for i := range c.queues {
		c.queues[i] = make(chan syncTask, c.cfg.QueueCapacity)
		c.wg.Add(1)
		go c.workerLoop(i)
	}

	if c.cfg.EffectRetryEvery > 0 {
		c.wg.Add(1)
		go c.effectRetryLoop()
	}
	if c.cfg.PollEnabled && c.cfg.PollInterval > 0 {
		c.lastPoll = time.Now()
		c.wg.Add(1)
		go c.pollLoop()
	}

	c.running = true
	c.logger.Info("sync coordinator started",
		zap.Int("workers", c.cfg.WorkerCount),
		zap.Int("max_retries", c.cfg.MaxRetries))
	return nil
}

// Stop drains in-flight work and shuts the coordinator down
func (c *SyncCoordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	// Closing stopCh first aborts pending retry timers, otherwise Stop
	// would sit out their full backoff delay
	close(c.stopCh)
	c.pending.Wait()
	for _, q := range c.queues {
		close(q)
	}
	c.wg.Wait()

	c.logger.Info("sync coordinator stopped")
}

// Submit enqueues one event for reconciliation
func (c *SyncCoordinator) Submit(event *integration.ExternalOrderEvent) error {
	return c.submit(syncTask{event: event})
}

func (c *SyncCoordinator) submit(task syncTask) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrCoordinatorNotRunning
	}
	queue := c.queues[c.queueIndex(task.event.ExternalOrderID)]
	c.pending.Add(1)
	c.mu.Unlock()

	select {
	case queue <- task:
		return nil
	default:
		c.pending.Done()
		return ErrSyncQueueFull
	}
}

// queueIndex routes an external order id to a worker queue. Same id, same
// queue: that is what serializes per-order processing.
func (c *SyncCoordinator) queueIndex(externalOrderID string) int {
	h := fnv.New32a()
	h.Write([]byte(externalOrderID))
	return int(h.Sum32()) % len(c.queues)
}

func (c *SyncCoordinator) workerLoop(index int) {
	defer c.wg.Done()
	for task := range c.queues[index] {
		c.process(task)
		c.pending.Done()
	}
}

func (c *SyncCoordinator) process(task syncTask) {
	ctx := context.Background()
	log := c.logger.With(
		zap.String("event_id", task.event.EventID),
		zap.String("external_order_id", task.event.ExternalOrderID),
		zap.Int("attempt", task.attempt+1))

	var result *appintegration.ReconciliationResult
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("reconcile_event", nil), func(ctx context.Context) {
		result, err = c.reconciler.Reconcile(ctx, task.event)
	})
	if err == nil {
		if c.metrics != nil {
			c.metrics.RecordReconciled(ctx, string(result.Outcome))
		}
		log.Debug("event reconciled", zap.String("outcome", string(result.Outcome)))
		return
	}

	if !isRetryable(err) {
		log.Warn("event dropped: not retryable", zap.Error(err))
		return
	}

	next := task.attempt + 1
	if next >= c.cfg.MaxRetries {
		c.park(ctx, task, err)
		return
	}

	delay := c.backoff(next)
	log.Info("event retry scheduled", zap.Duration("delay", delay), zap.Error(err))
	if c.metrics != nil {
		c.metrics.RecordRetry(ctx)
	}

	c.pending.Add(1)
	stop := c.stopCh
	go func() {
		defer c.pending.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-stop:
			// Shutdown mid-backoff: park so the event stays visible for
			// replay instead of vanishing with the retry timer
			c.park(context.Background(), task, err)
			return
		case <-timer.C:
		}
		if submitErr := c.submit(syncTask{event: task.event, attempt: next}); submitErr != nil {
			c.logger.Warn("event retry could not be requeued, parking",
				zap.String("event_id", task.event.EventID), zap.Error(submitErr))
			c.park(context.Background(), task, submitErr)
		}
	}()
}

// park moves an exhausted event into the dead-letter store
func (c *SyncCoordinator) park(ctx context.Context, task syncTask, cause error) {
	parked, err := integration.NewParkedEvent(task.event, task.attempt+1, cause.Error())
	if err != nil {
		c.logger.Error("failed to serialize event for dead letter",
			zap.String("event_id", task.event.EventID), zap.Error(err))
		return
	}
	if err := c.deadLetters.Save(ctx, parked); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return
		}
		c.logger.Error("failed to park event",
			zap.String("event_id", task.event.EventID), zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.RecordParked(ctx)
	}
	c.logger.Warn("event parked after exhausting retries",
		zap.String("event_id", task.event.EventID),
		zap.Int("retries", task.attempt+1),
		zap.String("reason", cause.Error()))
}

// backoff returns the delay before the given attempt, doubling from the
// base and capped at the configured maximum
func (c *SyncCoordinator) backoff(attempt int) time.Duration {
	delay := c.cfg.RetryBaseDelay << (attempt - 1)
	if delay > c.cfg.RetryMaxDelay || delay <= 0 {
		return c.cfg.RetryMaxDelay
	}
	return delay
}

// isRetryable reports whether the pipeline error is worth another attempt.
// Validation errors can never succeed; everything else (not-yet-synced,
// in-flight reservations, repository and platform failures) is transient.
func isRetryable(err error) bool {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code != integration.ErrCodeValidation
	}
	return true
}

func (c *SyncCoordinator) effectRetryLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.EffectRetryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			batch := c.cfg.EffectRetryBatch
			if batch <= 0 {
				batch = 50
			}
			retried, succeeded, err := c.dispatcher.RetryFailed(context.Background(), batch)
			if err != nil {
				c.logger.Warn("effect retry pass failed", zap.Error(err))
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordEffectDispatches(context.Background(), int64(retried))
			}
			if retried > 0 {
				c.logger.Info("effect retry pass",
					zap.Int("retried", retried), zap.Int("succeeded", succeeded))
			}
		}
	}
}

func (c *SyncCoordinator) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.pollOnce(context.Background())
		}
	}
}

// pollOnce pulls the storefront for orders modified since the last poll.
// The window is stretched backwards by the configured overlap; duplicate
// deliveries are harmless because the ledger dedups on event id.
func (c *SyncCoordinator) pollOnce(ctx context.Context) {
	c.mu.Lock()
	since := c.lastPoll.Add(-c.cfg.PollOverlap)
	now := time.Now()
	c.lastPoll = now
	c.mu.Unlock()

	events, err := c.platform.PullOrders(ctx, since, now)
	if err != nil {
		c.logger.Warn("storefront poll failed", zap.Error(err))
		return
	}
	submitted := 0
	for _, event := range events {
		if err := c.Submit(event); err != nil {
			c.logger.Warn("poll event submit failed",
				zap.String("event_id", event.EventID), zap.Error(err))
			continue
		}
		submitted++
	}
	if submitted > 0 {
		c.logger.Info("storefront poll",
			zap.Int("pulled", len(events)), zap.Int("submitted", submitted))
	}
}
