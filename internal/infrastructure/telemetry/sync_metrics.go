// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics provides metrics for the order synchronization pipeline.
// It tracks event reconciliation outcomes, retries, parked events, and
// the health of the side-effect dispatch queue.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	eventsReconciledTotal *Counter
	eventRetriesTotal     *Counter
	eventsParkedTotal     *Counter
	effectDispatchTotal   *Counter

	// Gauge metrics (point-in-time values)
	deadLetterBacklog  *Gauge
	failedEffectsCount *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	backlogProvider BacklogMetricsProvider
}

// BacklogMetricsProvider provides backlog data for periodic metrics
// collection. This interface allows the telemetry layer to query the
// dead-letter and receipt stores without depending on persistence directly.
type BacklogMetricsProvider interface {
	// GetDeadLetterBacklog returns the number of parked events awaiting replay
	GetDeadLetterBacklog(ctx context.Context) (int64, error)

	// GetFailedEffectCount returns the number of dispatch receipts in failed state
	GetFailedEffectCount(ctx context.Context) (int64, error)
}

// SyncMetricsConfig holds configuration for sync pipeline metrics.
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	BacklogProvider BacklogMetricsProvider
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	// Initialize counter metrics
	var err error

	sm.eventsReconciledTotal, err = NewCounter(
		cfg.Meter,
		"sync_events_reconciled_total",
		"Total number of external order events that completed reconciliation",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	sm.eventRetriesTotal, err = NewCounter(
		cfg.Meter,
		"sync_event_retries_total",
		"Total number of reconciliation retries scheduled",
		"{retries}",
	)
	if err != nil {
		return nil, err
	}

	sm.eventsParkedTotal, err = NewCounter(
		cfg.Meter,
		"sync_events_parked_total",
		"Total number of events parked in the dead-letter store",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	sm.effectDispatchTotal, err = NewCounter(
		cfg.Meter,
		"sync_effect_dispatch_total",
		"Total number of side-effect dispatch attempts",
		"{dispatches}",
	)
	if err != nil {
		return nil, err
	}

	// Backlog gauge metrics
	sm.deadLetterBacklog, err = NewGauge(
		cfg.Meter,
		"sync_dead_letter_backlog",
		"Number of parked events awaiting operator replay",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	sm.failedEffectsCount, err = NewGauge(
		cfg.Meter,
		"sync_failed_effects_count",
		"Number of dispatch receipts currently in failed state",
		"{receipts}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// =============================================================================
// Reconciliation Metrics
// =============================================================================

// RecordReconciled records one event leaving the pipeline with the given
// outcome ("applied" or "rejected"). Deduplicated replays count too, since
// they still consumed a pipeline pass.
func (sm *SyncMetrics) RecordReconciled(ctx context.Context, outcome string) {
	sm.eventsReconciledTotal.Inc(ctx,
		AttrSyncOutcome.String(outcome),
	)
}

// RecordRetry records a reconciliation retry being scheduled.
func (sm *SyncMetrics) RecordRetry(ctx context.Context) {
	sm.eventRetriesTotal.Inc(ctx)
}

// RecordParked records an event being moved to the dead-letter store
// after exhausting its retry budget.
func (sm *SyncMetrics) RecordParked(ctx context.Context) {
	sm.eventsParkedTotal.Inc(ctx)
}

// RecordEffectDispatches records a batch of side-effect dispatch attempts.
func (sm *SyncMetrics) RecordEffectDispatches(ctx context.Context, attempted int64) {
	if attempted <= 0 {
		return
	}
	sm.effectDispatchTotal.Add(ctx, attempted)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects backlog metrics every interval (default: 1 minute).
// This is non-blocking - use Stop() to stop collection.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go sm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	sm.collectBacklogMetrics(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic sync metrics collection")
			return
		case <-ticker.C:
			sm.collectBacklogMetrics(ctx)
		}
	}
}

// collectBacklogMetrics collects backlog gauge metrics.
func (sm *SyncMetrics) collectBacklogMetrics(ctx context.Context) {
	if sm.backlogProvider == nil {
		sm.logger.Debug("No backlog provider configured, skipping backlog metrics collection")
		return
	}

	backlog, err := sm.backlogProvider.GetDeadLetterBacklog(ctx)
	if err != nil {
		sm.logger.Warn("Failed to get dead-letter backlog", zap.Error(err))
	} else {
		sm.deadLetterBacklog.Record(ctx, backlog)
	}

	failed, err := sm.backlogProvider.GetFailedEffectCount(ctx)
	if err != nil {
		sm.logger.Warn("Failed to get failed effect count", zap.Error(err))
	} else {
		sm.failedEffectsCount.Record(ctx, failed)
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
