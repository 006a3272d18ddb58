// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormBacklogMetricsProvider implements BacklogMetricsProvider using GORM.
// It queries the parked_events and dispatch_receipts tables directly for
// aggregated counts.
type GormBacklogMetricsProvider struct {
	db *gorm.DB
}

// NewGormBacklogMetricsProvider creates a new GormBacklogMetricsProvider.
func NewGormBacklogMetricsProvider(db *gorm.DB) *GormBacklogMetricsProvider {
	return &GormBacklogMetricsProvider{db: db}
}

// GetDeadLetterBacklog returns the number of parked events awaiting replay.
func (p *GormBacklogMetricsProvider) GetDeadLetterBacklog(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("parked_events").
		Where("replayed_at IS NULL").
		Count(&count).Error

	return count, err
}

// GetFailedEffectCount returns the number of dispatch receipts in failed state.
func (p *GormBacklogMetricsProvider) GetFailedEffectCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("dispatch_receipts").
		Where("status = ?", "failed").
		Count(&count).Error

	return count, err
}
