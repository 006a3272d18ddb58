package persistence

import (
	"context"
	"errors"

	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTransitionRepository implements order.TransitionRepository using GORM.
// The transition log is append-only; this repository never updates or
// deletes rows.
type GormTransitionRepository struct {
	db *gorm.DB
}

// NewGormTransitionRepository creates a new GormTransitionRepository
func NewGormTransitionRepository(db *gorm.DB) *GormTransitionRepository {
	return &GormTransitionRepository{db: db}
}

// Append records a transition
func (r *GormTransitionRepository) Append(ctx context.Context, t *order.Transition) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// FindByOrder returns all transitions for an order, oldest first
func (r *GormTransitionRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]order.Transition, error) {
	var transitions []order.Transition
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("applied_at ASC").
		Find(&transitions).Error; err != nil {
		return nil, err
	}
	return transitions, nil
}

// FindByTrigger finds the transition recorded for a triggering event, or nil
func (r *GormTransitionRepository) FindByTrigger(ctx context.Context, orderID uuid.UUID, triggerEventID string) (*order.Transition, error) {
	var t order.Transition
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND trigger_event_id = ?", orderID, triggerEventID).
		First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// FindLatest returns the most recent transition for an order, or nil
func (r *GormTransitionRepository) FindLatest(ctx context.Context, orderID uuid.UUID) (*order.Transition, error) {
	var t order.Transition
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("applied_at DESC").
		First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// FindByID finds a transition by its ID
func (r *GormTransitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Transition, error) {
	var t order.Transition
	if err := r.db.WithContext(ctx).
		First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
