package persistence

import (
	"context"
	"errors"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDispatchReceiptRepository implements integration.DispatchReceiptRepository using GORM
type GormDispatchReceiptRepository struct {
	db *gorm.DB
}

// NewGormDispatchReceiptRepository creates a new GormDispatchReceiptRepository
func NewGormDispatchReceiptRepository(db *gorm.DB) *GormDispatchReceiptRepository {
	return &GormDispatchReceiptRepository{db: db}
}

// FindByTransition returns the receipts recorded for a transition
func (r *GormDispatchReceiptRepository) FindByTransition(ctx context.Context, transitionID uuid.UUID) ([]integration.DispatchReceipt, error) {
	var receipts []integration.DispatchReceipt
	if err := r.db.WithContext(ctx).
		Where("transition_id = ?", transitionID).
		Order("created_at ASC").
		Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// FindByTransitionAndEffect finds one receipt, or nil
func (r *GormDispatchReceiptRepository) FindByTransitionAndEffect(ctx context.Context, transitionID uuid.UUID, effect integration.EffectKind) (*integration.DispatchReceipt, error) {
	var receipt integration.DispatchReceipt
	if err := r.db.WithContext(ctx).
		Where("transition_id = ? AND effect = ?", transitionID, effect).
		First(&receipt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

// FindFailed returns failed receipts eligible for retry, oldest first
func (r *GormDispatchReceiptRepository) FindFailed(ctx context.Context, limit int) ([]integration.DispatchReceipt, error) {
	var receipts []integration.DispatchReceipt
	query := r.db.WithContext(ctx).
		Where("status = ?", integration.DispatchStatusFailed).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// FindAll finds receipts matching the filter
func (r *GormDispatchReceiptRepository) FindAll(ctx context.Context, filter shared.Filter) ([]integration.DispatchReceipt, error) {
	var receipts []integration.DispatchReceipt
	query := r.db.WithContext(ctx).Model(&integration.DispatchReceipt{})

	for key, value := range filter.Filters {
		switch key {
		case "order_id":
			query = query.Where("order_id = ?", value)
		case "effect":
			query = query.Where("effect = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		}
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	query = query.Order("created_at DESC")

	if err := query.Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// Save creates or updates a receipt. The unique index on
// (transition_id, effect) turns a concurrent double insert into
// shared.ErrAlreadyExists.
func (r *GormDispatchReceiptRepository) Save(ctx context.Context, receipt *integration.DispatchReceipt) error {
	if err := r.db.WithContext(ctx).Save(receipt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}
