package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDeadLetterRepository implements integration.DeadLetterRepository using GORM
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewGormDeadLetterRepository creates a new GormDeadLetterRepository
func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// FindByID finds a parked event by its ID
func (r *GormDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.ParkedEvent, error) {
	var parked integration.ParkedEvent
	if err := r.db.WithContext(ctx).
		First(&parked, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &parked, nil
}

// FindByEventID finds a parked event by the original event id, or nil
func (r *GormDeadLetterRepository) FindByEventID(ctx context.Context, eventID string) (*integration.ParkedEvent, error) {
	var parked integration.ParkedEvent
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&parked).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &parked, nil
}

// FindAll finds parked events matching the filter
func (r *GormDeadLetterRepository) FindAll(ctx context.Context, filter shared.Filter) ([]integration.ParkedEvent, error) {
	var parked []integration.ParkedEvent
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&integration.ParkedEvent{}),
		filter,
	)

	if err := query.Find(&parked).Error; err != nil {
		return nil, err
	}
	return parked, nil
}

// Count counts parked events matching the filter
func (r *GormDeadLetterRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&integration.ParkedEvent{}), filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a parked event
func (r *GormDeadLetterRepository) Save(ctx context.Context, parked *integration.ParkedEvent) error {
	return r.db.WithContext(ctx).Save(parked).Error
}

// Delete removes a parked event after successful replay
func (r *GormDeadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&integration.ParkedEvent{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// applyFilter applies filter options to the query
func (r *GormDeadLetterRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, ParkedEventSortFields, "parked_at")
		query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("parked_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormDeadLetterRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("event_id ILIKE ? OR external_order_id ILIKE ?",
			searchPattern, searchPattern)
	}

	for key, value := range filter.Filters {
		switch key {
		case "external_order_id":
			query = query.Where("external_order_id = ?", value)
		case "replayed":
			if replayed, ok := value.(bool); ok {
				if replayed {
					query = query.Where("replayed_at IS NOT NULL")
				} else {
					query = query.Where("replayed_at IS NULL")
				}
			}
		case "start_date":
			if t, ok := value.(time.Time); ok {
				query = query.Where("parked_at >= ?", t)
			}
		case "end_date":
			if t, ok := value.(time.Time); ok {
				query = query.Where("parked_at <= ?", t)
			}
		}
	}

	return query
}
