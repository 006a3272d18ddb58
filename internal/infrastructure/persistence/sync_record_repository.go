package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSyncRecordRepository implements integration.SyncRecordRepository using GORM
type GormSyncRecordRepository struct {
	db *gorm.DB
}

// NewGormSyncRecordRepository creates a new GormSyncRecordRepository
func NewGormSyncRecordRepository(db *gorm.DB) *GormSyncRecordRepository {
	return &GormSyncRecordRepository{db: db}
}

// FindByEventID finds the committed record for an event, or nil
func (r *GormSyncRecordRepository) FindByEventID(ctx context.Context, eventID string) (*integration.SyncRecord, error) {
	var record integration.SyncRecord
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindAll finds sync records matching the filter
func (r *GormSyncRecordRepository) FindAll(ctx context.Context, filter shared.Filter) ([]integration.SyncRecord, error) {
	var records []integration.SyncRecord
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&integration.SyncRecord{}),
		filter,
	)

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Count counts sync records matching the filter
func (r *GormSyncRecordRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&integration.SyncRecord{}), filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save inserts a record. The unique index on event_id turns a double
// commit into shared.ErrAlreadyExists.
func (r *GormSyncRecordRepository) Save(ctx context.Context, record *integration.SyncRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// applyFilter applies filter options to the query
func (r *GormSyncRecordRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		sortField := ValidateSortField(filter.OrderBy, SyncRecordSortFields, "applied_at")
		query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))
	} else {
		query = query.Order("applied_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormSyncRecordRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("event_id ILIKE ? OR external_order_id ILIKE ?",
			searchPattern, searchPattern)
	}

	for key, value := range filter.Filters {
		switch key {
		case "external_order_id":
			query = query.Where("external_order_id = ?", value)
		case "outcome":
			query = query.Where("outcome = ?", value)
		case "local_order_id":
			query = query.Where("local_order_id = ?", value)
		case "start_date":
			if t, ok := value.(time.Time); ok {
				query = query.Where("applied_at >= ?", t)
			}
		case "end_date":
			if t, ok := value.(time.Time); ok {
				query = query.Where("applied_at <= ?", t)
			}
		}
	}

	return query
}

// isUniqueViolation detects unique constraint errors the driver does not
// translate into gorm.ErrDuplicatedKey
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique failed")
}
