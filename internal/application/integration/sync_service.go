package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/atelier/backend/internal/infrastructure/logger"
)

// EventSubmitter enqueues an event for asynchronous reconciliation.
// The sync coordinator implements it.
type EventSubmitter interface {
	Submit(event *integration.ExternalOrderEvent) error
}

// SyncService exposes the operator surface of the sync pipeline: the
// processed-event ledger, the dead-letter queue, and dead-letter replay.
type SyncService struct {
	records     integration.SyncRecordRepository
	deadLetters integration.DeadLetterRepository
	submitter   EventSubmitter
}

// NewSyncService creates a new SyncService
func NewSyncService(
	records integration.SyncRecordRepository,
	deadLetters integration.DeadLetterRepository,
	submitter EventSubmitter,
) *SyncService {
	return &SyncService{
		records:     records,
		deadLetters: deadLetters,
		submitter:   submitter,
	}
}

// ListRecords retrieves processed-event ledger entries
func (s *SyncService) ListRecords(ctx context.Context, filter SyncRecordListFilter) ([]SyncRecordResponse, int64, error) {
	domainFilter := filter.toDomainFilter()

	records, err := s.records.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.records.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToSyncRecordResponses(records), total, nil
}

// ListDeadLetters retrieves parked events
func (s *SyncService) ListDeadLetters(ctx context.Context, filter DeadLetterListFilter) ([]DeadLetterResponse, int64, error) {
	domainFilter := filter.toDomainFilter()

	parked, err := s.deadLetters.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.deadLetters.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToDeadLetterResponses(parked), total, nil
}

// GetDeadLetter retrieves one parked event
func (s *SyncService) GetDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetterResponse, error) {
	parked, err := s.deadLetters.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToDeadLetterResponse(parked)
	return &response, nil
}

// ReplayDeadLetter re-submits a parked event into the pipeline under its
// original event id. If the event was meanwhile committed to the ledger,
// the replay short-circuits there; replaying is always safe.
func (s *SyncService) ReplayDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetterResponse, error) {
	parked, err := s.deadLetters.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	event, err := parked.Event()
	if err != nil {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"parked event payload is not replayable: "+err.Error())
	}
	if err := s.submitter.Submit(event); err != nil {
		return nil, err
	}

	parked.MarkReplayed()
	if err := s.deadLetters.Save(ctx, parked); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("dead letter replayed",
		zap.String("event_id", parked.EventID),
		zap.String("external_order_id", parked.ExternalOrderID))

	response := ToDeadLetterResponse(parked)
	return &response, nil
}

// ----------------------------------------------------------------
// DTOs
// ----------------------------------------------------------------

// SyncRecordListFilter represents filters for listing ledger entries
type SyncRecordListFilter struct {
	ExternalOrderID string     `form:"external_order_id"`
	LocalOrderID    *uuid.UUID `form:"local_order_id"`
	Outcome         string     `form:"outcome" binding:"omitempty,oneof=applied rejected"`
	StartDate       *time.Time `form:"start_date"`
	EndDate         *time.Time `form:"end_date"`
	Page            int        `form:"page" binding:"min=0"`
	PageSize        int        `form:"page_size" binding:"min=0,max=100"`
	OrderBy         string     `form:"order_by"`
	OrderDir        string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

func (f SyncRecordListFilter) toDomainFilter() shared.Filter {
	domainFilter := listFilterDefaults(f.Page, f.PageSize, f.OrderBy, f.OrderDir, "applied_at")
	if f.ExternalOrderID != "" {
		domainFilter.Filters["external_order_id"] = f.ExternalOrderID
	}
	if f.LocalOrderID != nil {
		domainFilter.Filters["local_order_id"] = *f.LocalOrderID
	}
	if f.Outcome != "" {
		domainFilter.Filters["outcome"] = f.Outcome
	}
	if f.StartDate != nil {
		domainFilter.Filters["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		domainFilter.Filters["end_date"] = *f.EndDate
	}
	return domainFilter
}

// DeadLetterListFilter represents filters for listing parked events
type DeadLetterListFilter struct {
	ExternalOrderID string     `form:"external_order_id"`
	Replayed        *bool      `form:"replayed"`
	StartDate       *time.Time `form:"start_date"`
	EndDate         *time.Time `form:"end_date"`
	Page            int        `form:"page" binding:"min=0"`
	PageSize        int        `form:"page_size" binding:"min=0,max=100"`
	OrderBy         string     `form:"order_by"`
	OrderDir        string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

func (f DeadLetterListFilter) toDomainFilter() shared.Filter {
	domainFilter := listFilterDefaults(f.Page, f.PageSize, f.OrderBy, f.OrderDir, "parked_at")
	if f.ExternalOrderID != "" {
		domainFilter.Filters["external_order_id"] = f.ExternalOrderID
	}
	if f.Replayed != nil {
		domainFilter.Filters["replayed"] = *f.Replayed
	}
	if f.StartDate != nil {
		domainFilter.Filters["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		domainFilter.Filters["end_date"] = *f.EndDate
	}
	return domainFilter
}

func listFilterDefaults(page, pageSize int, orderBy, orderDir, defaultOrderBy string) shared.Filter {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if orderBy == "" {
		orderBy = defaultOrderBy
	}
	if orderDir == "" {
		orderDir = "desc"
	}
	return shared.Filter{
		Page:     page,
		PageSize: pageSize,
		OrderBy:  orderBy,
		OrderDir: orderDir,
		Filters:  make(map[string]interface{}),
	}
}

// SyncRecordResponse represents a ledger entry in API responses
type SyncRecordResponse struct {
	ID              uuid.UUID  `json:"id"`
	EventID         string     `json:"event_id"`
	ExternalOrderID string     `json:"external_order_id"`
	LocalOrderID    *uuid.UUID `json:"local_order_id,omitempty"`
	ResultingStatus string     `json:"resulting_status,omitempty"`
	Outcome         string     `json:"outcome"`
	RejectReason    string     `json:"reject_reason,omitempty"`
	AppliedAt       time.Time  `json:"applied_at"`
}

// DeadLetterResponse represents a parked event in API responses
type DeadLetterResponse struct {
	ID              uuid.UUID  `json:"id"`
	EventID         string     `json:"event_id"`
	ExternalOrderID string     `json:"external_order_id"`
	RetryCount      int        `json:"retry_count"`
	Reason          string     `json:"reason"`
	ParkedAt        time.Time  `json:"parked_at"`
	ReplayedAt      *time.Time `json:"replayed_at,omitempty"`
}

// ToSyncRecordResponse converts a ledger entry to a response DTO
func ToSyncRecordResponse(record *integration.SyncRecord) SyncRecordResponse {
	return SyncRecordResponse{
		ID:              record.ID,
		EventID:         record.EventID,
		ExternalOrderID: record.ExternalOrderID,
		LocalOrderID:    record.LocalOrderID,
		ResultingStatus: record.ResultingStatus,
		Outcome:         string(record.Outcome),
		RejectReason:    record.RejectReason,
		AppliedAt:       record.AppliedAt,
	}
}

// ToSyncRecordResponses converts ledger entries to response DTOs
func ToSyncRecordResponses(records []integration.SyncRecord) []SyncRecordResponse {
	responses := make([]SyncRecordResponse, len(records))
	for i := range records {
		responses[i] = ToSyncRecordResponse(&records[i])
	}
	return responses
}

// ToDeadLetterResponse converts a parked event to a response DTO
func ToDeadLetterResponse(parked *integration.ParkedEvent) DeadLetterResponse {
	return DeadLetterResponse{
		ID:              parked.ID,
		EventID:         parked.EventID,
		ExternalOrderID: parked.ExternalOrderID,
		RetryCount:      parked.RetryCount,
		Reason:          parked.Reason,
		ParkedAt:        parked.ParkedAt,
		ReplayedAt:      parked.ReplayedAt,
	}
}

// ToDeadLetterResponses converts parked events to response DTOs
func ToDeadLetterResponses(parked []integration.ParkedEvent) []DeadLetterResponse {
	responses := make([]DeadLetterResponse, len(parked))
	for i := range parked {
		responses[i] = ToDeadLetterResponse(&parked[i])
	}
	return responses
}
