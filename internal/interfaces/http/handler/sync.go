package handler

import (
	appintegration "github.com/atelier/backend/internal/application/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SyncHandler exposes the sync ledger and the dead letter queue
type SyncHandler struct {
	BaseHandler
	syncService *appintegration.SyncService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService *appintegration.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// RegisterRoutes registers sync routes on the API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.GET("/records", h.ListRecords)
		sync.GET("/dead-letters", h.ListDeadLetters)
		sync.GET("/dead-letters/:id", h.GetDeadLetter)
		sync.POST("/dead-letters/:id/replay", h.ReplayDeadLetter)
	}
}

// ListRecords godoc
// @Summary      List sync ledger records
// @Description  List processed event records with filtering and pagination
// @Tags         sync
// @Produce      json
// @Param        external_order_id query string false "Filter by storefront order ID"
// @Param        outcome query string false "Filter by outcome" Enums(applied, rejected)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]appintegration.SyncRecordResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /sync/records [get]
func (h *SyncHandler) ListRecords(c *gin.Context) {
	var filter appintegration.SyncRecordListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	records, total, err := h.syncService.ListRecords(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	h.SuccessWithMeta(c, records, total, filter.Page, filter.PageSize)
}

// ListDeadLetters godoc
// @Summary      List dead letter events
// @Description  List parked events that exhausted their retries
// @Tags         sync
// @Produce      json
// @Param        external_order_id query string false "Filter by storefront order ID"
// @Param        replayed query bool false "Filter by replay state"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]appintegration.DeadLetterResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /sync/dead-letters [get]
func (h *SyncHandler) ListDeadLetters(c *gin.Context) {
	var filter appintegration.DeadLetterListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	letters, total, err := h.syncService.ListDeadLetters(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	h.SuccessWithMeta(c, letters, total, filter.Page, filter.PageSize)
}

// GetDeadLetter godoc
// @Summary      Get a dead letter event
// @Tags         sync
// @Produce      json
// @Param        id path string true "Dead Letter ID" format(uuid)
// @Success      200 {object} dto.Response{data=appintegration.DeadLetterResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /sync/dead-letters/{id} [get]
func (h *SyncHandler) GetDeadLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid dead letter ID format")
		return
	}

	letter, err := h.syncService.GetDeadLetter(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, letter)
}

// ReplayDeadLetter godoc
// @Summary      Replay a dead letter event
// @Description  Resubmit a parked event into the sync pipeline and mark it replayed
// @Tags         sync
// @Produce      json
// @Param        id path string true "Dead Letter ID" format(uuid)
// @Success      200 {object} dto.Response{data=appintegration.DeadLetterResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /sync/dead-letters/{id}/replay [post]
func (h *SyncHandler) ReplayDeadLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid dead letter ID format")
		return
	}

	letter, err := h.syncService.ReplayDeadLetter(c.Request.Context(), id)
	if err != nil {
		h.handleSubmitError(c, err)
		return
	}

	h.Success(c, letter)
}
