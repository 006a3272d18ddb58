package handler

import (
	"errors"
	"io"

	appintegration "github.com/atelier/backend/internal/application/integration"
	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/infrastructure/scheduler"
	"github.com/atelier/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// EventNormalizer converts a raw storefront payload into a normalized event
type EventNormalizer interface {
	Normalize(raw []byte) (*integration.ExternalOrderEvent, error)
}

// WebhookHandler receives storefront order webhooks and feeds them into the
// sync pipeline. Processing is asynchronous: a 202 only means the event was
// accepted for reconciliation, not that it was applied.
type WebhookHandler struct {
	BaseHandler
	normalizer EventNormalizer
	submitter  appintegration.EventSubmitter
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(normalizer EventNormalizer, submitter appintegration.EventSubmitter) *WebhookHandler {
	return &WebhookHandler{
		normalizer: normalizer,
		submitter:  submitter,
	}
}

// RegisterRoutes registers webhook routes on the API group
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/woocommerce/orders", h.ReceiveOrder)
	}
}

// WebhookAcceptedResponse reports the accepted event
// @Description Acknowledgement for an accepted webhook delivery
type WebhookAcceptedResponse struct {
	EventID         string `json:"event_id" example:"wh-20260830-001"`
	ExternalOrderID string `json:"external_order_id" example:"813"`
	Kind            string `json:"kind" example:"status_changed"`
}

// ReceiveOrder godoc
// @Summary      Receive a WooCommerce order webhook
// @Description  Normalize the delivery into an order event and queue it for reconciliation
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      202 {object} dto.Response{data=WebhookAcceptedResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /webhooks/woocommerce/orders [post]
func (h *WebhookHandler) ReceiveOrder(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(raw) == 0 {
		h.BadRequest(c, "Request body is empty")
		return
	}

	event, err := h.normalizer.Normalize(raw)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if err := h.submitter.Submit(event); err != nil {
		h.handleSubmitError(c, err)
		return
	}

	h.Accepted(c, WebhookAcceptedResponse{
		EventID:         event.EventID,
		ExternalOrderID: event.ExternalOrderID,
		Kind:            string(event.Kind),
	})
}

// handleSubmitError maps pipeline submission failures onto backpressure
// statuses so callers know the delivery can be retried.
func (b *BaseHandler) handleSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrSyncQueueFull):
		b.TooManyRequests(c, dto.ErrCodeQueueFull, "Sync queue is full, retry the delivery later")
	case errors.Is(err, scheduler.ErrCoordinatorNotRunning):
		b.ServiceUnavailable(c, "Sync pipeline is not accepting events")
	default:
		b.HandleError(c, err)
	}
}
