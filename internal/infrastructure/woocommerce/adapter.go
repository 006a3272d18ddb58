package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier/backend/internal/domain/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/shared"
)

// maxResponseSize is the maximum allowed response size from the WooCommerce API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// wooTimeLayout is how WooCommerce formats *_gmt timestamps
const wooTimeLayout = "2006-01-02T15:04:05"

// PlatformCodeWooCommerce identifies this storefront implementation
const PlatformCodeWooCommerce = "woocommerce"

// Adapter implements the StorefrontPlatform port for WooCommerce stores.
// It is the only component that knows the WooCommerce wire shape; everything
// downstream works on normalized ExternalOrderEvents.
type Adapter struct {
	config     *Config
	httpClient *http.Client
}

// NewAdapter creates a new WooCommerce adapter with the given configuration
func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// PlatformCode returns the platform code this adapter handles
func (a *Adapter) PlatformCode() string {
	return PlatformCodeWooCommerce
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

// Normalize translates a raw WooCommerce order payload into an
// ExternalOrderEvent. It performs no business logic and no I/O.
//
// The event id is derived from the order id and the modification timestamp,
// so redelivery of the same order revision (webhook retry, webhook/poll
// overlap) produces the same dedup key.
func (a *Adapter) Normalize(raw []byte) (*integration.ExternalOrderEvent, error) {
	var wo WooOrder
	if err := json.Unmarshal(raw, &wo); err != nil {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"malformed order payload: "+err.Error())
	}

	if wo.ID == 0 {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"order payload is missing the order id")
	}
	if wo.DateModifiedGMT == "" {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"order payload is missing the modification timestamp")
	}
	modifiedAt, err := time.ParseInLocation(wooTimeLayout, wo.DateModifiedGMT, time.UTC)
	if err != nil {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"unparsable modification timestamp: "+wo.DateModifiedGMT)
	}
	if wo.Status == "" {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"order payload is missing the status")
	}
	status, ok := MapWooStatus(wo.Status)
	if !ok {
		return nil, shared.NewDomainError(integration.ErrCodeValidation,
			"unknown woocommerce status: "+wo.Status)
	}

	event := &integration.ExternalOrderEvent{
		EventID:         fmt.Sprintf("wc-%d-%d", wo.ID, modifiedAt.Unix()),
		ExternalOrderID: strconv.FormatInt(wo.ID, 10),
		Kind:            classifyEvent(&wo),
		OccurredAt:      modifiedAt,
		Snapshot:        buildSnapshot(&wo, status),
		RawPayload:      string(raw),
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

// classifyEvent derives the event kind from the payload. WooCommerce
// webhooks do not carry the topic in the body, so the kind is inferred:
// a cancellation status wins, an untouched order is a creation, anything
// else is an update.
func classifyEvent(wo *WooOrder) integration.EventKind {
	switch wo.Status {
	case "cancelled", "failed":
		return integration.EventKindCancelled
	}
	if wo.DateCreatedGMT != "" && wo.DateCreatedGMT == wo.DateModifiedGMT {
		return integration.EventKindCreated
	}
	return integration.EventKindUpdated
}

// buildSnapshot maps the order payload onto the snapshot field groups
func buildSnapshot(wo *WooOrder, status order.OrderStatus) integration.OrderSnapshot {
	snapshot := integration.OrderSnapshot{
		Status:   status,
		Currency: wo.Currency,
	}

	buyer := &integration.BuyerInfo{
		Name:  strings.TrimSpace(wo.Billing.FirstName + " " + wo.Billing.LastName),
		Email: wo.Billing.Email,
		Phone: wo.Billing.Phone,
	}
	if wo.CustomerID > 0 {
		buyer.ExternalID = strconv.FormatInt(wo.CustomerID, 10)
	}
	snapshot.Buyer = buyer

	if wo.Shipping.Address1 != "" {
		phone := wo.Shipping.Phone
		if phone == "" {
			phone = wo.Billing.Phone
		}
		snapshot.Shipping = &integration.SnapshotShipping{
			ReceiverName:  strings.TrimSpace(wo.Shipping.FirstName + " " + wo.Shipping.LastName),
			ReceiverPhone: phone,
			Address:       wo.Shipping.Address1,
			City:          wo.Shipping.City,
			PostalCode:    wo.Shipping.Postcode,
		}
	}

	if wo.LineItems != nil {
		items := make([]integration.SnapshotItem, 0, len(wo.LineItems))
		for _, li := range wo.LineItems {
			items = append(items, integration.SnapshotItem{
				ProductName: li.Name,
				Quantity:    li.Quantity,
				UnitPrice:   decimal.NewFromFloat(li.Price),
			})
		}
		snapshot.Items = items
	}

	if wo.Total != "" {
		if total, err := decimal.NewFromString(wo.Total); err == nil {
			snapshot.Total = &total
		}
	}

	return snapshot
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// PullOrders fetches orders modified in the given window and returns them
// as normalized events, oldest first. Pages through the orders collection
// until a short page is returned.
func (a *Adapter) PullOrders(ctx context.Context, since, until time.Time) ([]*integration.ExternalOrderEvent, error) {
	events := make([]*integration.ExternalOrderEvent, 0)

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("modified_after", since.UTC().Format(wooTimeLayout))
		query.Set("modified_before", until.UTC().Format(wooTimeLayout))
		query.Set("orderby", "modified")
		query.Set("order", "asc")
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(a.config.PageSize))

		body, err := a.doRequest(ctx, http.MethodGet, a.config.OrdersURL(), query, nil)
		if err != nil {
			return nil, err
		}

		// Keep each order's raw payload intact for the event record
		var rawOrders []json.RawMessage
		if err := json.Unmarshal(body, &rawOrders); err != nil {
			return nil, fmt.Errorf("%w: failed to parse orders page: %v",
				integration.ErrPlatformInvalidResponse, err)
		}

		for _, raw := range rawOrders {
			event, err := a.Normalize(raw)
			if err != nil {
				// Orders in plugin-specific statuses outside the mapped
				// vocabulary are not part of the sync contract
				continue
			}
			events = append(events, event)
		}

		if len(rawOrders) < a.config.PageSize {
			break
		}
	}

	return events, nil
}

// UpdateOrderStatus pushes a local status change back to the storefront
func (a *Adapter) UpdateOrderStatus(ctx context.Context, externalOrderID string, status order.OrderStatus) error {
	if externalOrderID == "" {
		return shared.NewDomainError(integration.ErrCodeValidation, "external order id cannot be empty")
	}
	if _, err := strconv.ParseInt(externalOrderID, 10, 64); err != nil {
		return shared.NewDomainError(integration.ErrCodeValidation,
			"invalid external order id: "+externalOrderID)
	}

	wooStatus := MapOrderStatus(status)
	if wooStatus == "" {
		return shared.NewDomainError(integration.ErrCodeValidation,
			"status has no woocommerce equivalent: "+string(status))
	}

	payload, err := json.Marshal(wooStatusUpdateRequest{Status: wooStatus})
	if err != nil {
		return err
	}

	_, err = a.doRequest(ctx, http.MethodPut,
		a.config.OrdersURL()+"/"+externalOrderID, nil, bytes.NewReader(payload))
	return err
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// doRequest performs an authenticated HTTP request against the store API
func (a *Adapter) doRequest(ctx context.Context, method, rawURL string, query url.Values, body io.Reader) ([]byte, error) {
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("woocommerce: failed to create request: %w", err)
	}
	req.SetBasicAuth(a.config.ConsumerKey, a.config.ConsumerSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("woocommerce: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, integration.ErrPlatformRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var wooErr wooErrorResponse
		if json.Unmarshal(respBody, &wooErr) == nil && wooErr.Message != "" {
			return nil, fmt.Errorf("%w: %s - %s",
				integration.ErrPlatformRequestFailed, wooErr.Code, wooErr.Message)
		}
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformRequestFailed, resp.StatusCode)
	}

	return respBody, nil
}

// ---------------------------------------------------------------------------
// Status Mapping
// ---------------------------------------------------------------------------

// MapWooStatus maps a WooCommerce order status to the local vocabulary.
// The ready-to-ship and shipped statuses come from shipment plugins; stock
// WooCommerce never reports them.
func MapWooStatus(status string) (order.OrderStatus, bool) {
	switch strings.TrimPrefix(status, "wc-") {
	case "pending", "on-hold":
		return order.OrderStatusDraft, true
	case "processing":
		return order.OrderStatusInProduction, true
	case "ready-to-ship":
		return order.OrderStatusReadyToShip, true
	case "shipped":
		return order.OrderStatusShipped, true
	case "completed":
		return order.OrderStatusCompleted, true
	case "cancelled", "failed":
		return order.OrderStatusCancelled, true
	case "refunded":
		return order.OrderStatusRefunded, true
	default:
		return "", false
	}
}

// MapOrderStatus maps a local order status to the WooCommerce vocabulary
func MapOrderStatus(status order.OrderStatus) string {
	switch status {
	case order.OrderStatusDraft:
		return "pending"
	case order.OrderStatusConfirmed, order.OrderStatusInProduction:
		return "processing"
	case order.OrderStatusReadyToShip:
		return "ready-to-ship"
	case order.OrderStatusShipped:
		return "shipped"
	case order.OrderStatusCompleted:
		return "completed"
	case order.OrderStatusCancelled:
		return "cancelled"
	case order.OrderStatusRefunded:
		return "refunded"
	default:
		return ""
	}
}

// Ensure Adapter implements the StorefrontPlatform port
var _ integration.StorefrontPlatform = (*Adapter)(nil)
