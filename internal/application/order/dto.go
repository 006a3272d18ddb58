package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atelier/backend/internal/domain/order"
)

// ----------------------------------------------------------------
// Request DTOs
// ----------------------------------------------------------------

// CreateOrderRequest represents a request to create a local order
type CreateOrderRequest struct {
	CustomerID uuid.UUID              `json:"customer_id" binding:"required"`
	Items      []CreateOrderItemInput `json:"items"`
	Shipping   *ShippingInput         `json:"shipping"`
	Notes      string                 `json:"notes"`
}

// CreateOrderItemInput represents an item in the create order request
type CreateOrderItemInput struct {
	ProductName string          `json:"product_name" binding:"required,min=1,max=200"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
}

// ShippingInput represents the delivery details of an order
type ShippingInput struct {
	ReceiverName  string `json:"receiver_name" binding:"required,min=1,max=200"`
	ReceiverPhone string `json:"receiver_phone" binding:"max=50"`
	Address       string `json:"address" binding:"required,min=1"`
	City          string `json:"city" binding:"max=100"`
	PostalCode    string `json:"postal_code" binding:"max=20"`
}

// UpdateOrderRequest represents a request to update an order's local fields
type UpdateOrderRequest struct {
	Shipping *ShippingInput `json:"shipping"`
	Notes    *string        `json:"notes"`
}

// AddOrderItemRequest represents a request to add an item to a draft order
type AddOrderItemRequest struct {
	ProductName string          `json:"product_name" binding:"required,min=1,max=200"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
}

// TransitionOrderRequest represents a manual status change request
type TransitionOrderRequest struct {
	TargetStatus string `json:"target_status" binding:"required"`
	Reason       string `json:"reason" binding:"max=500"`
}

// OrderListFilter represents filters for listing orders
type OrderListFilter struct {
	Search     string              `form:"search"`
	CustomerID *uuid.UUID          `form:"customer_id"`
	Status     *order.OrderStatus  `form:"status"`
	Statuses   []string            `form:"statuses"`
	External   *bool               `form:"external"`
	StartDate  *time.Time          `form:"start_date"`
	EndDate    *time.Time          `form:"end_date"`
	Page       int                 `form:"page" binding:"min=0"`
	PageSize   int                 `form:"page_size" binding:"min=0,max=100"`
	OrderBy    string              `form:"order_by"`
	OrderDir   string              `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// ----------------------------------------------------------------
// Response DTOs
// ----------------------------------------------------------------

// OrderItemResponse represents a line item in API responses
type OrderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// ShippingResponse represents delivery details in API responses
type ShippingResponse struct {
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone,omitempty"`
	Address       string `json:"address"`
	City          string `json:"city,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
}

// FieldStampResponse reports which origin last wrote a field group and when
type FieldStampResponse struct {
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	ExternalID    *string             `json:"external_id,omitempty"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	Status        string              `json:"status"`
	Items         []OrderItemResponse `json:"items"`
	ItemCount     int                 `json:"item_count"`
	Shipping      *ShippingResponse   `json:"shipping,omitempty"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Currency      string              `json:"currency,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	StatusStamp   FieldStampResponse  `json:"status_stamp"`
	ShippingStamp FieldStampResponse  `json:"shipping_stamp"`
	ItemsStamp    FieldStampResponse  `json:"items_stamp"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty"`
	ShippedAt     *time.Time          `json:"shipped_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	RefundedAt    *time.Time          `json:"refunded_at,omitempty"`
	CancelReason  string              `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
}

// OrderListItemResponse represents an order in list responses (less detail)
type OrderListItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	OrderNumber string          `json:"order_number"`
	ExternalID  *string         `json:"external_id,omitempty"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	Status      string          `json:"status"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TransitionResponse represents one entry of an order's transition log
type TransitionResponse struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	FromStatus     string    `json:"from_status"`
	ToStatus       string    `json:"to_status"`
	Origin         string    `json:"origin"`
	TriggerEventID *string   `json:"trigger_event_id,omitempty"`
	AppliedAt      time.Time `json:"applied_at"`
}

// ----------------------------------------------------------------
// Mappers
// ----------------------------------------------------------------

// ToOrderItemResponse converts a domain order item to a response DTO
func ToOrderItemResponse(item *order.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:          item.ID,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		TotalPrice:  item.TotalPrice,
	}
}

func toFieldStampResponse(stamp order.FieldStamp) FieldStampResponse {
	return FieldStampResponse{
		Origin: string(stamp.Origin),
		At:     stamp.At,
	}
}

// ToOrderResponse converts a domain order to a response DTO
func ToOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i := range o.Items {
		items[i] = ToOrderItemResponse(&o.Items[i])
	}

	var shipping *ShippingResponse
	if !o.Shipping.IsZero() {
		shipping = &ShippingResponse{
			ReceiverName:  o.Shipping.ReceiverName,
			ReceiverPhone: o.Shipping.ReceiverPhone,
			Address:       o.Shipping.Address,
			City:          o.Shipping.City,
			PostalCode:    o.Shipping.PostalCode,
		}
	}

	return OrderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		ExternalID:    o.ExternalID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		Items:         items,
		ItemCount:     o.ItemCount(),
		Shipping:      shipping,
		Subtotal:      o.Subtotal,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		Notes:         o.Notes,
		StatusStamp:   toFieldStampResponse(o.StatusStamp),
		ShippingStamp: toFieldStampResponse(o.ShippingStamp),
		ItemsStamp:    toFieldStampResponse(o.ItemsStamp),
		ConfirmedAt:   o.ConfirmedAt,
		ShippedAt:     o.ShippedAt,
		CompletedAt:   o.CompletedAt,
		CancelledAt:   o.CancelledAt,
		RefundedAt:    o.RefundedAt,
		CancelReason:  o.CancelReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Version:       o.Version,
	}
}

// ToOrderListItemResponse converts a domain order to a list item DTO
func ToOrderListItemResponse(o *order.Order) OrderListItemResponse {
	return OrderListItemResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		ExternalID:  o.ExternalID,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		ItemCount:   o.ItemCount(),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// ToOrderListItemResponses converts a slice of domain orders to list item DTOs
func ToOrderListItemResponses(orders []order.Order) []OrderListItemResponse {
	responses := make([]OrderListItemResponse, len(orders))
	for i := range orders {
		responses[i] = ToOrderListItemResponse(&orders[i])
	}
	return responses
}

// ToTransitionResponse converts a transition log entry to a response DTO
func ToTransitionResponse(t *order.Transition) TransitionResponse {
	return TransitionResponse{
		ID:             t.ID,
		OrderID:        t.OrderID,
		FromStatus:     string(t.FromStatus),
		ToStatus:       string(t.ToStatus),
		Origin:         string(t.Origin),
		TriggerEventID: t.TriggerEventID,
		AppliedAt:      t.AppliedAt,
	}
}

// ToTransitionResponses converts transition log entries to response DTOs
func ToTransitionResponses(transitions []order.Transition) []TransitionResponse {
	responses := make([]TransitionResponse, len(transitions))
	for i := range transitions {
		responses[i] = ToTransitionResponse(&transitions[i])
	}
	return responses
}
