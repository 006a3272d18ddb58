package integration

import (
	"time"

	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EventKind classifies what happened to the order on the storefront
type EventKind string

const (
	EventKindCreated       EventKind = "created"
	EventKindUpdated       EventKind = "updated"
	EventKindStatusChanged EventKind = "status_changed"
	EventKindCancelled     EventKind = "cancelled"
)

// IsValid returns true if the kind is valid
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindCreated, EventKindUpdated, EventKindStatusChanged, EventKindCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of EventKind
func (k EventKind) String() string {
	return string(k)
}

// BuyerInfo carries the billing identity attached to a storefront order.
// Storefronts do not guarantee a stable customer id, so reconciliation
// matches buyers by email first, then phone.
type BuyerInfo struct {
	ExternalID string `json:"external_id,omitempty"` // empty for guest checkout
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// SnapshotItem is one line item as reported by the storefront
type SnapshotItem struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// SnapshotShipping is the delivery address as reported by the storefront
type SnapshotShipping struct {
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone,omitempty"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
}

// OrderSnapshot is the order state carried by an event. It may be full or
// partial: a nil slice, nil pointer, or empty status means the event does
// not speak for that field group.
type OrderSnapshot struct {
	Status   order.OrderStatus `json:"status,omitempty"` // already mapped to the local vocabulary
	Buyer    *BuyerInfo        `json:"buyer,omitempty"`
	Shipping *SnapshotShipping `json:"shipping,omitempty"`
	Items    []SnapshotItem    `json:"items,omitempty"`
	Total    *decimal.Decimal  `json:"total,omitempty"`
	Currency string            `json:"currency,omitempty"`
}

// HasItems returns true if the snapshot speaks for the items group
func (s OrderSnapshot) HasItems() bool {
	return s.Items != nil
}

// HasShipping returns true if the snapshot speaks for the shipping group
func (s OrderSnapshot) HasShipping() bool {
	return s.Shipping != nil
}

// HasStatus returns true if the snapshot speaks for the status group
func (s OrderSnapshot) HasStatus() bool {
	return s.Status != ""
}

// ExternalOrderEvent is a normalized change notification from the
// storefront. Events are immutable once constructed by the feed adapter;
// EventID is the deduplication key for the whole pipeline.
type ExternalOrderEvent struct {
	EventID         string        `json:"event_id"`
	ExternalOrderID string        `json:"external_order_id"`
	Kind            EventKind     `json:"kind"`
	OccurredAt      time.Time     `json:"occurred_at"`
	Snapshot        OrderSnapshot `json:"snapshot"`
	RawPayload      string        `json:"raw_payload,omitempty"`
}

// Validate checks the event invariants shared by every kind
func (e *ExternalOrderEvent) Validate() error {
	if e.EventID == "" {
		return shared.NewDomainError(ErrCodeValidation, "event id cannot be empty")
	}
	if e.ExternalOrderID == "" {
		return shared.NewDomainError(ErrCodeValidation, "external order id cannot be empty")
	}
	if !e.Kind.IsValid() {
		return shared.NewDomainError(ErrCodeValidation, "unknown event kind: "+string(e.Kind))
	}
	if e.OccurredAt.IsZero() {
		return shared.NewDomainError(ErrCodeValidation, "event timestamp cannot be zero")
	}
	if e.Snapshot.HasStatus() && !e.Snapshot.Status.IsValid() {
		return shared.NewDomainError(ErrCodeValidation, "unknown order status: "+string(e.Snapshot.Status))
	}
	for _, item := range e.Snapshot.Items {
		if item.ProductName == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return shared.NewDomainError(ErrCodeValidation, "invalid snapshot line item")
		}
	}
	return nil
}
