package order

import (
	"time"

	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldStamp records which origin last wrote a field group and when.
// Conflict resolution between local edits and storefront events is decided
// per group against these stamps, never against a whole-record timestamp.
type FieldStamp struct {
	Origin WriteOrigin
	At     time.Time
}

// WrittenBy returns a stamp for the given origin at the given time
func WrittenBy(origin WriteOrigin, at time.Time) FieldStamp {
	return FieldStamp{Origin: origin, At: at}
}

// SupersededBy reports whether a write from the given origin at the given
// time may overwrite the group guarded by this stamp. A write wins only if
// it is strictly newer than the recorded one.
func (s FieldStamp) SupersededBy(at time.Time) bool {
	return at.After(s.At)
}

// OrderItem represents a line item in an order
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOrderItem creates a new order line item
func NewOrderItem(orderID uuid.UUID, productName string, quantity int, unitPrice decimal.Decimal) (*OrderItem, error) {
	if productName == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	now := time.Now()
	return &OrderItem{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ShippingInfo holds the delivery details for an order.
// It forms the shipping field group for conflict resolution.
type ShippingInfo struct {
	ReceiverName  string
	ReceiverPhone string
	Address       string
	City          string
	PostalCode    string
}

// IsZero returns true if no shipping detail is set
func (s ShippingInfo) IsZero() bool {
	return s == ShippingInfo{}
}

// Order is the canonical order aggregate. Exactly one Order exists per
// external identifier; an Order without an external identifier is purely
// local and never touched by reconciliation.
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber string  `gorm:"uniqueIndex;size:50;not null"`
	ExternalID  *string `gorm:"uniqueIndex"`
	CustomerID  uuid.UUID
	Status      OrderStatus
	Items       []OrderItem
	Shipping    ShippingInfo `gorm:"embedded;embeddedPrefix:shipping_"`
	Subtotal    decimal.Decimal
	TotalAmount decimal.Decimal
	Currency    string
	Notes       string

	// Source-of-truth stamps, one per mutable field group
	StatusStamp   FieldStamp `gorm:"embedded;embeddedPrefix:status_stamp_"`
	ShippingStamp FieldStamp `gorm:"embedded;embeddedPrefix:shipping_stamp_"`
	ItemsStamp    FieldStamp `gorm:"embedded;embeddedPrefix:items_stamp_"`

	ConfirmedAt  *time.Time
	ShippedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	RefundedAt   *time.Time
	CancelReason string
}

// NewOrder creates a new purely local order in DRAFT status
func NewOrder(orderNumber string, customerID uuid.UUID) (*Order, error) {
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if len(orderNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot exceed 50 characters")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}

	now := time.Now()
	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		CustomerID:        customerID,
		Status:            OrderStatusDraft,
		Items:             make([]OrderItem, 0),
		Subtotal:          decimal.Zero,
		TotalAmount:       decimal.Zero,
		StatusStamp:       WrittenBy(OriginLocal, now),
		ShippingStamp:     WrittenBy(OriginLocal, now),
		ItemsStamp:        WrittenBy(OriginLocal, now),
	}

	o.AddDomainEvent(NewOrderCreatedEvent(o))

	return o, nil
}

// NewExternalOrder creates a canonical order seeded from a storefront
// snapshot. All field groups are stamped as externally written at the
// event time so later events merge against the correct baseline.
func NewExternalOrder(orderNumber, externalID string, customerID uuid.UUID, eventTime time.Time) (*Order, error) {
	if externalID == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_ID", "External order ID cannot be empty")
	}

	o, err := NewOrder(orderNumber, customerID)
	if err != nil {
		return nil, err
	}

	o.ExternalID = &externalID
	o.StatusStamp = WrittenBy(OriginExternal, eventTime)
	o.ShippingStamp = WrittenBy(OriginExternal, eventTime)
	o.ItemsStamp = WrittenBy(OriginExternal, eventTime)

	return o, nil
}

// IsExternal returns true if this order is tracked by the storefront
func (o *Order) IsExternal() bool {
	return o.ExternalID != nil
}

// AddItem adds a line item through the local application.
// Only allowed in DRAFT status.
func (o *Order) AddItem(productName string, quantity int, unitPrice decimal.Decimal) (*OrderItem, error) {
	if o.Status != OrderStatusDraft {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot add items to a non-draft order")
	}

	item, err := NewOrderItem(o.ID, productName, quantity, unitPrice)
	if err != nil {
		return nil, err
	}

	o.Items = append(o.Items, *item)
	o.recalculateTotals()
	o.markItemsWritten(OriginLocal, time.Now())

	return item, nil
}

// RemoveItem removes a line item through the local application.
// Only allowed in DRAFT status.
func (o *Order) RemoveItem(itemID uuid.UUID) error {
	if o.Status != OrderStatusDraft {
		return shared.NewDomainError("INVALID_STATE", "Cannot remove items from a non-draft order")
	}

	for idx, item := range o.Items {
		if item.ID == itemID {
			o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
			o.recalculateTotals()
			o.markItemsWritten(OriginLocal, time.Now())
			return nil
		}
	}

	return shared.NewDomainError("ITEM_NOT_FOUND", "Order item not found")
}

// ReplaceItems overwrites the whole item group from a merge decision.
// Callers are responsible for having won the items-group conflict first.
func (o *Order) ReplaceItems(items []OrderItem, origin WriteOrigin, at time.Time) {
	for i := range items {
		items[i].OrderID = o.ID
	}
	o.Items = items
	o.recalculateTotals()
	o.markItemsWritten(origin, at)
}

// SetShipping overwrites the shipping group from a merge decision
func (o *Order) SetShipping(info ShippingInfo, origin WriteOrigin, at time.Time) {
	o.Shipping = info
	o.ShippingStamp = WrittenBy(origin, at)
	o.UpdatedAt = time.Now()
}

// SetTotal overrides the order total (storefront totals include platform
// fees and discounts the item sum does not capture)
func (o *Order) SetTotal(total decimal.Decimal, currency string) {
	o.TotalAmount = total
	if currency != "" {
		o.Currency = currency
	}
	o.UpdatedAt = time.Now()
}

// SetNotes sets the order notes
func (o *Order) SetNotes(notes string) {
	o.Notes = notes
	o.UpdatedAt = time.Now()
}

// applyStatus moves the order to the target status, recording per-status
// timestamps and the status-group stamp. Edge validation belongs to the
// state machine; this only records an already-approved change.
func (o *Order) applyStatus(target OrderStatus, origin WriteOrigin, at time.Time, reason string) {
	now := time.Now()
	o.Status = target
	o.StatusStamp = WrittenBy(origin, at)
	o.UpdatedAt = now

	switch target {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusCompleted:
		o.CompletedAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
		o.CancelReason = reason
	case OrderStatusRefunded:
		o.RefundedAt = &now
	}
}

// recalculateTotals recalculates subtotal and total from line items
func (o *Order) recalculateTotals() {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.TotalPrice)
	}
	o.Subtotal = subtotal
	// TotalAmount tracks the subtotal unless a storefront total overrode it
	if o.TotalAmount.IsZero() || !o.IsExternal() {
		o.TotalAmount = subtotal
	}
}

func (o *Order) markItemsWritten(origin WriteOrigin, at time.Time) {
	o.ItemsStamp = WrittenBy(origin, at)
	o.UpdatedAt = time.Now()
}

// ItemCount returns the number of line items
func (o *Order) ItemCount() int {
	return len(o.Items)
}

// IsTerminal returns true if the order is in a terminal status
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}
