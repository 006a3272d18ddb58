package order

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusDraft        OrderStatus = "DRAFT"
	OrderStatusConfirmed    OrderStatus = "CONFIRMED"
	OrderStatusInProduction OrderStatus = "IN_PRODUCTION"
	OrderStatusReadyToShip  OrderStatus = "READY_TO_SHIP"
	OrderStatusShipped      OrderStatus = "SHIPPED"
	OrderStatusCompleted    OrderStatus = "COMPLETED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
	OrderStatusRefunded     OrderStatus = "REFUNDED"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusConfirmed, OrderStatusInProduction,
		OrderStatusReadyToShip, OrderStatusShipped, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a terminal state
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status.
// The production path is strictly linear; CANCELLED is reachable from every
// state except COMPLETED, and REFUNDED only from SHIPPED or COMPLETED.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if target == OrderStatusCancelled {
		return s != OrderStatusCompleted && s != OrderStatusCancelled && s != OrderStatusRefunded
	}
	if target == OrderStatusRefunded {
		return s == OrderStatusShipped || s == OrderStatusCompleted
	}
	switch s {
	case OrderStatusDraft:
		return target == OrderStatusConfirmed
	case OrderStatusConfirmed:
		return target == OrderStatusInProduction
	case OrderStatusInProduction:
		return target == OrderStatusReadyToShip
	case OrderStatusReadyToShip:
		return target == OrderStatusShipped
	case OrderStatusShipped:
		return target == OrderStatusCompleted
	}
	return false
}

// WriteOrigin identifies which side of the integration last wrote a field group
type WriteOrigin string

const (
	// OriginLocal marks writes made through the local application
	OriginLocal WriteOrigin = "LOCAL"
	// OriginExternal marks writes applied from storefront events
	OriginExternal WriteOrigin = "EXTERNAL"
)

// IsValid returns true if the origin is valid
func (o WriteOrigin) IsValid() bool {
	return o == OriginLocal || o == OriginExternal
}

// String returns the string representation of WriteOrigin
func (o WriteOrigin) String() string {
	return string(o)
}
