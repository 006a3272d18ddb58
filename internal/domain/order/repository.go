package order

import (
	"context"

	"github.com/atelier/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OrderRepository defines the interface for persisting orders
type OrderRepository interface {
	// FindByID finds an order by its local ID, with items preloaded
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByExternalID finds the canonical order for a storefront order ID
	FindByExternalID(ctx context.Context, externalID string) (*Order, error)

	// FindByOrderNumber finds an order by its order number
	FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)

	// FindAll finds orders matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Order, error)

	// Count counts orders matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Save creates or updates an order together with its items. Updates
	// hold the optimistic lock: a copy whose version no longer matches
	// the stored row fails with shared.ErrConcurrencyConflict
	Save(ctx context.Context, o *Order) error

	// GenerateOrderNumber produces the next local order number
	GenerateOrderNumber(ctx context.Context) (string, error)
}

// TransitionRepository defines the interface for the append-only transition log
type TransitionRepository interface {
	// Append records a transition. Transitions are never updated or deleted.
	Append(ctx context.Context, t *Transition) error

	// FindByOrder returns all transitions for an order ordered by applied time
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Transition, error)

	// FindByTrigger finds the transition recorded for a triggering event, if any
	FindByTrigger(ctx context.Context, orderID uuid.UUID, triggerEventID string) (*Transition, error)

	// FindLatest returns the most recent transition for an order, or nil
	FindLatest(ctx context.Context, orderID uuid.UUID) (*Transition, error)

	// FindByID finds a transition by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Transition, error)
}
