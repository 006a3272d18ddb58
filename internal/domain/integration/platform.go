package integration

import (
	"context"
	"time"

	"github.com/atelier/backend/internal/domain/order"
)

// StorefrontPlatform is the port for talking to the external storefront.
// The feed adapter in the infrastructure layer implements it.
type StorefrontPlatform interface {
	// PlatformCode identifies the storefront implementation
	PlatformCode() string

	// PullOrders fetches orders modified in the given window and returns
	// them as normalized events, oldest first
	PullOrders(ctx context.Context, since, until time.Time) ([]*ExternalOrderEvent, error)

	// UpdateOrderStatus pushes a local status change back to the storefront
	UpdateOrderStatus(ctx context.Context, externalOrderID string, status order.OrderStatus) error
}
