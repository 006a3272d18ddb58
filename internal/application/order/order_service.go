package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/atelier/backend/internal/application/integration"
	"github.com/atelier/backend/internal/domain/order"
	"github.com/atelier/backend/internal/domain/partner"
	"github.com/atelier/backend/internal/domain/shared"
	"github.com/atelier/backend/internal/infrastructure/logger"
)

// OrderService handles local order operations. Locally originated status
// changes go through the same state machine and effect dispatcher as
// storefront events, so a manual transition leaves the same audit trail
// and fires the same downstream effects as a synced one.
type OrderService struct {
	orders      order.OrderRepository
	customers   partner.CustomerRepository
	transitions order.TransitionRepository
	machine     *order.StateMachine
	dispatcher  *appintegration.EffectDispatcher
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orders order.OrderRepository,
	customers partner.CustomerRepository,
	transitions order.TransitionRepository,
	machine *order.StateMachine,
	dispatcher *appintegration.EffectDispatcher,
) *OrderService {
	return &OrderService{
		orders:      orders,
		customers:   customers,
		transitions: transitions,
		machine:     machine,
		dispatcher:  dispatcher,
	}
}

// Create creates a new local order in DRAFT status
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	if _, err := s.customers.FindByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	orderNumber, err := s.orders.GenerateOrderNumber(ctx)
	if err != nil {
		return nil, err
	}

	o, err := order.NewOrder(orderNumber, req.CustomerID)
	if err != nil {
		return nil, err
	}

	for _, item := range req.Items {
		if _, err := o.AddItem(item.ProductName, item.Quantity, item.UnitPrice); err != nil {
			return nil, err
		}
	}
	if req.Shipping != nil {
		o.SetShipping(toShippingInfo(req.Shipping), order.OriginLocal, time.Now())
	}
	if req.Notes != "" {
		o.SetNotes(req.Notes)
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}
	o.ClearDomainEvents()

	logger.L(ctx).Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber))

	response := ToOrderResponse(o)
	return &response, nil
}

// GetByID retrieves an order by ID
func (s *OrderService) GetByID(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(o)
	return &response, nil
}

// GetByOrderNumber retrieves an order by its order number
func (s *OrderService) GetByOrderNumber(ctx context.Context, orderNumber string) (*OrderResponse, error) {
	o, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(o)
	return &response, nil
}

// List retrieves orders with filtering and pagination
func (s *OrderService) List(ctx context.Context, filter OrderListFilter) ([]OrderListItemResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Search:   filter.Search,
		Filters:  make(map[string]interface{}),
	}
	if filter.CustomerID != nil {
		domainFilter.Filters["customer_id"] = *filter.CustomerID
	}
	if filter.Status != nil {
		domainFilter.Filters["status"] = string(*filter.Status)
	}
	if len(filter.Statuses) > 0 {
		domainFilter.Filters["statuses"] = filter.Statuses
	}
	if filter.External != nil {
		domainFilter.Filters["external"] = *filter.External
	}
	if filter.StartDate != nil {
		domainFilter.Filters["start_date"] = *filter.StartDate
	}
	if filter.EndDate != nil {
		domainFilter.Filters["end_date"] = *filter.EndDate
	}

	orders, err := s.orders.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.orders.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	return ToOrderListItemResponses(orders), total, nil
}

// Update updates an order's locally owned fields
func (s *OrderService) Update(ctx context.Context, orderID uuid.UUID, req UpdateOrderRequest) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if req.Shipping != nil {
		o.SetShipping(toShippingInfo(req.Shipping), order.OriginLocal, time.Now())
	}
	if req.Notes != nil {
		o.SetNotes(*req.Notes)
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}

	response := ToOrderResponse(o)
	return &response, nil
}

// AddItem adds a line item to a draft order
func (s *OrderService) AddItem(ctx context.Context, orderID uuid.UUID, req AddOrderItemRequest) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if _, err := o.AddItem(req.ProductName, req.Quantity, req.UnitPrice); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}

	response := ToOrderResponse(o)
	return &response, nil
}

// RemoveItem removes a line item from a draft order
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID uuid.UUID) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := o.RemoveItem(itemID); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}

	response := ToOrderResponse(o)
	return &response, nil
}

// Transition applies a manual status change through the state machine.
// The change is appended to the transition log with a local origin and
// fires its downstream effects, including the status push back to the
// storefront for storefront-tracked orders.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, req TransitionOrderRequest) (*OrderResponse, error) {
	target := order.OrderStatus(strings.ToUpper(req.TargetStatus))
	if !target.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Unknown order status: "+req.TargetStatus)
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	transition, replayed, err := s.machine.Apply(ctx, o, target, order.OriginLocal, time.Now(), nil, req.Reason)
	if err != nil {
		return nil, err
	}

	if transition != nil && !replayed {
		if err := s.orders.Save(ctx, o); err != nil {
			return nil, err
		}
		if err := s.transitions.Append(ctx, transition); err != nil {
			return nil, err
		}
		if err := s.dispatcher.Dispatch(ctx, o, transition); err != nil {
			return nil, err
		}
		o.ClearDomainEvents()

		logger.L(ctx).Info("order transitioned",
			zap.String("order_id", o.ID.String()),
			zap.String("from", string(transition.FromStatus)),
			zap.String("to", string(transition.ToStatus)))
	}

	response := ToOrderResponse(o)
	return &response, nil
}

// ListTransitions returns the transition log for an order, oldest first
func (s *OrderService) ListTransitions(ctx context.Context, orderID uuid.UUID) ([]TransitionResponse, error) {
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return nil, err
	}

	transitions, err := s.transitions.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToTransitionResponses(transitions), nil
}

func toShippingInfo(input *ShippingInput) order.ShippingInfo {
	return order.ShippingInfo{
		ReceiverName:  input.ReceiverName,
		ReceiverPhone: input.ReceiverPhone,
		Address:       input.Address,
		City:          input.City,
		PostalCode:    input.PostalCode,
	}
}
