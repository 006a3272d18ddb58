package handler

import (
	orderapp "github.com/atelier/backend/internal/application/order"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles canonical order API endpoints
type OrderHandler struct {
	BaseHandler
	orderService *orderapp.OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService *orderapp.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// RegisterRoutes registers order routes on the API group
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/number/:order_number", h.GetByOrderNumber)
		orders.GET("/:id", h.GetByID)
		orders.PUT("/:id", h.Update)
		orders.POST("/:id/items", h.AddItem)
		orders.DELETE("/:id/items/:item_id", h.RemoveItem)
		orders.GET("/:id/transitions", h.ListTransitions)
		orders.POST("/:id/transitions", h.Transition)
	}
}

// CreateOrderRequest represents a request to create a new local order
// @Description Request body for creating a new order
type CreateOrderRequest struct {
	CustomerID string                 `json:"customer_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Items      []CreateOrderItemInput `json:"items"`
	Shipping   *ShippingInput         `json:"shipping"`
	Notes      string                 `json:"notes" example:"Deliver after 6pm"`
}

// CreateOrderItemInput represents an item in the create order request
// @Description Order item for creation
type CreateOrderItemInput struct {
	ProductName string  `json:"product_name" binding:"required,min=1,max=200" example:"Walnut desk organizer"`
	Quantity    int     `json:"quantity" binding:"required,min=1" example:"2"`
	UnitPrice   float64 `json:"unit_price" binding:"required,gt=0" example:"49.90"`
}

// ShippingInput represents delivery details in requests
// @Description Shipping details
type ShippingInput struct {
	ReceiverName  string `json:"receiver_name" binding:"required,min=1,max=200" example:"Jonas Weber"`
	ReceiverPhone string `json:"receiver_phone" binding:"max=50" example:"+49 30 1234567"`
	Address       string `json:"address" binding:"required,min=1" example:"Torstrasse 12"`
	City          string `json:"city" binding:"max=100" example:"Berlin"`
	PostalCode    string `json:"postal_code" binding:"max=20" example:"10119"`
}

// UpdateOrderRequest represents a request to update an order's local fields
// @Description Request body for updating shipping details or notes
type UpdateOrderRequest struct {
	Shipping *ShippingInput `json:"shipping"`
	Notes    *string        `json:"notes" example:"Leave at the door"`
}

// AddOrderItemInput represents a request to add an item to a draft order
// @Description Request body for adding an item
type AddOrderItemInput struct {
	ProductName string  `json:"product_name" binding:"required,min=1,max=200" example:"Brass bookend"`
	Quantity    int     `json:"quantity" binding:"required,min=1" example:"1"`
	UnitPrice   float64 `json:"unit_price" binding:"required,gt=0" example:"24.50"`
}

// TransitionOrderInput represents a manual status change request
// @Description Request body for moving an order to a new status
type TransitionOrderInput struct {
	TargetStatus string `json:"target_status" binding:"required" example:"CONFIRMED"`
	Reason       string `json:"reason" binding:"max=500" example:"Customer asked to cancel"`
}

// Create godoc
// @Summary      Create a new order
// @Description  Create a new local order in DRAFT status
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        request body CreateOrderRequest true "Order creation request"
// @Success      201 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		h.BadRequest(c, "Invalid customer ID format")
		return
	}

	appReq := orderapp.CreateOrderRequest{
		CustomerID: customerID,
		Notes:      req.Notes,
	}
	for _, item := range req.Items {
		appReq.Items = append(appReq.Items, orderapp.CreateOrderItemInput{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   toDecimal(item.UnitPrice),
		})
	}
	if req.Shipping != nil {
		appReq.Shipping = toShippingInput(req.Shipping)
	}

	order, err := h.orderService.Create(c.Request.Context(), appReq)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, order)
}

// GetByID godoc
// @Summary      Get order by ID
// @Description  Retrieve an order with items, shipping and field stamps
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetByID(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	order, err := h.orderService.GetByID(c.Request.Context(), orderID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// GetByOrderNumber godoc
// @Summary      Get order by order number
// @Tags         orders
// @Produce      json
// @Param        order_number path string true "Order Number" example:"ORD-2026-00001"
// @Success      200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/number/{order_number} [get]
func (h *OrderHandler) GetByOrderNumber(c *gin.Context) {
	orderNumber := c.Param("order_number")
	if orderNumber == "" {
		h.BadRequest(c, "Order number is required")
		return
	}

	order, err := h.orderService.GetByOrderNumber(c.Request.Context(), orderNumber)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// List godoc
// @Summary      List orders
// @Description  List orders with filtering and pagination
// @Tags         orders
// @Produce      json
// @Param        status query string false "Filter by status" example:"CONFIRMED"
// @Param        customer_id query string false "Filter by customer" format(uuid)
// @Param        external query bool false "Only storefront (true) or local (false) orders"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]orderapp.OrderListItemResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var filter orderapp.OrderListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	orders, total, err := h.orderService.List(c.Request.Context(), filter)
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
	h.SuccessWithMeta(c, orders, total, filter.Page, filter.PageSize)
}

// Update godoc
// @Summary      Update an order
// @Description  Update shipping details or notes. Status changes go through the transitions endpoint.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body UpdateOrderRequest true "Order update request"
// @Success      200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id} [put]
func (h *OrderHandler) Update(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := orderapp.UpdateOrderRequest{
		Notes: req.Notes,
	}
	if req.Shipping != nil {
		appReq.Shipping = toShippingInput(req.Shipping)
	}

	order, err := h.orderService.Update(c.Request.Context(), orderID, appReq)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// AddItem godoc
// @Summary      Add an item to an order
// @Description  Add a line item. Only allowed while the order is in DRAFT status.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body AddOrderItemInput true "Item to add"
// @Success      200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/items [post]
func (h *OrderHandler) AddItem(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req AddOrderItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	order, err := h.orderService.AddItem(c.Request.Context(), orderID, orderapp.AddOrderItemRequest{
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		UnitPrice:   toDecimal(req.UnitPrice),
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// RemoveItem godoc
// @Summary      Remove an item from an order
// @Description  Remove a line item. Only allowed while the order is in DRAFT status.
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        item_id path string true "Item ID" format(uuid)
// @Success      200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/items/{item_id} [delete]
func (h *OrderHandler) RemoveItem(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		h.BadRequest(c, "Invalid item ID format")
		return
	}

	order, err := h.orderService.RemoveItem(c.Request.Context(), orderID, itemID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// Transition godoc
// @Summary      Move an order to a new status
// @Description  Apply a manual status change through the order workflow. Rejected changes return 422.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body TransitionOrderInput true "Target status and optional reason"
// @Success      200 {object} dto.Response{data=orderapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/transitions [post]
func (h *OrderHandler) Transition(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req TransitionOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	order, err := h.orderService.Transition(c.Request.Context(), orderID, orderapp.TransitionOrderRequest{
		TargetStatus: req.TargetStatus,
		Reason:       req.Reason,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// ListTransitions godoc
// @Summary      Get an order's transition log
// @Description  List every recorded status change for an order, oldest first
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]orderapp.TransitionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/transitions [get]
func (h *OrderHandler) ListTransitions(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	transitions, err := h.orderService.ListTransitions(c.Request.Context(), orderID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, transitions)
}

func toShippingInput(in *ShippingInput) *orderapp.ShippingInput {
	return &orderapp.ShippingInput{
		ReceiverName:  in.ReceiverName,
		ReceiverPhone: in.ReceiverPhone,
		Address:       in.Address,
		City:          in.City,
		PostalCode:    in.PostalCode,
	}
}
