package handlers

import (
	"bookstore/internal/middleware"
	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the customer order routes. They require AuthRequired.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Get("/:id/tracking", h.HandleGetOrderTracking)
	orderRoutes.Put("/:id/cancel", h.HandleCancelOrder)
}

// RegisterAdminRoutes registers the back-office order routes.
func (h *OrderHandler) RegisterAdminRoutes(router fiber.Router) {
	adminRoutes := router.Group("/admin/orders")
	adminRoutes.Get("/", h.HandleGetAllOrders)
	adminRoutes.Get("/:id", h.HandleGetAnyOrder)
	adminRoutes.Patch("/:id/status", h.HandleUpdateOrderStatus)
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=1000"`
}

// UpdateStatusRequest is the body of PATCH /admin/orders/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// HandleGetOrders lists the caller's orders.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	q, err := orderQuery(c)
	if err != nil {
		return err
	}
	orders, err := h.service.GetUserOrders(c.UserContext(), middleware.UserID(c), q)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order of the caller.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleGetOrderTracking(c *fiber.Ctx) error {
	tracking, err := h.service.GetOrderTracking(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(tracking)
}

// HandleCreateOrder checks out the caller's cart.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.service.CreateOrder(c.UserContext(), middleware.UserID(c), req.ShippingAddress)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	order, err := h.service.CancelOrder(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleGetAllOrders(c *fiber.Ctx) error {
	q, err := orderQuery(c)
	if err != nil {
		return err
	}
	orders, err := h.service.GetAllOrders(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func (h *OrderHandler) HandleGetAnyOrder(c *fiber.Ctx) error {
	order, err := h.service.GetOrderAdmin(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

// HandleUpdateOrderStatus updates the status of an existing order.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return services.BadRequest("Invalid order status '%s'", req.Status)
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), c.Params("id"), status, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(order)
}
