package handlers

import (
	"bookstore/internal/middleware"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CartHandler handles HTTP requests for the current user's cart.
type CartHandler struct {
	service *services.CartService
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(service *services.CartService) *CartHandler {
	return &CartHandler{service: service}
}

// RegisterRoutes registers the cart routes. They require AuthRequired.
func (h *CartHandler) RegisterRoutes(router fiber.Router) {
	cartRoutes := router.Group("/cart")
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Delete("/", h.HandleClearCart)
	cartRoutes.Post("/items", h.HandleAddItem)
	cartRoutes.Put("/items/:id", h.HandleUpdateItem)
	cartRoutes.Delete("/items/:id", h.HandleRemoveItem)
}

// AddItemRequest is the body of POST /cart/items.
type AddItemRequest struct {
	BookID   string `json:"book_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateItemRequest is the body of PUT /cart/items/:id.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	cart, err := h.service.GetCart(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(cart)
}

func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req AddItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	item, err := h.service.AddItem(c.UserContext(), middleware.UserID(c), req.BookID, req.Quantity)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *CartHandler) HandleUpdateItem(c *fiber.Ctx) error {
	var req UpdateItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	item, err := h.service.UpdateItem(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	if err := h.service.RemoveItem(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CartHandler) HandleClearCart(c *fiber.Ctx) error {
	if err := h.service.ClearCart(c.UserContext(), middleware.UserID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
