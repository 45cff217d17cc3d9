package handlers

import (
	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// BookHandler handles HTTP requests for the catalog.
type BookHandler struct {
	service *services.BookService
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(service *services.BookService) *BookHandler {
	return &BookHandler{service: service}
}

// RegisterRoutes registers the public catalog routes.
func (h *BookHandler) RegisterRoutes(router fiber.Router) {
	bookRoutes := router.Group("/books")
	bookRoutes.Get("/", h.HandleListBooks)
	bookRoutes.Get("/:id", h.HandleGetBook)
}

// RegisterAdminRoutes registers catalog maintenance routes.
func (h *BookHandler) RegisterAdminRoutes(router fiber.Router) {
	bookRoutes := router.Group("/books")
	bookRoutes.Post("/", h.HandleCreateBook)
	bookRoutes.Put("/:id", h.HandleUpdateBook)
	bookRoutes.Delete("/:id", h.HandleDeleteBook)
}

// BookRequest is the body of a book creation.
type BookRequest struct {
	Title         string          `json:"title" validate:"required,max=255"`
	Author        string          `json:"author" validate:"required,max=255"`
	ISBN          string          `json:"isbn" validate:"required,max=20"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
}

// BookUpdateRequest is the body of a partial book update.
type BookUpdateRequest struct {
	Title         *string          `json:"title" validate:"omitempty,max=255"`
	Author        *string          `json:"author" validate:"omitempty,max=255"`
	ISBN          *string          `json:"isbn" validate:"omitempty,max=20"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity" validate:"omitempty,gte=0"`
}

// HandleListBooks lists live books, optionally filtered by ?search=.
func (h *BookHandler) HandleListBooks(c *fiber.Ctx) error {
	page, size := pageParams(c)
	books, err := h.service.ListBooks(c.UserContext(), c.Query("search"), page, size)
	if err != nil {
		return err
	}
	return c.JSON(books)
}

func (h *BookHandler) HandleGetBook(c *fiber.Ctx) error {
	book, err := h.service.GetBook(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(book)
}

func (h *BookHandler) HandleCreateBook(c *fiber.Ctx) error {
	var req BookRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	book := models.Book{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	}
	if err := h.service.CreateBook(c.UserContext(), &book); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(book)
}

// HandleUpdateBook applies the given fields. A stock_quantity replaces the
// current stock.
func (h *BookHandler) HandleUpdateBook(c *fiber.Ctx) error {
	var req BookUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	book, err := h.service.UpdateBook(c.UserContext(), c.Params("id"), services.BookUpdate{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		return err
	}
	return c.JSON(book)
}

func (h *BookHandler) HandleDeleteBook(c *fiber.Ctx) error {
	if err := h.service.DeleteBook(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
