package handlers

import (
	"bookstore/internal/middleware"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ReviewHandler handles HTTP requests for book reviews.
type ReviewHandler struct {
	service *services.ReviewService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(service *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// RegisterPublicRoutes registers the review listing of a book.
func (h *ReviewHandler) RegisterPublicRoutes(router fiber.Router) {
	router.Get("/books/:id/reviews", h.HandleListReviews)
}

// RegisterRoutes registers review writes. They require AuthRequired.
func (h *ReviewHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/books/:id/reviews", h.HandleCreateReview)
	router.Put("/reviews/:id", h.HandleUpdateReview)
	router.Delete("/reviews/:id", h.HandleDeleteReview)
}

// CreateReviewRequest is the body of POST /books/:id/reviews.
type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// UpdateReviewRequest is the body of PUT /reviews/:id.
type UpdateReviewRequest struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

func (h *ReviewHandler) HandleListReviews(c *fiber.Ctx) error {
	page, size := pageParams(c)
	reviews, err := h.service.ListReviews(c.UserContext(), c.Params("id"), page, size)
	if err != nil {
		return err
	}
	return c.JSON(reviews)
}

func (h *ReviewHandler) HandleCreateReview(c *fiber.Ctx) error {
	var req CreateReviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	review, err := h.service.CreateReview(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(review)
}

func (h *ReviewHandler) HandleUpdateReview(c *fiber.Ctx) error {
	var req UpdateReviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	review, err := h.service.UpdateReview(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(review)
}

func (h *ReviewHandler) HandleDeleteReview(c *fiber.Ctx) error {
	if err := h.service.DeleteReview(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
