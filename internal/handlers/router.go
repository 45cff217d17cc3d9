package handlers

import (
	"bookstore/internal/middleware"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Auth     *services.AuthService
	Books    *services.BookService
	Carts    *services.CartService
	Orders   *services.OrderService
	Payments *services.PaymentService
	Reviews  *services.ReviewService
}

// NewApp creates a Fiber app that renders errors as {"detail": ...}.
func NewApp(log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "bookstore",
		ErrorHandler: ErrorHandler(log),
	})
	app.Use(recover.New())
	return app
}

// RegisterAPI mounts every API route under /api/v1. Public routes are
// registered first; the auth and admin gates only see requests that no
// earlier route answered.
func RegisterAPI(app *fiber.App, svc Services) {
	authHandler := NewAuthHandler(svc.Auth)
	bookHandler := NewBookHandler(svc.Books)
	cartHandler := NewCartHandler(svc.Carts)
	orderHandler := NewOrderHandler(svc.Orders)
	paymentHandler := NewPaymentHandler(svc.Payments)
	reviewHandler := NewReviewHandler(svc.Reviews)

	apiV1 := app.Group("/api/v1")

	authHandler.RegisterRoutes(apiV1)
	bookHandler.RegisterRoutes(apiV1)
	reviewHandler.RegisterPublicRoutes(apiV1)
	paymentHandler.RegisterWebhookRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(svc.Auth))
	cartHandler.RegisterRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	paymentHandler.RegisterRoutes(protected)
	reviewHandler.RegisterRoutes(protected)

	admin := protected.Group("", middleware.AdminRequired())
	bookHandler.RegisterAdminRoutes(admin)
	orderHandler.RegisterAdminRoutes(admin)
	paymentHandler.RegisterAdminRoutes(admin)
}
