package main

import (
	"context"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/handlers"
	"bookstore/internal/payments"
	"bookstore/internal/repositories"
	"bookstore/internal/services"
	"bookstore/pkg/metrics"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type server struct {
	app     *fiber.App
	carts   *services.CartService
	metrics *metrics.Metrics
}

// newServer wires repositories, providers and services into a Fiber app.
// events may be nil.
func newServer(cfg *config.Config, db *gorm.DB, events services.EventPublisher, log *zap.Logger) *server {
	store := repositories.NewStore(db)

	providerOpts := payments.Options{
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
		Logger:     log,
	}
	registry := payments.NewRegistry(
		payments.Resilient(payments.NewStripeSimulator(cfg.StripeWebhookSecret), providerOpts),
		payments.Resilient(payments.NewPayPalSimulator(cfg.PayPalWebhookSecret), providerOpts),
	)

	inventory := services.NewInventoryService()
	carts := services.NewCartService(store, inventory, cfg.CartTTL, log)
	orders := services.NewOrderService(store, inventory, carts, events, log)

	svc := handlers.Services{
		Auth:     services.NewAuthService(store.Users, cfg.JWTSecret, cfg.JWTTTL),
		Books:    services.NewBookService(store.Books),
		Carts:    carts,
		Orders:   orders,
		Payments: services.NewPaymentService(store, registry, orders, inventory, events, log),
		Reviews:  services.NewReviewService(store, log),
	}

	m := metrics.New()
	app := handlers.NewApp(log)
	app.Use(otelfiber.Middleware())
	app.Use(m.Middleware())
	if !cfg.IsProd() {
		app.Use(fiberlogger.New())
	}
	app.Use("/api/v1/auth", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests. Try again later.")
		},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":   "degraded",
				"time":     time.Now().Format(time.RFC3339),
				"database": "unreachable",
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "connected",
		})
	})

	handlers.RegisterAPI(app, svc)
	return &server{app: app, carts: carts, metrics: m}
}
