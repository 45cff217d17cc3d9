package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/jobs"
	applogger "bookstore/internal/logger"
	"bookstore/internal/services"
	"bookstore/pkg/rabbitmq"
	"bookstore/pkg/tracing"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := applogger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("Server gracefully stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "bookstore", cfg.Env, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := database.OpenMigrated(database.Config{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseDSN,
		Silent: cfg.IsProd(),
	})
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// a nil interface, not a nil *rabbitmq.Client, when the broker is disabled
	var events services.EventPublisher
	var mq *rabbitmq.Client
	if cfg.RabbitMQURL != "" {
		mq, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.RabbitMQExchange}, log)
		if err != nil {
			return err
		}
		defer mq.Close()
		events = mq
	} else {
		log.Info("RABBITMQ_URL not set, domain events are not published")
	}

	srv := newServer(cfg, db, events, log)

	go jobs.NewCartSweeper(srv.carts, log, cfg.CartSweepInterval).Start(ctx)

	if mq != nil {
		err := mq.Consume(ctx, "bookstore.audit", "#", func(routingKey string, body []byte) error {
			log.Info("domain event received", zap.String("routing_key", routingKey), zap.ByteString("event", body))
			return nil
		})
		if err != nil {
			log.Error("failed to start event consumer", zap.Error(err))
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			log.Info("Metrics server is listening", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, srv.metrics.Handler()); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", cfg.AppPort))
		errCh <- srv.app.Listen(cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	if err := srv.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("fiber shutdown failed: %w", err)
	}
	return nil
}
