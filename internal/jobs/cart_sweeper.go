package jobs

import (
	"context"
	"time"

	"bookstore/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ExpiredCartSweeper deletes cart lines past their expiry.
// services.CartService implements it.
type ExpiredCartSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// CartSweeper periodically purges expired cart lines. Reads already hide
// expired lines, so a missed sweep only costs disk space.
type CartSweeper struct {
	carts    ExpiredCartSweeper
	logger   *zap.Logger
	interval time.Duration
	tracer   trace.Tracer
}

func NewCartSweeper(carts ExpiredCartSweeper, log *zap.Logger, interval time.Duration) *CartSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CartSweeper{
		carts:    carts,
		logger:   log,
		interval: interval,
		tracer:   otel.Tracer("cart-sweeper"),
	}
}

// Start blocks until ctx is cancelled.
func (s *CartSweeper) Start(ctx context.Context) {
	logger.Info(ctx, s.logger, "Starting cart sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, s.logger, "Cart sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CartSweeper) sweep(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "CartSweeper.sweep")
	defer span.End()

	n, err := s.carts.SweepExpired(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, s.logger, "cart sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info(ctx, s.logger, "expired cart items removed", zap.Int64("count", n))
	}
}
