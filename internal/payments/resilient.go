package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a provider call outlives its deadline.
var ErrTimeout = errors.New("provider call timed out")

// Options tunes the resilience wrapper.
type Options struct {
	// Timeout bounds each single provider call.
	Timeout time.Duration
	// MaxRetries bounds the retries of idempotent calls. Zero disables them.
	MaxRetries int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 200 * time.Millisecond
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ResilientProvider decorates a Provider with per-call timeouts, a circuit
// breaker and bounded exponential retries. Only CreatePayment and Refund are
// retried since both carry an idempotency key; Confirm runs at most once.
type ResilientProvider struct {
	inner Provider
	opts  Options
	cb    *gobreaker.CircuitBreaker
}

// Resilient wraps p.
func Resilient(p Provider, opts Options) *ResilientProvider {
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("provider", string(p.Name())))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(p.Name()),
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a rejected request says nothing about provider health
			return err == nil || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnknownReference)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("payment provider circuit changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &ResilientProvider{inner: p, opts: opts, cb: cb}
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	v, _ := res.(T)
	return v, nil
}

// withTimeout runs fn under a deadline and gives up waiting when it passes,
// even if fn ignores its context.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return *new(T), fmt.Errorf("%s: %w", ctx.Err(), ErrTimeout)
		}
		return *new(T), ctx.Err()
	}
}

func (r *ResilientProvider) call(ctx context.Context, op string, retry bool, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	attempt := func() (interface{}, error) {
		v, err := executeWithBreaker(r.cb, func() (interface{}, error) {
			return withTimeout(ctx, r.opts.Timeout, fn)
		})
		if err == nil {
			return v, nil
		}
		if isPermanent(err) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		r.opts.Logger.Warn("payment provider call failed",
			zap.String("provider", string(r.inner.Name())),
			zap.String("op", op),
			zap.Error(err),
		)
		return nil, err
	}

	if !retry || r.opts.MaxRetries == 0 {
		v, err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return v, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxRetries)), ctx)
	return backoff.RetryWithData(attempt, policy)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownReference) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (r *ResilientProvider) Name() models.PaymentProvider {
	return r.inner.Name()
}

func (r *ResilientProvider) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	v, err := r.call(ctx, "create_payment", true, func(ctx context.Context) (interface{}, error) {
		return r.inner.CreatePayment(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CreateResult), nil
}

func (r *ResilientProvider) Confirm(ctx context.Context, reference, token string) (*ConfirmResult, error) {
	v, err := r.call(ctx, "confirm", false, func(ctx context.Context) (interface{}, error) {
		return r.inner.Confirm(ctx, reference, token)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ConfirmResult), nil
}

func (r *ResilientProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	v, err := r.call(ctx, "refund", true, func(ctx context.Context) (interface{}, error) {
		return r.inner.Refund(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RefundResult), nil
}

func (r *ResilientProvider) VerifyWebhookSignature(payload []byte, signature string) bool {
	return r.inner.VerifyWebhookSignature(payload, signature)
}

func (r *ResilientProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	return r.inner.ParseWebhook(payload)
}

// State exposes the breaker state, e.g. for health output.
func (r *ResilientProvider) State() gobreaker.State {
	return r.cb.State()
}
