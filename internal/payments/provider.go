// Package payments adapts external payment processors behind one interface.
package payments

import (
	"context"
	"errors"

	"bookstore/internal/models"

	"github.com/shopspring/decimal"
)

// ErrUnknownReference is returned when a provider has no object with the
// given reference.
var ErrUnknownReference = errors.New("unknown provider reference")

// ErrInvalidRequest is returned when a provider rejects the request itself.
// Retrying such a call cannot succeed.
var ErrInvalidRequest = errors.New("invalid provider request")

// CreateRequest asks a provider to open a payment object. IdempotencyKey makes
// the call safe to retry: the same key always yields the same object.
type CreateRequest struct {
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// CreateResult describes the provider object created for a payment.
// Exactly one of ClientSecret and ApprovalURL is set.
type CreateResult struct {
	Reference    string
	Status       models.PaymentStatus
	ClientSecret string
	ApprovalURL  string
}

// ConfirmOutcome is the provider verdict on a confirmation attempt.
type ConfirmOutcome string

const (
	ConfirmSucceeded      ConfirmOutcome = "succeeded"
	ConfirmRequiresAction ConfirmOutcome = "requires_action"
	ConfirmFailed         ConfirmOutcome = "failed"
)

type ConfirmResult struct {
	Outcome   ConfirmOutcome
	Reference string
	Message   string
}

// RefundRequest refunds a completed payment. A nil Amount refunds in full.
type RefundRequest struct {
	Reference      string
	Amount         *decimal.Decimal
	Reason         string
	IdempotencyKey string
}

type RefundResult struct {
	RefundID string
	Amount   decimal.Decimal
	Status   string
}

// EventKind is the provider-neutral meaning of a webhook event.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventRefunded  EventKind = "refunded"
	EventUnknown   EventKind = "unknown"
)

// WebhookEvent is a parsed provider notification. PaymentID is our own id if
// the provider echoed it back in metadata.
type WebhookEvent struct {
	ID        string
	Type      string
	Kind      EventKind
	Reference string
	PaymentID string
}

// Provider is a payment processor adapter.
type Provider interface {
	Name() models.PaymentProvider
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Confirm(ctx context.Context, reference, token string) (*ConfirmResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseWebhook(payload []byte) (*WebhookEvent, error)
}

// toMinorUnits converts an amount to cents.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}
