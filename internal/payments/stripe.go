package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stripe test tokens understood by the simulator.
const (
	StripeTokenDecline        = "tok_decline"
	StripeTokenRequiresAction = "tok_requires_action"
)

// Stripe webhook event types.
const (
	StripeEventSucceeded = "payment_intent.succeeded"
	StripeEventFailed    = "payment_intent.payment_failed"
	StripeEventRefunded  = "charge.refunded"
)

type stripeIntent struct {
	ID       string
	Amount   int64
	Status   string
	Secret   string
	Metadata map[string]string
	Refunded int64
}

// StripeSimulator is an in-process stand-in for a Stripe-style payment
// intent API. Intents start in PROCESSING and are confirmed with a card token.
type StripeSimulator struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time

	mu      sync.Mutex
	intents map[string]*stripeIntent
	byKey   map[string]string
	refunds map[string]*RefundResult
}

// NewStripeSimulator creates a simulator. With an empty webhookSecret every
// webhook signature is accepted.
func NewStripeSimulator(webhookSecret string) *StripeSimulator {
	return &StripeSimulator{
		webhookSecret: webhookSecret,
		tolerance:     DefaultSignatureTolerance,
		now:           time.Now,
		intents:       make(map[string]*stripeIntent),
		byKey:         make(map[string]string),
		refunds:       make(map[string]*RefundResult),
	}
}

func (s *StripeSimulator) Name() models.PaymentProvider {
	return models.ProviderStripe
}

func (s *StripeSimulator) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("stripe: amount must be positive, got %s: %w", req.Amount, ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return s.result(s.intents[id]), nil
	}

	id := "pi_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
	intent := &stripeIntent{
		ID:       id,
		Amount:   toMinorUnits(req.Amount),
		Status:   "requires_confirmation",
		Secret:   id + "_secret_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
		Metadata: req.Metadata,
	}
	s.intents[id] = intent
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = id
	}
	return s.result(intent), nil
}

func (s *StripeSimulator) result(intent *stripeIntent) *CreateResult {
	return &CreateResult{
		Reference:    intent.ID,
		Status:       models.PaymentStatusProcessing,
		ClientSecret: intent.Secret,
	}
}

func (s *StripeSimulator) Confirm(ctx context.Context, reference, token string) (*ConfirmResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[reference]
	if !ok {
		return nil, fmt.Errorf("stripe: payment_intent %s: %w", reference, ErrUnknownReference)
	}

	switch {
	case intent.Status == "succeeded":
	case token == StripeTokenDecline:
		intent.Status = "requires_payment_method"
		return &ConfirmResult{Outcome: ConfirmFailed, Reference: reference, Message: "Your card was declined."}, nil
	case token == StripeTokenRequiresAction:
		intent.Status = "requires_action"
		return &ConfirmResult{Outcome: ConfirmRequiresAction, Reference: reference, Message: "Additional authentication required"}, nil
	default:
		intent.Status = "succeeded"
	}
	return &ConfirmResult{Outcome: ConfirmSucceeded, Reference: reference}, nil
}

func (s *StripeSimulator) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}

	intent, ok := s.intents[req.Reference]
	if !ok {
		return nil, fmt.Errorf("stripe: payment_intent %s: %w", req.Reference, ErrUnknownReference)
	}
	if intent.Status != "succeeded" {
		return nil, fmt.Errorf("stripe: payment_intent %s has not succeeded: %w", req.Reference, ErrInvalidRequest)
	}

	amount := intent.Amount - intent.Refunded
	if req.Amount != nil {
		amount = toMinorUnits(*req.Amount)
	}
	if amount <= 0 || intent.Refunded+amount > intent.Amount {
		return nil, fmt.Errorf("stripe: refund amount exceeds charge: %w", ErrInvalidRequest)
	}
	intent.Refunded += amount

	r := &RefundResult{
		RefundID: "re_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24],
		Amount:   fromMinorUnits(amount),
		Status:   "succeeded",
	}
	if req.IdempotencyKey != "" {
		s.refunds[req.IdempotencyKey] = r
	}
	return r, nil
}

func (s *StripeSimulator) VerifyWebhookSignature(payload []byte, signature string) bool {
	if s.webhookSecret == "" {
		return true
	}
	return verifyStripeSignature(s.webhookSecret, payload, signature, s.now(), s.tolerance)
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentIntent string            `json:"payment_intent"`
			Amount        int64             `json:"amount"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (s *StripeSimulator) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("stripe: malformed webhook payload: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("stripe: webhook payload has no event type")
	}

	obj := ev.Data.Object
	out := &WebhookEvent{ID: ev.ID, Type: ev.Type, Reference: obj.ID, PaymentID: obj.Metadata["payment_id"]}
	switch ev.Type {
	case StripeEventSucceeded:
		out.Kind = EventSucceeded
	case StripeEventFailed:
		out.Kind = EventFailed
	case StripeEventRefunded:
		// refunds arrive on the charge, which points back at the intent
		out.Kind = EventRefunded
		if obj.PaymentIntent != "" {
			out.Reference = obj.PaymentIntent
		}
	default:
		out.Kind = EventUnknown
	}
	if out.Reference == "" && out.PaymentID == "" {
		return nil, fmt.Errorf("stripe: webhook %s references no payment", ev.ID)
	}
	return out, nil
}

// StripeEventPayload renders a webhook body of the given type for an intent.
func StripeEventPayload(eventType, intentID, paymentID string, amount decimal.Decimal) []byte {
	ev := stripeEvent{ID: "evt_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24], Type: eventType}
	if eventType == StripeEventRefunded {
		ev.Data.Object.ID = "ch_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
		ev.Data.Object.PaymentIntent = intentID
	} else {
		ev.Data.Object.ID = intentID
	}
	ev.Data.Object.Amount = toMinorUnits(amount)
	if paymentID != "" {
		ev.Data.Object.Metadata = map[string]string{"payment_id": paymentID}
	}
	body, _ := json.Marshal(ev)
	return body
}
