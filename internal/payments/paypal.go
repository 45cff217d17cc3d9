package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayPalPayerDeclined makes the simulator refuse a capture.
const PayPalPayerDeclined = "DECLINED"

// PayPal webhook event types.
const (
	PayPalEventCompleted = "PAYMENT.CAPTURE.COMPLETED"
	PayPalEventDenied    = "PAYMENT.CAPTURE.DENIED"
	PayPalEventRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

type paypalOrder struct {
	ID        string
	Amount    decimal.Decimal
	Captured  bool
	Refunded  decimal.Decimal
	PaymentID string
}

// PayPalSimulator is an in-process stand-in for a PayPal-style redirect
// flow. Orders start in REQUIRES_ACTION until the buyer approves and the
// capture is executed with the payer id.
type PayPalSimulator struct {
	webhookSecret string
	approvalBase  string

	mu      sync.Mutex
	orders  map[string]*paypalOrder
	byKey   map[string]string
	refunds map[string]*RefundResult
}

// NewPayPalSimulator creates a simulator. With an empty webhookSecret every
// webhook signature is accepted.
func NewPayPalSimulator(webhookSecret string) *PayPalSimulator {
	return &PayPalSimulator{
		webhookSecret: webhookSecret,
		approvalBase:  "https://www.sandbox.paypal.com/checkoutnow?token=",
		orders:        make(map[string]*paypalOrder),
		byKey:         make(map[string]string),
		refunds:       make(map[string]*RefundResult),
	}
}

func (p *PayPalSimulator) Name() models.PaymentProvider {
	return models.ProviderPayPal
}

func (p *PayPalSimulator) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("paypal: amount must be positive, got %s: %w", req.Amount, ErrInvalidRequest)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return p.result(p.orders[id]), nil
	}

	id := "PAYPAL-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:17])
	order := &paypalOrder{ID: id, Amount: req.Amount, PaymentID: req.Metadata["payment_id"]}
	p.orders[id] = order
	if req.IdempotencyKey != "" {
		p.byKey[req.IdempotencyKey] = id
	}
	return p.result(order), nil
}

func (p *PayPalSimulator) result(order *paypalOrder) *CreateResult {
	return &CreateResult{
		Reference:   order.ID,
		Status:      models.PaymentStatusRequiresAction,
		ApprovalURL: p.approvalBase + order.ID,
	}
}

// Confirm executes the capture. token is the payer id returned by the
// approval redirect.
func (p *PayPalSimulator) Confirm(ctx context.Context, reference, token string) (*ConfirmResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[reference]
	if !ok {
		return nil, fmt.Errorf("paypal: order %s: %w", reference, ErrUnknownReference)
	}

	switch {
	case order.Captured:
	case token == "":
		return &ConfirmResult{Outcome: ConfirmRequiresAction, Reference: reference, Message: "Buyer approval required"}, nil
	case token == PayPalPayerDeclined:
		return &ConfirmResult{Outcome: ConfirmFailed, Reference: reference, Message: "Instrument declined"}, nil
	default:
		order.Captured = true
	}
	return &ConfirmResult{Outcome: ConfirmSucceeded, Reference: reference}, nil
}

func (p *PayPalSimulator) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}

	order, ok := p.orders[req.Reference]
	if !ok {
		return nil, fmt.Errorf("paypal: order %s: %w", req.Reference, ErrUnknownReference)
	}
	if !order.Captured {
		return nil, fmt.Errorf("paypal: order %s has not been captured: %w", req.Reference, ErrInvalidRequest)
	}

	amount := order.Amount.Sub(order.Refunded)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() || order.Refunded.Add(amount).GreaterThan(order.Amount) {
		return nil, fmt.Errorf("paypal: refund amount exceeds capture: %w", ErrInvalidRequest)
	}
	order.Refunded = order.Refunded.Add(amount)

	r := &RefundResult{
		RefundID: "REFUND-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:17]),
		Amount:   amount,
		Status:   "COMPLETED",
	}
	if req.IdempotencyKey != "" {
		p.refunds[req.IdempotencyKey] = r
	}
	return r, nil
}

func (p *PayPalSimulator) VerifyWebhookSignature(payload []byte, signature string) bool {
	if p.webhookSecret == "" {
		return true
	}
	return verifyPayPalSignature(p.webhookSecret, payload, signature)
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		CustomID          string `json:"custom_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		Amount struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

func (p *PayPalSimulator) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var ev paypalEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("paypal: malformed webhook payload: %w", err)
	}
	if ev.EventType == "" {
		return nil, fmt.Errorf("paypal: webhook payload has no event type")
	}

	out := &WebhookEvent{
		ID:        ev.ID,
		Type:      ev.EventType,
		Reference: ev.Resource.SupplementaryData.RelatedIDs.OrderID,
		PaymentID: ev.Resource.CustomID,
	}
	switch ev.EventType {
	case PayPalEventCompleted:
		out.Kind = EventSucceeded
	case PayPalEventDenied:
		out.Kind = EventFailed
	case PayPalEventRefunded:
		out.Kind = EventRefunded
	default:
		out.Kind = EventUnknown
	}
	if out.Reference == "" && out.PaymentID == "" {
		return nil, fmt.Errorf("paypal: webhook %s references no payment", ev.ID)
	}
	return out, nil
}

// PayPalEventPayload renders a webhook body of the given type for an order.
func PayPalEventPayload(eventType, orderID, paymentID string, amount decimal.Decimal) []byte {
	var ev paypalEvent
	ev.ID = "WH-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:17])
	ev.EventType = eventType
	ev.Resource.ID = "CAP-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
	ev.Resource.CustomID = paymentID
	ev.Resource.SupplementaryData.RelatedIDs.OrderID = orderID
	ev.Resource.Amount.Value = amount.StringFixed(2)
	ev.Resource.Amount.CurrencyCode = "USD"
	body, _ := json.Marshal(ev)
	return body
}
