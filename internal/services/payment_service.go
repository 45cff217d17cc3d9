package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/logger"
	"bookstore/internal/models"
	"bookstore/internal/payments"
	"bookstore/internal/repositories"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Payment log actions.
const (
	actionInitiate        = "initiate_payment"
	actionCreateIntent    = "create_payment_intent"
	actionCreatePayment   = "create_payment"
	actionConfirm         = "confirm_payment"
	actionComplete        = "complete_payment"
	actionRefund          = "refund_payment"
	actionWebhookReceived = "webhook_received"
	actionWebhookComplete = "webhook_complete"
	actionWebhookFailed   = "webhook_failed"
	actionWebhookRefunded = "webhook_refunded"
	actionWebhookIgnored  = "webhook_ignored"
)

// InitResult is the outcome of InitiatePayment: one of StripeIntent,
// PayPalApproval or AlreadyExists.
type InitResult interface {
	PaymentRecord() *models.Payment
	isInitResult()
}

// StripeIntent is a new intent the client confirms with ClientSecret.
type StripeIntent struct {
	Payment      *models.Payment
	ClientSecret string
}

// PayPalApproval is a new order the buyer must approve at ApprovalURL.
type PayPalApproval struct {
	Payment     *models.Payment
	ApprovalURL string
}

// AlreadyExists is returned for a replayed idempotency key.
type AlreadyExists struct {
	Payment *models.Payment
}

func (r StripeIntent) PaymentRecord() *models.Payment   { return r.Payment }
func (r PayPalApproval) PaymentRecord() *models.Payment { return r.Payment }
func (r AlreadyExists) PaymentRecord() *models.Payment  { return r.Payment }

func (StripeIntent) isInitResult()   {}
func (PayPalApproval) isInitResult() {}
func (AlreadyExists) isInitResult()  {}

// ConfirmResult is the state of a payment after a confirmation attempt.
type ConfirmResult struct {
	Payment *models.Payment
	Message string
}

// RefundResult describes a completed refund.
type RefundResult struct {
	Payment        *models.Payment
	RefundID       string
	AmountRefunded decimal.Decimal
}

// WebhookResult is the acknowledgement returned to the provider.
type WebhookResult struct {
	Status        string               `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// PaymentService drives payments through their state machine and keeps the
// order in step. Every provider interaction leaves a PaymentLog row.
type PaymentService struct {
	store     *repositories.Store
	providers *payments.Registry
	orders    *OrderService
	inventory *InventoryService
	events    EventPublisher
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService. events may be nil.
func NewPaymentService(
	store *repositories.Store,
	providers *payments.Registry,
	orders *OrderService,
	inventory *InventoryService,
	events EventPublisher,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		store:     store,
		providers: providers,
		orders:    orders,
		inventory: inventory,
		events:    publisherOrNoop(events),
		log:       log,
		tracer:    otel.Tracer("services/payment"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) provider(name models.PaymentProvider) (payments.Provider, error) {
	p, err := s.providers.Get(name)
	if err != nil {
		return nil, BadRequest("Unsupported payment provider")
	}
	return p, nil
}

// InitiatePayment opens a provider-side payment for a PENDING order. A
// replayed idempotency key returns the payment it created, unchanged.
func (s *PaymentService) InitiatePayment(ctx context.Context, userID, orderID string, providerName models.PaymentProvider, idempotencyKey string) (InitResult, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.InitiatePayment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.provider", string(providerName)),
	))
	defer span.End()

	if idempotencyKey == "" {
		return nil, BadRequest("Idempotency key is required")
	}
	if existing, err := s.replay(ctx, userID, idempotencyKey); existing != nil || err != nil {
		return existing, err
	}

	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		order, err := tx.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "Order")
		}
		if order.UserID != userID {
			return NotFound("Order")
		}
		if order.Status != models.OrderStatusPending {
			return BadRequest("Order is not in pending status")
		}

		prior, err := tx.Payments.GetByOrderID(ctx, orderID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			payment = &models.Payment{
				OrderID:        order.ID,
				Provider:       providerName,
				Amount:         order.TotalAmount,
				Status:         models.PaymentStatusPending,
				IdempotencyKey: idempotencyKey,
			}
			return tx.Payments.Create(ctx, payment)
		case err != nil:
			return err
		case prior.Status == models.PaymentStatusCompleted:
			return BadRequest("Order has already been paid")
		case prior.Status.CanTransitionTo(models.PaymentStatusPending):
			// a failed attempt is reset for the retry under the new key
			prior.Provider = providerName
			prior.Amount = order.TotalAmount
			prior.Status = models.PaymentStatusPending
			prior.IdempotencyKey = idempotencyKey
			prior.ProviderReference = nil
			payment = prior
			return tx.Payments.Save(ctx, payment)
		default:
			return Conflict("A payment is already in progress for this order")
		}
	})
	if errors.Is(err, repositories.ErrDuplicate) {
		// lost a race against a request carrying the same key
		if existing, rerr := s.replay(ctx, userID, idempotencyKey); existing != nil || rerr != nil {
			return existing, rerr
		}
		return nil, Conflict("A payment is already in progress for this order")
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	req := payments.CreateRequest{
		Amount:         payment.Amount,
		Currency:       "USD",
		IdempotencyKey: idempotencyKey,
		Metadata:       map[string]string{"order_id": orderID, "payment_id": payment.ID},
	}
	created, err := provider.CreatePayment(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.failPayment(ctx, payment.ID, actionInitiate, req, err.Error())
		return nil, PaymentFailed(fmt.Sprintf("Payment initiation failed: %v", err), err)
	}

	action := actionCreatePayment
	if providerName == models.ProviderStripe {
		action = actionCreateIntent
	}
	err = s.store.Transaction(ctx, func(tx *repositories.Store) error {
		locked, err := tx.Payments.GetByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(created.Status) {
			return fmt.Errorf("provider returned unexpected status %s for payment %s", created.Status, payment.ID)
		}
		ref := created.Reference
		locked.ProviderReference = &ref
		locked.Status = created.Status
		if err := tx.Payments.Save(ctx, locked); err != nil {
			return err
		}
		payment = locked
		return s.appendLog(ctx, tx, locked, action, "success", req, created, "")
	})
	if err != nil {
		// the provider side exists but could not be recorded; fail the row so
		// the order can be checked out again
		span.SetStatus(codes.Error, err.Error())
		s.failPayment(ctx, payment.ID, action, req, err.Error())
		return nil, PaymentFailed("Payment initiation failed", err)
	}

	logger.Info(ctx, s.log, "payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", orderID),
		zap.String("provider", string(providerName)),
		zap.String("status", string(payment.Status)),
	)

	if created.ApprovalURL != "" {
		return PayPalApproval{Payment: payment, ApprovalURL: created.ApprovalURL}, nil
	}
	return StripeIntent{Payment: payment, ClientSecret: created.ClientSecret}, nil
}

// replay resolves an idempotency key to the payment it created. A key bound
// to another user's order is reported as missing.
func (s *PaymentService) replay(ctx context.Context, userID, key string) (InitResult, error) {
	existing, err := s.store.Payments.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	order, err := s.store.Orders.GetByID(ctx, existing.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "Order")
	}
	if order.UserID != userID {
		return nil, NotFound("Order")
	}
	return AlreadyExists{Payment: existing}, nil
}

// ConfirmPayment asks the provider to finalise a payment with a client
// token. Confirming a COMPLETED payment returns it unchanged.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID, userID, token string) (*ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ConfirmPayment", trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	payment, order, err := s.owned(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return &ConfirmResult{Payment: payment, Message: "Payment already completed"}, nil
	}
	if !payment.Status.IsConfirmable() || payment.ProviderReference == nil {
		return nil, BadRequest("Payment cannot be confirmed")
	}
	if order.Status != models.OrderStatusPending {
		return nil, BadRequest("Order is not in pending status")
	}

	provider, err := s.provider(payment.Provider)
	if err != nil {
		return nil, err
	}

	req := map[string]string{"reference": *payment.ProviderReference}
	res, err := provider.Confirm(ctx, *payment.ProviderReference, token)
	if err != nil {
		span.RecordError(err)
		s.failPayment(ctx, payment.ID, actionConfirm, req, err.Error())
		return nil, PaymentFailed(fmt.Sprintf("Payment confirmation failed: %v", err), err)
	}

	switch res.Outcome {
	case payments.ConfirmFailed:
		s.failPayment(ctx, payment.ID, actionConfirm, req, res.Message)
		return nil, PaymentFailed("Payment failed: "+res.Message, nil)

	case payments.ConfirmRequiresAction:
		err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
			locked, err := tx.Payments.GetByIDForUpdate(ctx, payment.ID)
			if err != nil {
				return err
			}
			if locked.Status != models.PaymentStatusRequiresAction && locked.Status.CanTransitionTo(models.PaymentStatusRequiresAction) {
				locked.Status = models.PaymentStatusRequiresAction
				if err := tx.Payments.Save(ctx, locked); err != nil {
					return err
				}
			}
			payment = locked
			return s.appendLog(ctx, tx, locked, actionConfirm, "requires_action", req, res, "")
		})
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Payment: payment, Message: "Additional authentication required"}, nil

	default:
		note := fmt.Sprintf("Payment completed via %s", payment.Provider)
		completed, changed, err := s.completePayment(ctx, payment.ID, note, actionComplete, res)
		if err != nil {
			return nil, err
		}
		if !changed && completed.Status != models.PaymentStatusCompleted {
			return nil, BadRequest("Order is not in pending status")
		}
		return &ConfirmResult{Payment: completed, Message: "Payment completed successfully"}, nil
	}
}

// completePayment marks a payment COMPLETED and its PENDING order PAID in one
// commit. It is a no-op for payments already past COMPLETED. When the order
// is no longer PENDING the payment is left as is and the mismatch is logged:
// the captured funds need a manual refund.
func (s *PaymentService) completePayment(ctx context.Context, paymentID, note, action string, response interface{}) (*models.Payment, bool, error) {
	var (
		payment *models.Payment
		order   *models.Order
		prev    models.OrderStatus
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		payment, err = tx.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "Payment")
		}
		if !payment.Status.CanTransitionTo(models.PaymentStatusCompleted) {
			return nil
		}

		order, err = tx.Orders.GetByIDForUpdate(ctx, payment.OrderID)
		if err != nil {
			return notFoundOr(err, "Order")
		}
		prev = order.Status
		if order.Status != models.OrderStatusPending {
			msg := fmt.Sprintf("order is %s; captured funds require a manual refund", order.Status)
			return s.appendLog(ctx, tx, payment, action, "rejected", nil, response, msg)
		}

		payment.Status = models.PaymentStatusCompleted
		if err := tx.Payments.Save(ctx, payment); err != nil {
			return err
		}
		order.PaymentReference = payment.ProviderReference
		if err := s.orders.transitionOrder(ctx, tx, order, models.OrderStatusPaid, note); err != nil {
			return err
		}
		changed = true
		return s.appendLog(ctx, tx, payment, action, "success", nil, response, "")
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logger.Info(ctx, s.log, "payment completed",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID),
		)
		s.publish(ctx, EventPaymentCompleted, payment)
		s.orders.publish(ctx, EventOrderStatusChanged, order, prev)
	} else if order != nil {
		logger.Error(ctx, s.log, "provider reported success for a payment whose order is not pending",
			zap.String("payment_id", payment.ID),
			zap.String("order_status", string(order.Status)),
		)
	}
	return payment, changed, nil
}

// failPayment marks a payment FAILED and records why. It runs in its own
// transaction so the record survives whatever failed before it.
func (s *PaymentService) failPayment(ctx context.Context, paymentID, action string, request interface{}, reason string) {
	var payment *models.Payment
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		payment, err = tx.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if !payment.Status.CanTransitionTo(models.PaymentStatusFailed) {
			return nil
		}
		payment.Status = models.PaymentStatusFailed
		return tx.Payments.Save(ctx, payment)
	})
	if err != nil {
		logger.Error(ctx, s.log, "failed to mark payment failed", zap.String("payment_id", paymentID), zap.Error(err))
	}
	if payment == nil {
		payment = &models.Payment{ID: paymentID}
	}

	if err := s.appendLog(ctx, s.store, payment, action, "failed", request, nil, reason); err != nil {
		logger.Error(ctx, s.log, "failed to write payment log", zap.String("payment_id", paymentID), zap.Error(err))
	}
	logger.Warn(ctx, s.log, "payment failed",
		zap.String("payment_id", paymentID),
		zap.String("action", action),
		zap.String("reason", reason),
	)
	if payment.Status == models.PaymentStatusFailed {
		s.publish(ctx, EventPaymentFailed, payment)
	}
}

// RefundPayment refunds a COMPLETED payment, returns the order's stock and
// cancels the order. A partial amount is passed to the provider but the order
// is still cancelled in full.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal, reason string) (*RefundResult, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.RefundPayment", trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	payment, err := s.store.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFoundOr(err, "Payment")
	}
	if payment.Status != models.PaymentStatusCompleted || payment.ProviderReference == nil {
		return nil, BadRequest("Only completed payments can be refunded")
	}
	if amount != nil && (!amount.IsPositive() || amount.GreaterThan(payment.Amount)) {
		return nil, BadRequest("Refund amount must be greater than 0 and at most %s", payment.Amount.StringFixed(2))
	}
	order, err := s.store.Orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "Order")
	}
	if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
		return nil, BadRequest("Cannot transition from %s to %s", order.Status, models.OrderStatusCancelled)
	}

	provider, err := s.provider(payment.Provider)
	if err != nil {
		return nil, err
	}

	req := payments.RefundRequest{
		Reference:      *payment.ProviderReference,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: "refund-" + payment.ID,
	}
	refund, err := provider.Refund(ctx, req)
	if err != nil {
		span.RecordError(err)
		if lerr := s.appendLog(ctx, s.store, payment, actionRefund, "failed", req, nil, err.Error()); lerr != nil {
			logger.Error(ctx, s.log, "failed to write payment log", zap.String("payment_id", paymentID), zap.Error(lerr))
		}
		return nil, PaymentFailed(fmt.Sprintf("Refund failed: %v", err), err)
	}

	if reason == "" {
		reason = "No reason provided"
	}
	refundID := refund.RefundID
	refunded, err := s.finalizeRefund(ctx, payment.ID, &refundID, refund.Amount, "Payment refunded: "+reason, actionRefund, req, refund)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if lerr := s.appendLog(ctx, s.store, payment, actionRefund, "failed", req, refund, err.Error()); lerr != nil {
			logger.Error(ctx, s.log, "failed to write payment log", zap.String("payment_id", paymentID), zap.Error(lerr))
		}
		return nil, err
	}

	return &RefundResult{Payment: refunded, RefundID: refund.RefundID, AmountRefunded: refund.Amount}, nil
}

// finalizeRefund moves a COMPLETED payment to REFUNDED, returns the stock of
// its order and cancels the order, all in one commit. Payments no longer
// COMPLETED are returned unchanged. An order that can no longer be cancelled
// keeps its status and stock.
func (s *PaymentService) finalizeRefund(ctx context.Context, paymentID string, refundID *string, amount decimal.Decimal, note, action string, request, response interface{}) (*models.Payment, error) {
	var (
		payment *models.Payment
		order   *models.Order
		prev    models.OrderStatus
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		payment, err = tx.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "Payment")
		}
		if payment.Status != models.PaymentStatusCompleted {
			return nil
		}

		payment.Status = models.PaymentStatusRefunded
		payment.RefundReference = refundID
		payment.AmountRefunded = &amount
		if err := tx.Payments.Save(ctx, payment); err != nil {
			return err
		}
		changed = true

		order, err = tx.Orders.GetByIDForUpdate(ctx, payment.OrderID)
		if err != nil {
			return notFoundOr(err, "Order")
		}
		prev = order.Status
		if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
			// the money is back with the buyer either way; the order is left for an operator
			order = nil
			msg := fmt.Sprintf("order is %s and was not cancelled", prev)
			return s.appendLog(ctx, tx, payment, action, "success", request, response, msg)
		}
		if err := s.inventory.releaseItems(ctx, tx, order.Items); err != nil {
			return err
		}
		if err := s.orders.transitionOrder(ctx, tx, order, models.OrderStatusCancelled, note); err != nil {
			return err
		}
		return s.appendLog(ctx, tx, payment, action, "success", request, response, "")
	})
	if err != nil {
		return nil, err
	}

	if changed {
		logger.Info(ctx, s.log, "payment refunded",
			zap.String("payment_id", payment.ID),
			zap.String("amount", amount.StringFixed(2)),
		)
		s.publish(ctx, EventPaymentRefunded, payment)
		if order != nil {
			s.orders.publish(ctx, EventOrderStatusChanged, order, prev)
		} else {
			logger.Error(ctx, s.log, "refunded payment left its order untouched",
				zap.String("payment_id", payment.ID),
				zap.String("order_status", string(prev)),
			)
		}
	}
	return payment, nil
}

// HandleWebhook applies a provider notification. Signatures are checked
// before anything in the payload is trusted; replays are no-ops.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, rawBody []byte, signature string) (*WebhookResult, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.HandleWebhook", trace.WithAttributes(attribute.String("payment.provider", providerName)))
	defer span.End()

	name, err := models.ParsePaymentProvider(providerName)
	if err != nil {
		return nil, BadRequest("Unsupported payment provider")
	}
	provider, err := s.provider(name)
	if err != nil {
		return nil, err
	}

	receipt := &models.Payment{Provider: name}
	if !provider.VerifyWebhookSignature(rawBody, signature) {
		s.logReceipt(ctx, receipt, "invalid_signature", rawBody, "signature verification failed")
		return nil, BadRequest("Invalid webhook signature")
	}

	event, err := provider.ParseWebhook(rawBody)
	if err != nil {
		s.logReceipt(ctx, receipt, "malformed", rawBody, err.Error())
		return nil, BadRequest("Invalid webhook payload")
	}
	span.SetAttributes(attribute.String("webhook.type", event.Type))

	payment, err := s.locate(ctx, name, event)
	if err != nil {
		s.logReceipt(ctx, receipt, "unmatched", rawBody, err.Error())
		return nil, BadRequest("Webhook references an unknown payment")
	}
	request := map[string]string{"event_id": event.ID, "event_type": event.Type}
	if err := s.appendLog(ctx, s.store, payment, actionWebhookReceived, "success", request, nil, ""); err != nil {
		return nil, err
	}

	switch event.Kind {
	case payments.EventSucceeded:
		note := fmt.Sprintf("Payment confirmed via webhook (%s)", name)
		if payment, _, err = s.completePayment(ctx, payment.ID, note, actionWebhookComplete, request); err != nil {
			return nil, err
		}

	case payments.EventFailed:
		if payment, err = s.failFromWebhook(ctx, payment.ID, request); err != nil {
			return nil, err
		}

	case payments.EventRefunded:
		if payment, err = s.finalizeRefund(ctx, payment.ID, nil, payment.Amount, "Payment refunded via webhook", actionWebhookRefunded, request, nil); err != nil {
			return nil, err
		}

	default:
		logger.Info(ctx, s.log, "ignoring webhook event", zap.String("type", event.Type), zap.String("payment_id", payment.ID))
		if err := s.appendLog(ctx, s.store, payment, actionWebhookIgnored, "ignored", request, nil, ""); err != nil {
			return nil, err
		}
	}

	return &WebhookResult{Status: "processed", PaymentStatus: payment.Status}, nil
}

func (s *PaymentService) locate(ctx context.Context, provider models.PaymentProvider, event *payments.WebhookEvent) (*models.Payment, error) {
	if event.Reference != "" {
		payment, err := s.store.Payments.GetByProviderReference(ctx, provider, event.Reference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}
	if event.PaymentID != "" {
		payment, err := s.store.Payments.GetByID(ctx, event.PaymentID)
		if err != nil {
			return nil, err
		}
		if payment.Provider != provider {
			return nil, fmt.Errorf("payment %s belongs to %s: %w", payment.ID, payment.Provider, repositories.ErrNotFound)
		}
		return payment, nil
	}
	return nil, fmt.Errorf("no payment for reference %q: %w", event.Reference, repositories.ErrNotFound)
}

func (s *PaymentService) failFromWebhook(ctx context.Context, paymentID string, request interface{}) (*models.Payment, error) {
	var payment *models.Payment
	changed := false
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		payment, err = tx.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if !payment.Status.IsConfirmable() {
			return nil
		}
		payment.Status = models.PaymentStatusFailed
		if err := tx.Payments.Save(ctx, payment); err != nil {
			return err
		}
		changed = true
		return s.appendLog(ctx, tx, payment, actionWebhookFailed, "success", request, nil, "Payment failed via webhook")
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, EventPaymentFailed, payment)
	}
	return payment, nil
}

// GetPayment returns a payment of one of the user's orders.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, userID string) (*models.Payment, error) {
	payment, _, err := s.owned(ctx, paymentID, userID)
	return payment, err
}

// GetPaymentLogs returns the audit trail of a payment, oldest first.
func (s *PaymentService) GetPaymentLogs(ctx context.Context, paymentID string) ([]models.PaymentLog, error) {
	if _, err := s.store.Payments.GetByID(ctx, paymentID); err != nil {
		return nil, notFoundOr(err, "Payment")
	}
	logs, err := s.store.Payments.Logs(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.PaymentLog{}
	}
	return logs, nil
}

func (s *PaymentService) owned(ctx context.Context, paymentID, userID string) (*models.Payment, *models.Order, error) {
	payment, err := s.store.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, nil, notFoundOr(err, "Payment")
	}
	order, err := s.store.Orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, notFoundOr(err, "Payment")
	}
	if order.UserID != userID {
		return nil, nil, NotFound("Payment")
	}
	return payment, order, nil
}

func (s *PaymentService) appendLog(ctx context.Context, st *repositories.Store, payment *models.Payment, action, status string, request, response interface{}, errMsg string) error {
	entry := &models.PaymentLog{
		Provider:  payment.Provider,
		Action:    action,
		Status:    status,
		Request:   snapshot(request),
		Response:  snapshot(response),
		CreatedAt: s.now(),
	}
	if payment.ID != "" {
		id := payment.ID
		entry.PaymentID = &id
	}
	if errMsg != "" {
		entry.ErrorMessage = &errMsg
	}
	return st.Payments.AppendLog(ctx, entry)
}

// logReceipt records a webhook that could not be attributed to a payment.
func (s *PaymentService) logReceipt(ctx context.Context, receipt *models.Payment, status string, body []byte, reason string) {
	request := map[string]int{"body_bytes": len(body)}
	if err := s.appendLog(ctx, s.store, receipt, actionWebhookReceived, status, request, nil, reason); err != nil {
		logger.Error(ctx, s.log, "failed to write payment log", zap.Error(err))
	}
	logger.Warn(ctx, s.log, "rejected webhook",
		zap.String("provider", string(receipt.Provider)),
		zap.String("status", status),
		zap.String("reason", reason),
	)
}

func snapshot(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

func (s *PaymentService) publish(ctx context.Context, key string, payment *models.Payment) {
	event := PaymentEvent{
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		Provider:   string(payment.Provider),
		Status:     string(payment.Status),
		Amount:     payment.Amount,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, key, event); err != nil {
		logger.Warn(ctx, s.log, "failed to publish payment event",
			zap.String("routing_key", key),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
	}
}
