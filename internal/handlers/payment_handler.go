package handlers

import (
	"bookstore/internal/middleware"
	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Signature headers, by provider.
var signatureHeaders = map[models.PaymentProvider]string{
	models.ProviderStripe: "Stripe-Signature",
	models.ProviderPayPal: "Paypal-Transmission-Sig",
}

// PaymentHandler handles HTTP requests for payments and provider webhooks.
type PaymentHandler struct {
	service *services.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterWebhookRoutes registers the unauthenticated provider callbacks.
// Providers authenticate with a payload signature instead of a token.
func (h *PaymentHandler) RegisterWebhookRoutes(router fiber.Router) {
	router.Post("/payments/webhook/:provider", h.HandleWebhook)
}

// RegisterRoutes registers the customer payment routes. They require AuthRequired.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/checkout", h.HandleCheckout)
	paymentRoutes.Post("/:id/confirm", h.HandleConfirm)
	paymentRoutes.Get("/:id", h.HandleGetPayment)
}

// RegisterAdminRoutes registers refunds and the payment audit trail.
func (h *PaymentHandler) RegisterAdminRoutes(router fiber.Router) {
	router.Post("/payments/:id/refund", h.HandleRefund)
	router.Get("/admin/payments/:id/logs", h.HandleGetLogs)
}

// CheckoutRequest is the body of POST /payments/checkout.
type CheckoutRequest struct {
	OrderID        string `json:"order_id" validate:"required"`
	Provider       string `json:"provider" validate:"required,oneof=stripe paypal STRIPE PAYPAL"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=255"`
}

// ConfirmRequest carries the provider-specific confirmation token: a card
// token for Stripe, the payer ID for PayPal.
type ConfirmRequest struct {
	PaymentMethod string `json:"payment_method"`
	PayerID       string `json:"payer_id"`
}

// RefundRequest is the body of POST /payments/:id/refund.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"max=500"`
}

// PaymentResponse is the common shape of checkout and confirm responses.
type PaymentResponse struct {
	PaymentID    string               `json:"payment_id"`
	Status       models.PaymentStatus `json:"status"`
	Message      string               `json:"message"`
	ClientSecret string               `json:"client_secret,omitempty"`
	ApprovalURL  string               `json:"approval_url,omitempty"`
}

// HandleCheckout starts a payment for one of the caller's orders. A replayed
// idempotency key answers 200 with the existing payment.
func (h *PaymentHandler) HandleCheckout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	provider, err := models.ParsePaymentProvider(req.Provider)
	if err != nil {
		return services.BadRequest("Unsupported payment provider")
	}

	res, err := h.service.InitiatePayment(c.UserContext(), middleware.UserID(c), req.OrderID, provider, req.IdempotencyKey)
	if err != nil {
		return err
	}

	payment := res.PaymentRecord()
	body := PaymentResponse{PaymentID: payment.ID, Status: payment.Status}
	status := fiber.StatusCreated
	switch r := res.(type) {
	case services.StripeIntent:
		body.ClientSecret = r.ClientSecret
		body.Message = "Payment intent created"
	case services.PayPalApproval:
		body.ApprovalURL = r.ApprovalURL
		body.Message = "Approve the payment at the approval URL"
	case services.AlreadyExists:
		body.Message = "Payment already exists for this idempotency key"
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(body)
}

func (h *PaymentHandler) HandleConfirm(c *fiber.Ctx) error {
	var req ConfirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	token := req.PaymentMethod
	if token == "" {
		token = req.PayerID
	}

	res, err := h.service.ConfirmPayment(c.UserContext(), c.Params("id"), middleware.UserID(c), token)
	if err != nil {
		return err
	}
	return c.JSON(PaymentResponse{PaymentID: res.Payment.ID, Status: res.Payment.Status, Message: res.Message})
}

func (h *PaymentHandler) HandleGetPayment(c *fiber.Ctx) error {
	payment, err := h.service.GetPayment(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(payment)
}

func (h *PaymentHandler) HandleRefund(c *fiber.Ctx) error {
	var req RefundRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	res, err := h.service.RefundPayment(c.UserContext(), c.Params("id"), req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"payment_id":      res.Payment.ID,
		"status":          res.Payment.Status,
		"refund_id":       res.RefundID,
		"amount_refunded": res.AmountRefunded,
	})
}

func (h *PaymentHandler) HandleGetLogs(c *fiber.Ctx) error {
	logs, err := h.service.GetPaymentLogs(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(logs)
}

// HandleWebhook passes the raw body through untouched; signatures are
// computed over the exact bytes the provider sent.
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	name := c.Params("provider")
	signature := ""
	if provider, err := models.ParsePaymentProvider(name); err == nil {
		signature = c.Get(signatureHeaders[provider])
	}

	body := append([]byte(nil), c.Body()...)
	res, err := h.service.HandleWebhook(c.UserContext(), name, body, signature)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
