package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProvider identifies an external payment processor.
type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
)

// ParsePaymentProvider accepts a provider name in any case.
func ParsePaymentProvider(s string) (PaymentProvider, error) {
	p := PaymentProvider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderStripe, ProviderPayPal:
		return p, nil
	}
	return "", fmt.Errorf("unsupported payment provider %q", s)
}

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "PENDING"
	PaymentStatusProcessing     PaymentStatus = "PROCESSING"
	PaymentStatusRequiresAction PaymentStatus = "REQUIRES_ACTION"
	PaymentStatusCompleted      PaymentStatus = "COMPLETED"
	PaymentStatusFailed         PaymentStatus = "FAILED"
	PaymentStatusRefunded       PaymentStatus = "REFUNDED"
)

// FAILED -> COMPLETED is only taken when a provider reports success after we
// recorded a failure (e.g. a timed-out confirm). FAILED -> PENDING recycles the
// row for a new checkout attempt on the same order.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:        {PaymentStatusProcessing, PaymentStatusRequiresAction, PaymentStatusFailed},
	PaymentStatusProcessing:     {PaymentStatusRequiresAction, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusRequiresAction: {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:      {PaymentStatusRefunded},
	PaymentStatusFailed:         {PaymentStatusCompleted, PaymentStatusPending},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsConfirmable reports whether a client confirmation may be attempted.
func (s PaymentStatus) IsConfirmable() bool {
	return s == PaymentStatusProcessing || s == PaymentStatusRequiresAction
}

// InFlight reports whether the payment is started but unresolved.
func (s PaymentStatus) InFlight() bool {
	return s == PaymentStatusPending || s.IsConfirmable()
}

// Payment is the single payment attempt record of an order.
type Payment struct {
	ID                string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID           string           `json:"order_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	Provider          PaymentProvider  `json:"provider" gorm:"type:varchar(20);not null"`
	Amount            decimal.Decimal  `json:"amount" gorm:"type:numeric(10,2);not null"`
	Status            PaymentStatus    `json:"status" gorm:"type:varchar(20);not null;index"`
	IdempotencyKey    string           `json:"idempotency_key" gorm:"type:varchar(255);not null;uniqueIndex"`
	ProviderReference *string          `json:"provider_reference" gorm:"type:varchar(255);index"`
	RefundReference   *string          `json:"refund_reference,omitempty" gorm:"type:varchar(255)"`
	AmountRefunded    *decimal.Decimal `json:"amount_refunded,omitempty" gorm:"type:numeric(10,2)"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// PaymentLog is an append-only record of one provider interaction.
// PaymentID is nil for webhooks that could not be attributed to a payment.
type PaymentLog struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PaymentID    *string         `json:"payment_id" gorm:"type:varchar(36);index"`
	Provider     PaymentProvider `json:"provider" gorm:"type:varchar(20)"`
	Action       string          `json:"action" gorm:"type:varchar(50);not null"`
	Status       string          `json:"status" gorm:"type:varchar(50);not null"`
	Request      string          `json:"request" gorm:"type:text"`
	Response     string          `json:"response" gorm:"type:text"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at" gorm:"index"`
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Book{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&Payment{},
		&PaymentLog{},
		&Review{},
	}
}
