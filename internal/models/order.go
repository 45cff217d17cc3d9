package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusCompleted},
}

// ParseOrderStatus accepts a status name in any case.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order represents a customer order. TotalAmount is frozen at creation time.
type Order struct {
	ID               string               `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID           string               `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Status           OrderStatus          `json:"status" gorm:"type:varchar(20);not null;index"`
	TotalAmount      decimal.Decimal      `json:"total_amount" gorm:"type:numeric(10,2);not null"`
	ShippingAddress  string               `json:"shipping_address" gorm:"type:text;not null"`
	PaymentReference *string              `json:"payment_reference" gorm:"type:varchar(255)"`
	Items            []OrderItem          `json:"items,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	StatusHistory    []OrderStatusHistory `json:"status_history,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// OrderItem is a single line of an order. PriceAtPurchase is a snapshot and is
// never recomputed from the live catalog.
type OrderItem struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID         string          `json:"order_id" gorm:"type:varchar(36);not null;index"`
	BookID          string          `json:"book_id" gorm:"type:varchar(36);not null;index"`
	Quantity        int             `json:"quantity" gorm:"not null"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase" gorm:"type:numeric(10,2);not null"`
	Book            *Book           `json:"book,omitempty" gorm:"foreignKey:BookID"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderStatusHistory is one append-only row per order status transition.
type OrderStatusHistory struct {
	ID        string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID   string      `json:"order_id" gorm:"type:varchar(36);not null;index"`
	Status    OrderStatus `json:"status" gorm:"type:varchar(20);not null"`
	Note      *string     `json:"note"`
	CreatedAt time.Time   `json:"created_at" gorm:"index"`
}

// TableName overrides gorm's pluralised default.
func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
