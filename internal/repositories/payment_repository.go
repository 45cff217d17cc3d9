package repositories

import (
	"context"
	"fmt"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment and payment log access.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	Save(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetByProviderReference(ctx context.Context, provider models.PaymentProvider, reference string) (*models.Payment, error)
	AppendLog(ctx context.Context, entry *models.PaymentLog) error
	Logs(ctx context.Context, paymentID string) ([]models.PaymentLog, error)
}

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{db: db}
}

func (r *GORMPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return translate(err, "failed to create payment for order %s", payment.OrderID)
	}
	return nil
}

func (r *GORMPaymentRepository) Save(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Save(payment).Error; err != nil {
		return translate(err, "failed to save payment %s", payment.ID)
	}
	return nil
}

func (r *GORMPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx), "payment "+id, "id = ?", id)
}

func (r *GORMPaymentRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	return r.first(forUpdate(r.db.WithContext(ctx)), "payment "+id, "id = ?", id)
}

func (r *GORMPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx), "payment by idempotency key", "idempotency_key = ?", key)
}

func (r *GORMPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx), "payment of order "+orderID, "order_id = ?", orderID)
}

func (r *GORMPaymentRepository) GetByProviderReference(ctx context.Context, provider models.PaymentProvider, reference string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx), "payment by reference "+reference, "provider = ? AND provider_reference = ?", provider, reference)
}

func (r *GORMPaymentRepository) first(db *gorm.DB, what string, query string, args ...interface{}) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Where(query, args...).First(&payment).Error; err != nil {
		return nil, translate(err, "failed to get %s", what)
	}
	return &payment, nil
}

func (r *GORMPaymentRepository) AppendLog(ctx context.Context, entry *models.PaymentLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append payment log %s: %w", entry.Action, err)
	}
	return nil
}

func (r *GORMPaymentRepository) Logs(ctx context.Context, paymentID string) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at ASC").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load logs of payment %s: %w", paymentID, err)
	}
	return logs, nil
}
