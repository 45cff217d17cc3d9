package repositories

import (
	"context"
	"fmt"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// OrderFilter narrows and pages an order listing. An empty UserID lists every
// user's orders.
type OrderFilter struct {
	UserID string
	Status *models.OrderStatus
	Offset int
	Limit  int
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	// Create inserts the order together with its items.
	Create(ctx context.Context, order *models.Order) error
	// GetByID loads the order with items (and their books) and history.
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// GetByIDForUpdate locks the order row and loads its items.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, order *models.Order) error
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	History(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error)
	// HasPurchased reports whether the user has a paid, shipped or completed
	// order containing the book.
	HasPurchased(ctx context.Context, userID, bookID string) (bool, error)
}

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
		order.Items[i].OrderID = order.ID
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return translate(err, "failed to create order")
	}
	return nil
}

func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Book").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get order by ID %s", id)
	}
	return &order, nil
}

func (r *GORMOrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := forUpdate(r.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to lock order %s", id)
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Find(&order.Items).Error; err != nil {
		return nil, fmt.Errorf("failed to load items of order %s: %w", id, err)
	}
	return &order, nil
}

// UpdateStatus persists the status and payment reference of an order.
func (r *GORMOrderRepository) UpdateStatus(ctx context.Context, order *models.Order) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":            order.Status,
			"payment_reference": order.PaymentReference,
			"updated_at":        order.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s not found for status update: %w", order.ID, ErrNotFound)
	}
	return nil
}

func (r *GORMOrderRepository) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append history for order %s: %w", entry.OrderID, err)
	}
	return nil
}

// List runs the page query and the count query concurrently.
func (r *GORMOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Model(&models.Order{})
		if filter.UserID != "" {
			db = db.Where("user_id = ?", filter.UserID)
		}
		if filter.Status != nil {
			db = db.Where("status = ?", *filter.Status)
		}
		return db
	}

	var (
		orders []models.Order
		total  int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := r.db.WithContext(gctx).Scopes(scope).
			Preload("Items").
			Order("created_at DESC").
			Offset(filter.Offset).Limit(filter.Limit).
			Find(&orders).Error
		if err != nil {
			return fmt.Errorf("failed to list orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.WithContext(gctx).Scopes(scope).Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count orders: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *GORMOrderRepository) History(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history of order %s: %w", orderID, err)
	}
	return history, nil
}

func (r *GORMOrderRepository) HasPurchased(ctx context.Context, userID, bookID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND order_items.book_id = ?", userID, bookID).
		Where("orders.status IN ?", []models.OrderStatus{
			models.OrderStatusPaid,
			models.OrderStatusShipped,
			models.OrderStatusCompleted,
		}).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check purchases of book %s: %w", bookID, err)
	}
	return n > 0, nil
}
