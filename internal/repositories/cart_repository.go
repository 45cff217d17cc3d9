package repositories

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository defines the interface for cart data access.
type CartRepository interface {
	// ListActive returns the user's unexpired items whose book is still live,
	// newest first, with Book loaded.
	ListActive(ctx context.Context, userID string, now time.Time) ([]models.CartItem, error)
	// GetByUserAndBook ignores expiry so the unique (user, book) row can be reused.
	GetByUserAndBook(ctx context.Context, userID, bookID string) (*models.CartItem, error)
	GetActiveByID(ctx context.Context, id, userID string, now time.Time) (*models.CartItem, error)
	Save(ctx context.Context, item *models.CartItem) error
	Delete(ctx context.Context, id string) error
	ClearUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

func (r *GORMCartRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("added_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart for user %s: %w", userID, err)
	}

	live := items[:0]
	for _, item := range items {
		if item.Book != nil && !item.Book.IsDeleted {
			live = append(live, item)
		}
	}
	return live, nil
}

func (r *GORMCartRepository) GetByUserAndBook(ctx context.Context, userID, bookID string) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).First(&item, "user_id = ? AND book_id = ?", userID, bookID).Error; err != nil {
		return nil, translate(err, "failed to get cart item for book %s", bookID)
	}
	return &item, nil
}

func (r *GORMCartRepository) GetActiveByID(ctx context.Context, id, userID string, now time.Time) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Book").
		First(&item, "id = ? AND user_id = ? AND expires_at > ?", id, userID, now).Error
	if err != nil {
		return nil, translate(err, "failed to get cart item %s", id)
	}
	return &item, nil
}

// Save inserts the item when it has no ID yet and updates it otherwise.
func (r *GORMCartRepository) Save(ctx context.Context, item *models.CartItem) error {
	db := r.db.WithContext(ctx).Omit("Book")
	if item.ID == "" {
		item.ID = uuid.New().String()
		if err := db.Create(item).Error; err != nil {
			return translate(err, "failed to create cart item")
		}
		return nil
	}
	if err := db.Save(item).Error; err != nil {
		return translate(err, "failed to update cart item %s", item.ID)
	}
	return nil
}

func (r *GORMCartRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.CartItem{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete cart item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cart item %s not found for deletion: %w", id, ErrNotFound)
	}
	return nil
}

func (r *GORMCartRepository) ClearUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Delete(&models.CartItem{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to clear cart for user %s: %w", userID, err)
	}
	return nil
}

func (r *GORMCartRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.CartItem{}, "expires_at <= ?", now)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired cart items: %w", res.Error)
	}
	return res.RowsAffected, nil
}
