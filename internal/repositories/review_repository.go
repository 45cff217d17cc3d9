package repositories

import (
	"context"
	"fmt"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReviewRepository defines the interface for review data access.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id string) (*models.Review, error)
	GetByUserAndBook(ctx context.Context, userID, bookID string) (*models.Review, error)
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id string) error
	// ListByBook returns a page of a book's reviews, newest first, with User loaded.
	ListByBook(ctx context.Context, bookID string, offset, limit int) ([]models.Review, int64, error)
	// RatingOf returns the average rating rounded to two places and the review count.
	RatingOf(ctx context.Context, bookID string) (decimal.Decimal, int, error)
}

// GORMReviewRepository is a GORM implementation of ReviewRepository.
type GORMReviewRepository struct {
	db *gorm.DB
}

// NewGORMReviewRepository creates a new instance of GORMReviewRepository.
func NewGORMReviewRepository(db *gorm.DB) *GORMReviewRepository {
	return &GORMReviewRepository{db: db}
}

func (r *GORMReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Omit("User").Create(review).Error; err != nil {
		return translate(err, "failed to create review for book %s", review.BookID)
	}
	return nil
}

func (r *GORMReviewRepository) GetByID(ctx context.Context, id string) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to get review %s", id)
	}
	return &review, nil
}

func (r *GORMReviewRepository) GetByUserAndBook(ctx context.Context, userID, bookID string) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "user_id = ? AND book_id = ?", userID, bookID).Error; err != nil {
		return nil, translate(err, "failed to get review of book %s", bookID)
	}
	return &review, nil
}

// Update persists the rating and comment of a review.
func (r *GORMReviewRepository) Update(ctx context.Context, review *models.Review) error {
	res := r.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", review.ID).
		Updates(map[string]interface{}{
			"rating":     review.Rating,
			"comment":    review.Comment,
			"updated_at": review.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update review %s: %w", review.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("review with ID %s not found for update: %w", review.ID, ErrNotFound)
	}
	return nil
}

func (r *GORMReviewRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Review{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete review: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("review %s not found for deletion: %w", id, ErrNotFound)
	}
	return nil
}

func (r *GORMReviewRepository) ListByBook(ctx context.Context, bookID string, offset, limit int) ([]models.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{}).Where("book_id = ?", bookID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews of book %s: %w", bookID, err)
	}

	var reviews []models.Review
	err := query.Preload("User").Order("created_at DESC").Offset(offset).Limit(limit).Find(&reviews).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews of book %s: %w", bookID, err)
	}
	return reviews, total, nil
}

func (r *GORMReviewRepository) RatingOf(ctx context.Context, bookID string) (decimal.Decimal, int, error) {
	var row struct {
		Average float64
		Count   int
	}
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("book_id = ?", bookID).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to aggregate ratings of book %s: %w", bookID, err)
	}
	return decimal.NewFromFloat(row.Average).Round(2), row.Count, nil
}
