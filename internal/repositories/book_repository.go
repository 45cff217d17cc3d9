package repositories

import (
	"context"
	"fmt"
	"strings"

	"bookstore/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BookFilter narrows and pages a catalog listing.
type BookFilter struct {
	Search string
	Offset int
	Limit  int
}

// BookRepository defines the interface for book data access.
type BookRepository interface {
	List(ctx context.Context, filter BookFilter) ([]models.Book, int64, error)
	GetByID(ctx context.Context, id string) (*models.Book, error)
	// GetByIDForUpdate locks the book row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string, includeDeleted bool) (*models.Book, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	SetStock(ctx context.Context, id string, stock int) error
	SetRating(ctx context.Context, id string, average decimal.Decimal, count int) error
	SoftDelete(ctx context.Context, id string) error
}

// GORMBookRepository is a GORM implementation of BookRepository.
type GORMBookRepository struct {
	db *gorm.DB
}

// NewGORMBookRepository creates a new instance of GORMBookRepository.
func NewGORMBookRepository(db *gorm.DB) *GORMBookRepository {
	return &GORMBookRepository{
		db: db,
	}
}

// List returns live books ordered by title, plus the total matching count.
func (r *GORMBookRepository) List(ctx context.Context, filter BookFilter) ([]models.Book, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Book{}).Where("is_deleted = ?", false)
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	var books []models.Book
	if err := query.Order("title ASC").Offset(filter.Offset).Limit(filter.Limit).Find(&books).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}
	return books, total, nil
}

// GetByID retrieves a single live book by its ID.
func (r *GORMBookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, "id = ? AND is_deleted = ?", id, false).Error; err != nil {
		return nil, translate(err, "failed to get book by ID %s", id)
	}
	return &book, nil
}

// GetByIDForUpdate retrieves a book under an exclusive row lock.
func (r *GORMBookRepository) GetByIDForUpdate(ctx context.Context, id string, includeDeleted bool) (*models.Book, error) {
	query := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id)
	if !includeDeleted {
		query = query.Where("is_deleted = ?", false)
	}

	var book models.Book
	if err := query.First(&book).Error; err != nil {
		return nil, translate(err, "failed to lock book %s", id)
	}
	return &book, nil
}

// Create creates a new book in the database.
func (r *GORMBookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		return translate(err, "failed to create book")
	}
	return nil
}

// Update updates the catalog fields of an existing book. Stock is left alone.
func (r *GORMBookRepository) Update(ctx context.Context, book *models.Book) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND is_deleted = ?", book.ID, false).
		Updates(map[string]interface{}{
			"title":  book.Title,
			"author": book.Author,
			"isbn":   book.ISBN,
			"price":  book.Price,
		})
	if res.Error != nil {
		return translate(res.Error, "failed to update book %s", book.ID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("book with ID %s not found for update: %w", book.ID, ErrNotFound)
	}
	return nil
}

// SetStock overwrites the stock counter. Callers hold the row lock.
func (r *GORMBookRepository) SetStock(ctx context.Context, id string, stock int) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).Update("stock_quantity", stock)
	if res.Error != nil {
		return fmt.Errorf("failed to set stock for book %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("book with ID %s not found for stock update: %w", id, ErrNotFound)
	}
	return nil
}

// SetRating stores the denormalised review aggregate of a book.
func (r *GORMBookRepository) SetRating(ctx context.Context, id string, average decimal.Decimal, count int) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"average_rating": average,
			"review_count":   count,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set rating for book %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("book with ID %s not found for rating update: %w", id, ErrNotFound)
	}
	return nil
}

// SoftDelete flags a book as deleted.
func (r *GORMBookRepository) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("is_deleted", true)
	if res.Error != nil {
		return fmt.Errorf("failed to delete book: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("book with ID %s not found for deletion: %w", id, ErrNotFound)
	}
	return nil
}
