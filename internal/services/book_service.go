package services

import (
	"context"
	"errors"
	"strings"

	"bookstore/internal/models"
	"bookstore/internal/repositories"

	"github.com/shopspring/decimal"
)

// BookPage is one page of the catalog.
type BookPage struct {
	Items []models.Book `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// BookUpdate carries the fields an admin may change. Nil fields are kept.
type BookUpdate struct {
	Title         *string
	Author        *string
	ISBN          *string
	Price         *decimal.Decimal
	StockQuantity *int
}

// BookService handles business logic related to the catalog.
type BookService struct {
	repo repositories.BookRepository
}

// NewBookService creates a new BookService.
func NewBookService(repo repositories.BookRepository) *BookService {
	return &BookService{
		repo: repo,
	}
}

// ListBooks returns live books matching search, ordered by title.
func (s *BookService) ListBooks(ctx context.Context, search string, page, size int) (*BookPage, error) {
	q := OrderQuery{Page: page, Size: size}.normalize()
	books, total, err := s.repo.List(ctx, repositories.BookFilter{
		Search: search,
		Offset: (q.Page - 1) * q.Size,
		Limit:  q.Size,
	})
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []models.Book{}
	}
	return &BookPage{Items: books, Total: total, Page: q.Page, Size: q.Size}, nil
}

// GetBook retrieves a single live book by its ID.
func (s *BookService) GetBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Book")
	}
	return book, nil
}

// CreateBook adds a book to the catalog.
func (s *BookService) CreateBook(ctx context.Context, book *models.Book) error {
	if err := validateBook(book); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, book); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return Conflict("Book with this ISBN already exists")
		}
		return err
	}
	return nil
}

// UpdateBook applies a partial update to a live book.
func (s *BookService) UpdateBook(ctx context.Context, id string, update BookUpdate) (*models.Book, error) {
	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Book")
	}

	if update.Title != nil {
		book.Title = *update.Title
	}
	if update.Author != nil {
		book.Author = *update.Author
	}
	if update.ISBN != nil {
		book.ISBN = *update.ISBN
	}
	if update.Price != nil {
		book.Price = *update.Price
	}
	if update.StockQuantity != nil {
		book.StockQuantity = *update.StockQuantity
	}
	if err := validateBook(book); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, book); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, Conflict("Book with this ISBN already exists")
		}
		return nil, notFoundOr(err, "Book")
	}
	if update.StockQuantity != nil {
		if err := s.repo.SetStock(ctx, book.ID, book.StockQuantity); err != nil {
			return nil, notFoundOr(err, "Book")
		}
	}
	return book, nil
}

// DeleteBook soft-deletes a book. Orders keep referencing it.
func (s *BookService) DeleteBook(ctx context.Context, id string) error {
	return notFoundOr(s.repo.SoftDelete(ctx, id), "Book")
}

func validateBook(book *models.Book) error {
	if strings.TrimSpace(book.Title) == "" || strings.TrimSpace(book.Author) == "" || strings.TrimSpace(book.ISBN) == "" {
		return BadRequest("Title, author and ISBN are required")
	}
	if !book.Price.IsPositive() {
		return BadRequest("Price must be greater than 0")
	}
	if book.StockQuantity < 0 {
		return BadRequest("Stock quantity cannot be negative")
	}
	return nil
}
