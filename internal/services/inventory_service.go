package services

import (
	"context"
	"fmt"

	"bookstore/internal/models"
	"bookstore/internal/repositories"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InventoryService guards the stock counter of each book. It never opens or
// commits a transaction of its own: every method works on the Store it is
// handed, so the caller decides what the stock change commits together with.
type InventoryService struct {
	tracer trace.Tracer
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService() *InventoryService {
	return &InventoryService{tracer: otel.Tracer("services/inventory")}
}

// CheckStock reports whether a live book has at least qty units on hand.
func (s *InventoryService) CheckStock(ctx context.Context, st *repositories.Store, bookID string, qty int) (bool, error) {
	book, err := st.Books.GetByID(ctx, bookID)
	if err != nil {
		return false, notFoundOr(err, "Book")
	}
	return book.StockQuantity >= qty, nil
}

// ReserveStock decrements the stock of a live book under a row lock. Called
// inside a transaction, concurrent reservations of the same book serialise and
// the second waiter sees the already decremented counter.
func (s *InventoryService) ReserveStock(ctx context.Context, st *repositories.Store, bookID string, qty int) (*models.Book, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.ReserveStock", trace.WithAttributes(
		attribute.String("book.id", bookID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	if qty < 1 {
		return nil, BadRequest("Quantity must be at least 1")
	}

	book, err := st.Books.GetByIDForUpdate(ctx, bookID, false)
	if err != nil {
		span.RecordError(err)
		return nil, notFoundOr(err, "Book")
	}
	if book.StockQuantity < qty {
		return nil, &Error{
			Kind:    KindBadRequest,
			Message: fmt.Sprintf("Insufficient stock for %s", book.Title),
			Err:     ErrInsufficientStock,
		}
	}

	book.StockQuantity -= qty
	if err := st.Books.SetStock(ctx, book.ID, book.StockQuantity); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return book, nil
}

// ReleaseStock returns qty units to a book. Soft-deleted books are included so
// that cancelling an old order restores exactly what it reserved.
func (s *InventoryService) ReleaseStock(ctx context.Context, st *repositories.Store, bookID string, qty int) (*models.Book, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.ReleaseStock", trace.WithAttributes(
		attribute.String("book.id", bookID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	if qty < 1 {
		return nil, BadRequest("Quantity must be at least 1")
	}

	book, err := st.Books.GetByIDForUpdate(ctx, bookID, true)
	if err != nil {
		span.RecordError(err)
		return nil, notFoundOr(err, "Book")
	}

	book.StockQuantity += qty
	if err := st.Books.SetStock(ctx, book.ID, book.StockQuantity); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return book, nil
}

// GetStock returns the current stock of a live book.
func (s *InventoryService) GetStock(ctx context.Context, st *repositories.Store, bookID string) (int, error) {
	book, err := st.Books.GetByID(ctx, bookID)
	if err != nil {
		return 0, notFoundOr(err, "Book")
	}
	return book.StockQuantity, nil
}

// releaseItems returns the stock of every line of an order.
func (s *InventoryService) releaseItems(ctx context.Context, st *repositories.Store, items []models.OrderItem) error {
	for _, item := range items {
		if _, err := s.ReleaseStock(ctx, st, item.BookID, item.Quantity); err != nil {
			return fmt.Errorf("failed to release stock of book %s: %w", item.BookID, err)
		}
	}
	return nil
}
