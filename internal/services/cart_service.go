package services

import (
	"context"
	"errors"
	"time"

	"bookstore/internal/logger"
	"bookstore/internal/models"
	"bookstore/internal/repositories"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultCartTTL is how long an untouched cart line stays visible.
const DefaultCartTTL = 7 * 24 * time.Hour

// Cart is the live view of a user's cart. Subtotal uses current catalog
// prices.
type Cart struct {
	Items      []models.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
}

// CartService manages per-user carts with sliding expiry.
type CartService struct {
	store     *repositories.Store
	inventory *InventoryService
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger
	tracer    trace.Tracer
}

// NewCartService creates a new CartService. A non-positive ttl falls back to
// DefaultCartTTL.
func NewCartService(store *repositories.Store, inventory *InventoryService, ttl time.Duration, log *zap.Logger) *CartService {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartService{
		store:     store,
		inventory: inventory,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
		tracer:    otel.Tracer("services/cart"),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *CartService) SetClock(now func() time.Time) {
	s.now = now
}

// GetCart returns the user's unexpired lines whose book is still listed.
func (s *CartService) GetCart(ctx context.Context, userID string) (*Cart, error) {
	return s.cart(ctx, s.store, userID)
}

func (s *CartService) cart(ctx context.Context, st *repositories.Store, userID string) (*Cart, error) {
	items, err := st.Carts.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	cart := &Cart{Items: items, Subtotal: decimal.Zero}
	for _, item := range items {
		cart.TotalItems += item.Quantity
		cart.Subtotal = cart.Subtotal.Add(item.Book.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

// AddItem puts qty units of a book in the cart, merging with an existing
// unexpired line. An expired line for the same book is reused as if new.
func (s *CartService) AddItem(ctx context.Context, userID, bookID string, qty int) (*models.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddItem")
	defer span.End()

	if qty < 1 {
		return nil, BadRequest("Quantity must be at least 1")
	}

	book, err := s.store.Books.GetByID(ctx, bookID)
	if err != nil {
		return nil, notFoundOr(err, "Book")
	}
	if book.StockQuantity < qty {
		return nil, BadRequest("Only %d items available", book.StockQuantity)
	}

	now := s.now()
	item, err := s.store.Carts.GetByUserAndBook(ctx, userID, bookID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		item = &models.CartItem{UserID: userID, BookID: bookID, Quantity: qty, AddedAt: now}
	case err != nil:
		return nil, err
	case item.Expired(now):
		item.Quantity = qty
		item.AddedAt = now
	default:
		if book.StockQuantity < item.Quantity+qty {
			return nil, BadRequest("Only %d items available", book.StockQuantity)
		}
		item.Quantity += qty
	}
	item.ExpiresAt = now.Add(s.ttl)

	if err := s.store.Carts.Save(ctx, item); err != nil {
		span.RecordError(err)
		return nil, err
	}
	item.Book = book

	logger.Debug(ctx, s.log, "cart item saved",
		zap.String("user_id", userID),
		zap.String("book_id", bookID),
		zap.Int("quantity", item.Quantity),
	)
	return item, nil
}

// UpdateItem sets the quantity of one of the user's lines.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, qty int) (*models.CartItem, error) {
	if qty < 1 {
		return nil, BadRequest("Quantity must be at least 1")
	}

	now := s.now()
	item, err := s.store.Carts.GetActiveByID(ctx, itemID, userID, now)
	if err != nil {
		return nil, notFoundOr(err, "Cart item")
	}

	ok, err := s.inventory.CheckStock(ctx, s.store, item.BookID, qty)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, BadRequest("Only 0 items available")
		}
		return nil, err
	}
	if !ok {
		return nil, BadRequest("Only %d items available", item.Book.StockQuantity)
	}

	item.Quantity = qty
	item.ExpiresAt = now.Add(s.ttl)
	if err := s.store.Carts.Save(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes one of the user's lines.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	item, err := s.store.Carts.GetActiveByID(ctx, itemID, userID, s.now())
	if err != nil {
		return notFoundOr(err, "Cart item")
	}
	return notFoundOr(s.store.Carts.Delete(ctx, item.ID), "Cart item")
}

// ClearCart deletes every line of the user, expired or not.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	return s.store.Carts.ClearUser(ctx, userID)
}

// ValidateCartForCheckout is the optimistic pre-flight check before an order
// is placed: the cart must be non-empty and each line covered by current
// stock. It takes no locks; reservation re-checks under lock.
func (s *CartService) ValidateCartForCheckout(ctx context.Context, st *repositories.Store, userID string) (*Cart, error) {
	cart, err := s.cart(ctx, st, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, BadRequest("Cart is empty")
	}

	for _, item := range cart.Items {
		stock, err := s.inventory.GetStock(ctx, st, item.BookID)
		if err != nil {
			return nil, err
		}
		if stock < item.Quantity {
			return nil, BadRequest("Insufficient stock for '%s'. Available: %d", item.Book.Title, stock)
		}
	}
	return cart, nil
}

// SweepExpired physically deletes expired lines. Reads already ignore them,
// so this only reclaims space.
func (s *CartService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.Carts.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info(ctx, s.log, "swept expired cart items", zap.Int64("count", n))
	}
	return n, nil
}
