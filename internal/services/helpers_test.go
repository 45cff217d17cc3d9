package services_test

import (
	"context"
	"fmt"
	"testing"

	"bookstore/internal/database"
	"bookstore/internal/models"
	"bookstore/internal/payments"
	"bookstore/internal/repositories"
	"bookstore/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	db        *gorm.DB
	store     *repositories.Store
	inventory *services.InventoryService
	carts     *services.CartService
	orders    *services.OrderService
	payments  *services.PaymentService
	reviews   *services.ReviewService
	events    *recordingPublisher
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenMigrated(database.Config{Driver: "sqlite", DSN: dsn, Silent: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newEnv(t *testing.T, providers ...payments.Provider) *env {
	t.Helper()
	db := newTestDB(t)
	store := repositories.NewStore(db)
	log := zap.NewNop()
	events := &recordingPublisher{}

	if len(providers) == 0 {
		providers = []payments.Provider{payments.NewStripeSimulator(""), payments.NewPayPalSimulator("")}
	}

	inventory := services.NewInventoryService()
	carts := services.NewCartService(store, inventory, 0, log)
	orders := services.NewOrderService(store, inventory, carts, events, log)
	pays := services.NewPaymentService(store, payments.NewRegistry(providers...), orders, inventory, events, log)

	return &env{
		db:        db,
		store:     store,
		inventory: inventory,
		carts:     carts,
		orders:    orders,
		payments:  pays,
		reviews:   services.NewReviewService(store, log),
		events:    events,
	}
}

func (e *env) seedBook(t *testing.T, title, price string, stock int) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:         title,
		Author:        "Author of " + title,
		ISBN:          uuid.NewString()[:13],
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
	require.NoError(t, e.store.Books.Create(context.Background(), book))
	return book
}

func (e *env) seedUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{Username: name, Email: name + "@example.com", Password: "x", IsActive: true}
	require.NoError(t, e.store.Users.Create(context.Background(), user))
	return user
}

func (e *env) stock(t *testing.T, bookID string) int {
	t.Helper()
	var book models.Book
	require.NoError(t, e.db.First(&book, "id = ?", bookID).Error)
	return book.StockQuantity
}

func (e *env) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// placeOrder seeds a book, fills the cart and checks out.
func (e *env) placeOrder(t *testing.T, userID, price string, qty int) (*models.Order, *models.Book) {
	t.Helper()
	ctx := context.Background()
	book := e.seedBook(t, "Book "+uuid.NewString()[:8], price, 100)
	_, err := e.carts.AddItem(ctx, userID, book.ID, qty)
	require.NoError(t, err)
	order, err := e.orders.CreateOrder(ctx, userID, "1 Main St")
	require.NoError(t, err)
	return order, book
}

func kindOf(err error) services.ErrorKind {
	return services.KindOf(err)
}

// recordingPublisher remembers published routing keys.
type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) countOf(key string) int {
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

// MockProvider is a mock implementation of payments.Provider
type MockProvider struct {
	mock.Mock
	name models.PaymentProvider
}

func newMockProvider(name models.PaymentProvider) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() models.PaymentProvider {
	return m.name
}

func (m *MockProvider) CreatePayment(ctx context.Context, req payments.CreateRequest) (*payments.CreateResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CreateResult), args.Error(1)
}

func (m *MockProvider) Confirm(ctx context.Context, reference, token string) (*payments.ConfirmResult, error) {
	args := m.Called(reference, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.ConfirmResult), args.Error(1)
}

func (m *MockProvider) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.RefundResult), args.Error(1)
}

func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string) bool {
	args := m.Called(payload, signature)
	return args.Bool(0)
}

func (m *MockProvider) ParseWebhook(payload []byte) (*payments.WebhookEvent, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.WebhookEvent), args.Error(1)
}
