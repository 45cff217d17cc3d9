package services_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateOrder_FreezesPricesAndClearsCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "alice")
	a := e.seedBook(t, "A", "10.00", 5)
	b := e.seedBook(t, "B", "20.00", 5)

	_, err := e.carts.AddItem(ctx, user.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)

	order, err := e.orders.CreateOrder(ctx, user.ID, "1 Main St")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "40.00", order.TotalAmount.StringFixed(2))
	assert.Len(t, order.Items, 2)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, models.OrderStatusPending, order.StatusHistory[0].Status)

	assert.Equal(t, 3, e.stock(t, a.ID))
	assert.Equal(t, 4, e.stock(t, b.ID))
	cart, err := e.carts.GetCart(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 1, e.events.countOf(services.EventOrderCreated))

	// later price changes leave the order untouched
	a.Price = decimal.RequireFromString("99.00")
	require.NoError(t, e.store.Books.Update(ctx, a))
	got, err := e.orders.GetOrder(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", got.TotalAmount.StringFixed(2))
	for _, item := range got.Items {
		if item.BookID == a.ID {
			assert.Equal(t, "10.00", item.PriceAtPurchase.StringFixed(2))
		}
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	e := newEnv(t)
	user := e.seedUser(t, "bob")

	_, err := e.orders.CreateOrder(context.Background(), user.ID, "1 Main St")
	assert.Equal(t, services.KindBadRequest, kindOf(err))
	assert.EqualError(t, err, "Cart is empty")
}

func TestCreateOrder_InsufficientStockLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "carol")
	book := e.seedBook(t, "Rare", "12.00", 2)

	_, err := e.carts.AddItem(ctx, user.ID, book.ID, 2)
	require.NoError(t, err)
	require.NoError(t, e.store.Books.SetStock(ctx, book.ID, 1))

	_, err = e.orders.CreateOrder(ctx, user.ID, "1 Main St")
	assert.Equal(t, services.KindBadRequest, kindOf(err))

	assert.Equal(t, 1, e.stock(t, book.ID))
	assert.Equal(t, int64(0), e.count(t, &models.Order{}, ""))
	cart, err := e.carts.GetCart(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1, "cart survives a failed checkout")
}

func TestCreateOrder_FailureMidReservationRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "dave")
	a := e.seedBook(t, "First", "10.00", 5)
	b := e.seedBook(t, "Second", "10.00", 5)

	_, err := e.carts.AddItem(ctx, user.ID, a.ID, 1)
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)

	updates := 0
	err = e.db.Callback().Update().Before("gorm:update").Register("test:fail_second_stock_write", func(db *gorm.DB) {
		if db.Statement.Table != "books" {
			return
		}
		updates++
		if updates == 2 {
			_ = db.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	_, err = e.orders.CreateOrder(ctx, user.ID, "1 Main St")
	require.Error(t, err)
	assert.Equal(t, 2, updates)

	assert.Equal(t, 5, e.stock(t, a.ID))
	assert.Equal(t, 5, e.stock(t, b.ID))
	assert.Equal(t, int64(0), e.count(t, &models.Order{}, ""))
	assert.Equal(t, int64(0), e.count(t, &models.OrderItem{}, ""))
	assert.Equal(t, int64(2), e.count(t, &models.CartItem{}, "user_id = ?", user.ID))
	assert.Zero(t, e.events.countOf(services.EventOrderCreated))
}

func TestCreateOrder_LocksBooksInIDOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "lock_order")
	books := []*models.Book{
		e.seedBook(t, "One", "1.00", 5),
		e.seedBook(t, "Two", "1.00", 5),
		e.seedBook(t, "Three", "1.00", 5),
	}
	for _, b := range books {
		_, err := e.carts.AddItem(ctx, user.ID, b.ID, 1)
		require.NoError(t, err)
	}

	var locked []string
	err := e.db.Callback().Query().After("gorm:query").Register("test:record_locked_books", func(db *gorm.DB) {
		if _, ok := db.Statement.Clauses["FOR"]; !ok || db.Statement.Table != "books" {
			return
		}
		if book, ok := db.Statement.Dest.(*models.Book); ok {
			locked = append(locked, book.ID)
		}
	})
	require.NoError(t, err)

	_, err = e.orders.CreateOrder(ctx, user.ID, "1 Main St")
	require.NoError(t, err)

	require.Len(t, locked, 3)
	assert.True(t, sort.StringsAreSorted(locked), "locked %v", locked)
}

func TestCreateOrder_TotalMatchesLockedPrices(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "repriced")
	book := e.seedBook(t, "Volatile", "10.00", 5)
	_, err := e.carts.AddItem(ctx, user.ID, book.ID, 2)
	require.NoError(t, err)

	// the price moves after the cart was read but before the row is locked
	repriced := false
	err = e.db.Callback().Query().Before("gorm:query").Register("test:reprice_before_lock", func(db *gorm.DB) {
		if _, ok := db.Statement.Clauses["FOR"]; !ok || db.Statement.Table != "books" || repriced {
			return
		}
		repriced = true
		_ = db.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE books SET price = ? WHERE id = ?", "12.00", book.ID).Error
	})
	require.NoError(t, err)

	order, err := e.orders.CreateOrder(ctx, user.ID, "1 Main St")
	require.NoError(t, err)
	require.True(t, repriced)

	require.Len(t, order.Items, 1)
	assert.Equal(t, "12.00", order.Items[0].PriceAtPurchase.StringFixed(2))
	assert.Equal(t, "24.00", order.TotalAmount.StringFixed(2))
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "erin")
	order, book := e.placeOrder(t, user.ID, "10.00", 3)
	assert.Equal(t, 97, e.stock(t, book.ID))

	cancelled, err := e.orders.CancelOrder(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 100, e.stock(t, book.ID))

	_, err = e.orders.CancelOrder(ctx, order.ID, user.ID)
	assert.Equal(t, services.KindBadRequest, kindOf(err))
	assert.EqualError(t, err, "Only pending orders can be cancelled")
	assert.Equal(t, 100, e.stock(t, book.ID), "a second cancel releases nothing")

	tracking, err := e.orders.GetOrderTracking(ctx, order.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, tracking.History, 2)
	assert.Equal(t, models.OrderStatusPending, tracking.History[0].Status)
	assert.Equal(t, models.OrderStatusCancelled, tracking.History[1].Status)
	require.NotNil(t, tracking.History[1].Note)
	assert.Equal(t, "Cancelled by customer", *tracking.History[1].Note)
}

func TestCancelOrder_OtherUsersOrderIsHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.seedUser(t, "frank")
	other := e.seedUser(t, "gina")
	order, _ := e.placeOrder(t, owner.ID, "10.00", 1)

	_, err := e.orders.CancelOrder(ctx, order.ID, other.ID)
	assert.Equal(t, services.KindNotFound, kindOf(err))
	_, err = e.orders.GetOrder(ctx, order.ID, other.ID)
	assert.Equal(t, services.KindNotFound, kindOf(err))
	_, err = e.orders.GetOrderTracking(ctx, order.ID, other.ID)
	assert.Equal(t, services.KindNotFound, kindOf(err))

	_, err = e.orders.GetOrderAdmin(ctx, order.ID)
	assert.NoError(t, err)
	_, err = e.orders.GetOrderAdmin(ctx, "missing")
	assert.Equal(t, services.KindNotFound, kindOf(err))
}

func TestUpdateOrderStatus_FollowsTransitionTable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "hank")
	order, _ := e.placeOrder(t, user.ID, "10.00", 1)

	_, err := e.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, "")
	assert.EqualError(t, err, "Cannot transition from PENDING to SHIPPED")

	for _, next := range []models.OrderStatus{models.OrderStatusPaid, models.OrderStatusShipped, models.OrderStatusCompleted} {
		updated, err := e.orders.UpdateOrderStatus(ctx, order.ID, next, "moved by admin")
		require.NoError(t, err, "to %s", next)
		assert.Equal(t, next, updated.Status)
	}

	for _, next := range []models.OrderStatus{
		models.OrderStatusPending, models.OrderStatusPaid, models.OrderStatusShipped,
		models.OrderStatusCompleted, models.OrderStatusCancelled,
	} {
		_, err := e.orders.UpdateOrderStatus(ctx, order.ID, next, "")
		assert.Equal(t, services.KindBadRequest, kindOf(err), "COMPLETED is terminal, got through to %s", next)
	}

	tracking, err := e.orders.GetOrderTracking(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.Len(t, tracking.History, 4, "one history row per successful transition")
	assert.Equal(t, 3, e.events.countOf(services.EventOrderStatusChanged))

	_, err = e.orders.UpdateOrderStatus(ctx, "missing", models.OrderStatusPaid, "")
	assert.Equal(t, services.KindNotFound, kindOf(err))
}

func TestUpdateOrderStatus_CancelPaidOrderRestoresStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "ivy")
	order, book := e.placeOrder(t, user.ID, "10.00", 4)

	_, err := e.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPaid, "")
	require.NoError(t, err)
	_, err = e.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled, "Out of business")
	require.NoError(t, err)
	assert.Equal(t, 100, e.stock(t, book.ID))
}

func TestUpdateOrderStatus_CancelAfterBookDeletedStillRestocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "jack")
	order, book := e.placeOrder(t, user.ID, "10.00", 2)
	require.NoError(t, e.store.Books.SoftDelete(ctx, book.ID))

	_, err := e.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, 100, e.stock(t, book.ID))
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice")
	bob := e.seedUser(t, "bob")

	var first *models.Order
	for i := 0; i < 3; i++ {
		order, _ := e.placeOrder(t, alice.ID, "5.00", 1)
		if first == nil {
			first = order
		}
	}
	e.placeOrder(t, bob.ID, "5.00", 1)
	_, err := e.orders.CancelOrder(ctx, first.ID, alice.ID)
	require.NoError(t, err)

	page, err := e.orders.GetUserOrders(ctx, alice.ID, services.OrderQuery{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
	for _, o := range page.Items {
		assert.Equal(t, alice.ID, o.UserID)
	}

	page, err = e.orders.GetUserOrders(ctx, alice.ID, services.OrderQuery{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	cancelled := models.OrderStatusCancelled
	page, err = e.orders.GetUserOrders(ctx, alice.ID, services.OrderQuery{Status: &cancelled})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Equal(t, 20, page.Size)

	all, err := e.orders.GetAllOrders(ctx, services.OrderQuery{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Equal(t, 100, all.Size)

	empty, err := e.orders.GetUserOrders(ctx, "nobody", services.OrderQuery{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}
