package services_test

import (
	"context"
	"testing"

	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) bookRating(t *testing.T, id string) (string, int) {
	t.Helper()
	var book models.Book
	require.NoError(t, e.db.First(&book, "id = ?", id).Error)
	return book.AverageRating.StringFixed(2), book.ReviewCount
}

func (e *env) setOrderStatus(t *testing.T, id string, status models.OrderStatus) {
	t.Helper()
	require.NoError(t, e.db.Model(&models.Order{}).Where("id = ?", id).Update("status", status).Error)
}

func TestCreateReview_VerifiedPurchase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.seedUser(t, "buyer")
	browser := e.seedUser(t, "browser")

	order, book := e.placeOrder(t, buyer.ID, "15.00", 1)
	payment := e.initiate(t, buyer.ID, order.ID, models.ProviderStripe)
	_, err := e.payments.ConfirmPayment(ctx, payment.ID, buyer.ID, "tok_visa")
	require.NoError(t, err)

	// a pending order is not a purchase
	_, err = e.carts.AddItem(ctx, browser.ID, book.ID, 1)
	require.NoError(t, err)
	_, err = e.orders.CreateOrder(ctx, browser.ID, "2 Side St")
	require.NoError(t, err)

	verified, err := e.reviews.CreateReview(ctx, buyer.ID, book.ID, 5, "  Loved it  ")
	require.NoError(t, err)
	assert.True(t, verified.IsVerifiedPurchase)
	assert.Equal(t, "Loved it", verified.Comment)

	unverified, err := e.reviews.CreateReview(ctx, browser.ID, book.ID, 2, "")
	require.NoError(t, err)
	assert.False(t, unverified.IsVerifiedPurchase)

	avg, count := e.bookRating(t, book.ID)
	assert.Equal(t, "3.50", avg)
	assert.Equal(t, 2, count)
}

func TestCreateReview_PurchaseStatuses(t *testing.T) {
	cases := []struct {
		status   models.OrderStatus
		verified bool
	}{
		{models.OrderStatusPending, false},
		{models.OrderStatusPaid, true},
		{models.OrderStatusShipped, true},
		{models.OrderStatusCompleted, true},
		{models.OrderStatusCancelled, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			e := newEnv(t)
			user := e.seedUser(t, "reader")
			order, book := e.placeOrder(t, user.ID, "9.00", 1)
			e.setOrderStatus(t, order.ID, tc.status)

			review, err := e.reviews.CreateReview(context.Background(), user.ID, book.ID, 4, "ok")
			require.NoError(t, err)
			assert.Equal(t, tc.verified, review.IsVerifiedPurchase)
		})
	}
}

func TestCreateReview_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.seedUser(t, "critic")
	book := e.seedBook(t, "Reviewed", "10.00", 1)

	_, err := e.reviews.CreateReview(ctx, user.ID, book.ID, 3, "fine")
	require.NoError(t, err)

	_, err = e.reviews.CreateReview(ctx, user.ID, book.ID, 4, "again")
	assert.Equal(t, services.KindConflict, kindOf(err))
	assert.EqualError(t, err, "You have already reviewed this book")

	for _, rating := range []int{0, 6} {
		_, err = e.reviews.CreateReview(ctx, user.ID, book.ID, rating, "")
		assert.Equal(t, services.KindBadRequest, kindOf(err), "rating %d", rating)
	}

	_, err = e.reviews.CreateReview(ctx, user.ID, "missing", 3, "")
	assert.Equal(t, services.KindNotFound, kindOf(err))

	gone := e.seedBook(t, "Withdrawn", "10.00", 1)
	require.NoError(t, e.store.Books.SoftDelete(ctx, gone.ID))
	_, err = e.reviews.CreateReview(ctx, user.ID, gone.ID, 3, "")
	assert.Equal(t, services.KindNotFound, kindOf(err))

	avg, count := e.bookRating(t, book.ID)
	assert.Equal(t, "3.00", avg)
	assert.Equal(t, 1, count)
}

func TestUpdateAndDeleteReview_OwnerOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	author := e.seedUser(t, "author")
	other := e.seedUser(t, "other")
	book := e.seedBook(t, "Debated", "10.00", 1)

	review, err := e.reviews.CreateReview(ctx, author.ID, book.ID, 1, "meh")
	require.NoError(t, err)

	_, err = e.reviews.UpdateReview(ctx, other.ID, review.ID, nil, nil)
	assert.Equal(t, services.KindForbidden, kindOf(err))
	err = e.reviews.DeleteReview(ctx, other.ID, review.ID)
	assert.Equal(t, services.KindForbidden, kindOf(err))

	bad := 9
	_, err = e.reviews.UpdateReview(ctx, author.ID, review.ID, &bad, nil)
	assert.Equal(t, services.KindBadRequest, kindOf(err))

	rating := 4
	updated, err := e.reviews.UpdateReview(ctx, author.ID, review.ID, &rating, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Rating)
	assert.Equal(t, "meh", updated.Comment)
	avg, _ := e.bookRating(t, book.ID)
	assert.Equal(t, "4.00", avg)

	require.NoError(t, e.reviews.DeleteReview(ctx, author.ID, review.ID))
	avg, count := e.bookRating(t, book.ID)
	assert.Equal(t, "0.00", avg)
	assert.Equal(t, 0, count)

	err = e.reviews.DeleteReview(ctx, author.ID, review.ID)
	assert.Equal(t, services.KindNotFound, kindOf(err))
}

func TestListReviews(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	book := e.seedBook(t, "Popular", "10.00", 1)
	for i, name := range []string{"ann", "ben", "cat"} {
		user := e.seedUser(t, name)
		_, err := e.reviews.CreateReview(ctx, user.ID, book.ID, i+3, "by "+name)
		require.NoError(t, err)
	}

	page, err := e.reviews.ListReviews(ctx, book.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	for _, item := range page.Items {
		assert.Equal(t, "by "+item.ReviewerName, item.Comment)
	}

	rest, err := e.reviews.ListReviews(ctx, book.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)

	empty := e.seedBook(t, "Unread", "10.00", 1)
	none, err := e.reviews.ListReviews(ctx, empty.ID, 1, 20)
	require.NoError(t, err)
	assert.NotNil(t, none.Items)
	assert.Empty(t, none.Items)

	_, err = e.reviews.ListReviews(ctx, "missing", 1, 20)
	assert.Equal(t, services.KindNotFound, kindOf(err))
}
