package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/database"
	"bookstore/internal/models"
	"bookstore/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type capturedEvents struct {
	mu   sync.Mutex
	keys []string
}

func (c *capturedEvents) Publish(_ context.Context, routingKey string, _ interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, routingKey)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                "test",
		JWTSecret:          "test_jwt_secret",
		JWTTTL:             time.Hour,
		CartTTL:            time.Hour,
		ProviderTimeout:    time.Second,
		ProviderMaxRetries: 1,
	}
}

func newTestServer(t *testing.T, events services.EventPublisher) (*server, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenMigrated(database.Config{Driver: "sqlite", DSN: dsn, Silent: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return newServer(testConfig(), db, events, zap.NewNop()), db
}

func call(t *testing.T, srv *server, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	srv, db := newTestServer(t, nil)

	status, body := call(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	status, body = call(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestUnauthenticatedAccess(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, _ := call(t, srv, http.MethodGet, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusOK, status, "catalog is public")

	status, body := call(t, srv, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authorization header is required", body["detail"])
}

func TestOrderEventsReachPublisher(t *testing.T) {
	events := &capturedEvents{}
	srv, db := newTestServer(t, events)

	book := &models.Book{
		ID:            uuid.NewString(),
		Title:         "Dune",
		Author:        "Frank Herbert",
		ISBN:          "9780441013593",
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: 3,
	}
	require.NoError(t, db.Create(book).Error)

	status, _ := call(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "reader", "email": "reader@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, status)
	status, body := call(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "reader", "password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	token := body["access_token"].(string)

	status, _ = call(t, srv, http.MethodPost, "/api/v1/cart/items", token, map[string]interface{}{
		"book_id": book.ID, "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = call(t, srv, http.MethodPost, "/api/v1/orders", token, map[string]string{
		"shipping_address": "1 Arrakis Way",
	})
	require.Equal(t, http.StatusCreated, status)
	total, ok := body["total_amount"].(string)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("25.00").Equal(decimal.RequireFromString(total)))

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{services.EventOrderCreated}, events.keys)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	creds := map[string]string{"username": "nobody", "password": "password123"}
	for i := 0; i < 20; i++ {
		status, _ := call(t, srv, http.MethodPost, "/api/v1/auth/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := call(t, srv, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "Too many requests. Try again later.", body["detail"])

	status, _ = call(t, srv, http.MethodGet, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsCountRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	call(t, srv, http.MethodGet, "/health", "", nil)

	rec := httptest.NewRecorder()
	srv.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `bookstore_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
