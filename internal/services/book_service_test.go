package services_test

import (
	"context"
	"fmt"
	"testing"

	"bookstore/internal/models"
	"bookstore/internal/repositories"
	"bookstore/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockBookRepository is a mock implementation of repositories.BookRepository
type MockBookRepository struct {
	mock.Mock
}

func (m *MockBookRepository) List(ctx context.Context, filter repositories.BookFilter) ([]models.Book, int64, error) {
	args := m.Called(filter)
	return args.Get(0).([]models.Book), args.Get(1).(int64), args.Error(2)
}

func (m *MockBookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockBookRepository) GetByIDForUpdate(ctx context.Context, id string, includeDeleted bool) (*models.Book, error) {
	args := m.Called(id, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockBookRepository) Create(ctx context.Context, book *models.Book) error {
	args := m.Called(book)
	return args.Error(0)
}

func (m *MockBookRepository) Update(ctx context.Context, book *models.Book) error {
	args := m.Called(book)
	return args.Error(0)
}

func (m *MockBookRepository) SetStock(ctx context.Context, id string, stock int) error {
	args := m.Called(id, stock)
	return args.Error(0)
}

func (m *MockBookRepository) SetRating(ctx context.Context, id string, average decimal.Decimal, count int) error {
	args := m.Called(id, average, count)
	return args.Error(0)
}

func (m *MockBookRepository) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func sampleBook(id string) *models.Book {
	return &models.Book{
		ID:            id,
		Title:         "The Go Programming Language",
		Author:        "Donovan & Kernighan",
		ISBN:          "978-0134190440",
		Price:         decimal.RequireFromString("39.99"),
		StockQuantity: 10,
	}
}

func TestBookService_ListBooks(t *testing.T) {
	mockRepo := new(MockBookRepository)
	service := services.NewBookService(mockRepo)

	expected := []models.Book{*sampleBook("1"), *sampleBook("2")}
	mockRepo.On("List", repositories.BookFilter{Search: "go", Offset: 10, Limit: 10}).Return(expected, int64(12), nil).Once()

	page, err := service.ListBooks(context.Background(), "go", 2, 10)

	assert.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 2, page.Page)
	mockRepo.AssertExpectations(t)
}

func TestBookService_GetBook(t *testing.T) {
	mockRepo := new(MockBookRepository)
	service := services.NewBookService(mockRepo)

	expectedBook := sampleBook("1")

	mockRepo.On("GetByID", "1").Return(expectedBook, nil).Once()
	book, err := service.GetBook(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, expectedBook, book)

	mockRepo.On("GetByID", "99").Return(nil, notFound("book 99")).Once()
	book, err = service.GetBook(context.Background(), "99")
	assert.Nil(t, book)
	assert.Equal(t, services.KindNotFound, services.KindOf(err))
	assert.EqualError(t, err, "Book not found")
	mockRepo.AssertExpectations(t)
}

func TestBookService_CreateBook(t *testing.T) {
	mockRepo := new(MockBookRepository)
	service := services.NewBookService(mockRepo)

	newBook := sampleBook("")

	mockRepo.On("Create", newBook).Return(nil).Once()
	assert.NoError(t, service.CreateBook(context.Background(), newBook))

	mockRepo.On("Create", newBook).Return(fmt.Errorf("create: %w", repositories.ErrDuplicate)).Once()
	err := service.CreateBook(context.Background(), newBook)
	assert.Equal(t, services.KindConflict, services.KindOf(err))

	mockRepo.On("Create", newBook).Return(fmt.Errorf("database error")).Once()
	err = service.CreateBook(context.Background(), newBook)
	assert.Contains(t, err.Error(), "database error")
	mockRepo.AssertExpectations(t)

	invalid := sampleBook("")
	invalid.Price = decimal.Zero
	err = service.CreateBook(context.Background(), invalid)
	assert.Equal(t, services.KindBadRequest, services.KindOf(err), "repository is not reached")
}

func TestBookService_UpdateBook(t *testing.T) {
	mockRepo := new(MockBookRepository)
	service := services.NewBookService(mockRepo)

	newTitle := "Updated"
	newStock := 3
	mockRepo.On("GetByID", "1").Return(sampleBook("1"), nil).Once()
	mockRepo.On("Update", mock.MatchedBy(func(b *models.Book) bool { return b.Title == newTitle })).Return(nil).Once()
	mockRepo.On("SetStock", "1", newStock).Return(nil).Once()

	book, err := service.UpdateBook(context.Background(), "1", services.BookUpdate{Title: &newTitle, StockQuantity: &newStock})
	assert.NoError(t, err)
	assert.Equal(t, newTitle, book.Title)
	assert.Equal(t, newStock, book.StockQuantity)
	mockRepo.AssertExpectations(t)

	negative := -1
	mockRepo.On("GetByID", "1").Return(sampleBook("1"), nil).Once()
	_, err = service.UpdateBook(context.Background(), "1", services.BookUpdate{StockQuantity: &negative})
	assert.Equal(t, services.KindBadRequest, services.KindOf(err))

	mockRepo.On("GetByID", "99").Return(nil, notFound("book 99")).Once()
	_, err = service.UpdateBook(context.Background(), "99", services.BookUpdate{Title: &newTitle})
	assert.Equal(t, services.KindNotFound, services.KindOf(err))
	mockRepo.AssertExpectations(t)
}

func TestBookService_DeleteBook(t *testing.T) {
	mockRepo := new(MockBookRepository)
	service := services.NewBookService(mockRepo)

	mockRepo.On("SoftDelete", "1").Return(nil).Once()
	assert.NoError(t, service.DeleteBook(context.Background(), "1"))

	mockRepo.On("SoftDelete", "99").Return(notFound("book 99")).Once()
	err := service.DeleteBook(context.Background(), "99")
	assert.Equal(t, services.KindNotFound, services.KindOf(err))
	mockRepo.AssertExpectations(t)
}
