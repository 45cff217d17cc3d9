package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bookstore/internal/models"
	"bookstore/internal/repositories"
	"bookstore/internal/services"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

const testJWTSecret = "test_jwt_secret"

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
}

func TestAuthService_RegisterUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour)

	user := &models.User{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
	}

	mockRepo.On("GetByUsername", user.Username).Return(nil, notFound("user")).Once()
	mockRepo.On("GetByEmail", user.Email).Return(nil, notFound("user")).Once()
	mockRepo.On("Create", mock.AnythingOfType("*models.User")).Return(nil).Once()

	err := authService.RegisterUser(ctx, user)
	assert.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")), "password must be stored hashed")
	assert.True(t, user.IsActive)
	mockRepo.AssertExpectations(t)

	// Username already taken
	mockRepo.On("GetByUsername", user.Username).Return(&models.User{ID: "1"}, nil).Once()
	err = authService.RegisterUser(ctx, user)
	assert.Equal(t, services.KindConflict, services.KindOf(err))
	assert.Contains(t, err.Error(), "Username 'testuser' already taken")
	mockRepo.AssertExpectations(t)

	// Email already registered
	mockRepo.On("GetByUsername", user.Username).Return(nil, notFound("user")).Once()
	mockRepo.On("GetByEmail", user.Email).Return(&models.User{ID: "1"}, nil).Once()
	err = authService.RegisterUser(ctx, user)
	assert.Equal(t, services.KindConflict, services.KindOf(err))
	assert.Contains(t, err.Error(), "Email 'test@example.com' already registered")
	mockRepo.AssertExpectations(t)
}

func TestAuthService_LoginUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour)

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &models.User{
		ID:       "user-123",
		Username: "testuser",
		Email:    "test@example.com",
		Password: string(hashedPassword),
		IsAdmin:  true,
		IsActive: true,
	}

	mockRepo.On("GetByUsername", user.Username).Return(user, nil).Once()
	token, err := authService.LoginUser(ctx, "testuser", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	assert.True(t, ok)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, user.Username, claims["username"])
	assert.Equal(t, true, claims["is_admin"])
	mockRepo.AssertExpectations(t)

	// Wrong password
	mockRepo.On("GetByUsername", user.Username).Return(user, nil).Once()
	_, err = authService.LoginUser(ctx, "testuser", "wrongpassword")
	assert.Equal(t, services.KindUnauthorized, services.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid credentials")

	// Unknown user gets the same message
	mockRepo.On("GetByUsername", "nonexistentuser").Return(nil, notFound("user")).Once()
	_, err = authService.LoginUser(ctx, "nonexistentuser", "password123")
	assert.Equal(t, services.KindUnauthorized, services.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid credentials")

	// Disabled account
	disabled := *user
	disabled.IsActive = false
	mockRepo.On("GetByUsername", "disabled").Return(&disabled, nil).Once()
	_, err = authService.LoginUser(ctx, "disabled", "password123")
	assert.Equal(t, services.KindForbidden, services.KindOf(err))
	mockRepo.AssertExpectations(t)
}

func TestAuthService_ValidateToken(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "user-123",
		"username": "testuser",
		"is_admin": false,
		"exp":      jwt.TimeFunc().Add(time.Hour).Unix(),
	})
	validTokenString, _ := token.SignedString([]byte(testJWTSecret))

	claims, err := authService.ValidateToken(validTokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.False(t, claims.IsAdmin)

	_, err = authService.ValidateToken("invalid.token.string")
	assert.Equal(t, services.KindUnauthorized, services.KindOf(err))

	otherSecret, _ := token.SignedString([]byte("another_secret"))
	_, err = authService.ValidateToken(otherSecret)
	assert.Error(t, err)

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "user-123",
		"username": "testuser",
		"exp":      jwt.TimeFunc().Add(-time.Hour).Unix(),
	})
	expiredTokenString, _ := expiredToken.SignedString([]byte(testJWTSecret))
	_, err = authService.ValidateToken(expiredTokenString)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid or expired token")

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": jwt.TimeFunc().Add(time.Hour).Unix(),
	})
	noSubjectString, _ := noSubject.SignedString([]byte(testJWTSecret))
	_, err = authService.ValidateToken(noSubjectString)
	assert.Error(t, err)
}
