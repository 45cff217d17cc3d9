package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is wrapped by every lookup that matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is wrapped when a unique constraint rejected a write.
	ErrDuplicate = errors.New("duplicate key")
)

// Store groups the repositories bound to a single database handle. A Store
// obtained from Transaction is bound to that transaction; nothing it does is
// visible to others until the transaction commits.
type Store struct {
	db *gorm.DB

	Books    BookRepository
	Carts    CartRepository
	Orders   OrderRepository
	Payments PaymentRepository
	Users    UserRepository
	Reviews  ReviewRepository
}

// NewStore creates a Store on top of db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Books:    NewGORMBookRepository(db),
		Carts:    NewGORMCartRepository(db),
		Orders:   NewGORMOrderRepository(db),
		Payments: NewGORMPaymentRepository(db),
		Users:    NewGORMUserRepository(db),
		Reviews:  NewGORMReviewRepository(db),
	}
}

// Transaction runs fn with a Store bound to a new transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// DB exposes the underlying handle, e.g. for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// translate maps gorm sentinel errors onto the package sentinels.
func translate(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", msg, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
