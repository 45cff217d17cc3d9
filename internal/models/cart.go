package models

import "time"

// CartItem is one (book, quantity) line in a user's cart. A user holds at most
// one row per book; rows past ExpiresAt are invisible to every read.
type CartItem struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:uq_cart_user_book"`
	BookID    string    `json:"book_id" gorm:"type:varchar(36);not null;uniqueIndex:uq_cart_user_book"`
	Quantity  int       `json:"quantity" gorm:"not null;check:quantity >= 1"`
	AddedAt   time.Time `json:"added_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	Book      *Book     `json:"book,omitempty" gorm:"foreignKey:BookID"`
}

// Expired reports whether the item is past its expiry at now.
func (c *CartItem) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
