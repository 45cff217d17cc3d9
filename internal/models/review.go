package models

import "time"

// Review is a user's rating of a book. A user reviews a book at most once.
// IsVerifiedPurchase is fixed when the review is written.
type Review struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID             string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_reviews_user_book"`
	BookID             string    `json:"book_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_reviews_user_book;index"`
	Rating             int       `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment            string    `json:"comment" gorm:"type:text"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase" gorm:"not null;default:false"`
	User               *User     `json:"-" gorm:"foreignKey:UserID"`
	CreatedAt          time.Time `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time `json:"updated_at"`
}
