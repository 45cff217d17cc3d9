package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book represents a title in the store catalog.
type Book struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title         string          `json:"title" gorm:"type:varchar(255);not null"`
	Author        string          `json:"author" gorm:"type:varchar(255);not null"`
	ISBN          string          `json:"isbn" gorm:"uniqueIndex;type:varchar(20);not null"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"`
	StockQuantity int             `json:"stock_quantity" gorm:"not null;default:0;check:stock_quantity >= 0"`
	AverageRating decimal.Decimal `json:"average_rating" gorm:"type:numeric(3,2);not null;default:0"`
	ReviewCount   int             `json:"review_count" gorm:"not null;default:0"`
	IsDeleted     bool            `json:"-" gorm:"not null;default:false;index"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
