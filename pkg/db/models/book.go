package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

// Book is a single listed copy. Every copy is unique stock, so availability
// is a status on the row rather than a quantity.
type Book struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index:idx_books_seller_id"`
	SellerEmail     string           `gorm:"column:seller_email;not null;default:''"`
	Title           string           `gorm:"column:title;not null"`
	Author          string           `gorm:"column:author;not null"`
	ISBN            *string          `gorm:"column:isbn"`
	Condition       *string          `gorm:"column:condition"`
	PriceCents      int              `gorm:"column:price_cents;not null"`
	Currency        enums.Currency   `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Status          enums.BookStatus `gorm:"column:status;type:book_status;not null;default:'available'"`
	ReservedOrderID *uuid.UUID       `gorm:"column:reserved_order_id;type:uuid"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
