package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of each copy within an order.
type OrderItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	BookID     uuid.UUID `gorm:"column:book_id;type:uuid;not null"`
	Title      string    `gorm:"column:title;not null"`
	Author     string    `gorm:"column:author;not null"`
	ISBN       *string   `gorm:"column:isbn"`
	Condition  *string   `gorm:"column:condition"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
