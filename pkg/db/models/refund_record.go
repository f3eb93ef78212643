package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

// RefundRecord tracks the money owed back to a buyer.
type RefundRecord struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_refund_records_order_id"`
	BuyerID           uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;index:idx_refund_records_buyer_id"`
	AmountCents       int                `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency     `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Status            enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'owed'"`
	Reason            string             `gorm:"column:reason;not null"`
	ProviderReference *string            `gorm:"column:provider_reference;index:idx_refund_records_provider_reference"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	SubmittedAt       *time.Time         `gorm:"column:submitted_at"`
	CompletedAt       *time.Time         `gorm:"column:completed_at"`
	FailedAt          *time.Time         `gorm:"column:failed_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
