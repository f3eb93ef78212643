package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

// PayoutRecord tracks the money owed to a seller for a committed order.
type PayoutRecord struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payout_records_order_id"`
	SellerID          uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index:idx_payout_records_seller_id"`
	AmountCents       int                `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency     `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Status            enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	TransferReference *string            `gorm:"column:transfer_reference;index:idx_payout_records_transfer_reference"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	CompletedAt       *time.Time         `gorm:"column:completed_at"`
	FailedAt          *time.Time         `gorm:"column:failed_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
