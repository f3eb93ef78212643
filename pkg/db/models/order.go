package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	"github.com/bookhavenhq/bookhaven-backend/pkg/types"
)

// Order represents a seller-scoped order carved out of a paid cart.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentReference string            `gorm:"column:payment_reference;not null;index:idx_orders_payment_reference"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	BuyerEmail       string            `gorm:"column:buyer_email;not null;default:''"`
	SellerID         uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	SellerEmail      string            `gorm:"column:seller_email;not null;default:''"`
	Currency         enums.Currency    `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending_commit'"`
	ItemTotalCents   int               `gorm:"column:item_total_cents;not null"`
	DeliveryFeeCents int               `gorm:"column:delivery_fee_cents;not null;default:0"`
	TotalCents       int               `gorm:"column:total_cents;not null"`
	CommissionCents  int               `gorm:"column:commission_cents;not null;default:0"`
	SellerNetCents   int               `gorm:"column:seller_net_cents;not null;default:0"`
	PolicyVersion    string            `gorm:"column:policy_version;not null;default:'v1'"`
	ShippingAddress  *types.Address    `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	TrackingCode     *string           `gorm:"column:tracking_code"`
	CourierShipment  *string           `gorm:"column:courier_shipment_id"`
	DeclineReason    *string           `gorm:"column:decline_reason"`
	ExpiresAt        *time.Time        `gorm:"column:expires_at"`
	CommittedAt      *time.Time        `gorm:"column:committed_at"`
	ShippedAt        *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time        `gorm:"column:delivered_at"`
	DeclinedAt       *time.Time        `gorm:"column:declined_at"`
	ExpiredAt        *time.Time        `gorm:"column:expired_at"`
	RefundedAt       *time.Time        `gorm:"column:refunded_at"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
