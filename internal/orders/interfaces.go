package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

// Repository is the persistence surface for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrdersByPaymentReference(ctx context.Context, reference string) ([]models.Order, error)
	FindOrdersBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	FindOrdersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	FindCommitableBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	// UpdateStatusIf applies updates only while the order still holds the
	// expected status. It reports whether a row changed; false means the
	// guard lost a concurrent race and nothing was written.
	UpdateStatusIf(ctx context.Context, orderID uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error)

	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}
