package refunds

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

// Repository is the persistence surface for refund records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, record *models.RefundRecord) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundRecord, error)
	FindByProviderReference(ctx context.Context, reference string) (*models.RefundRecord, error)
	FindOwed(ctx context.Context, limit int) ([]models.RefundRecord, error)
	FindOrderPaymentReference(ctx context.Context, orderID uuid.UUID) (string, error)

	// UpdateStatusIf applies updates only while the record still holds the
	// expected status. False means the guard lost a concurrent race.
	UpdateStatusIf(ctx context.Context, recordID uuid.UUID, expected enums.RefundStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a refunds repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.RefundRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.RefundRecord, error) {
	var record models.RefundRecord
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByProviderReference(ctx context.Context, reference string) (*models.RefundRecord, error) {
	var record models.RefundRecord
	err := r.db.WithContext(ctx).Where("provider_reference = ?", reference).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindOwed(ctx context.Context, limit int) ([]models.RefundRecord, error) {
	var records []models.RefundRecord
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.RefundStatusOwed).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) FindOrderPaymentReference(ctx context.Context, orderID uuid.UUID) (string, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Select("payment_reference").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return "", err
	}
	return order.PaymentReference, nil
}

func (r *repository) UpdateStatusIf(ctx context.Context, recordID uuid.UUID, expected enums.RefundStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RefundRecord{}).
		Where("id = ? AND status = ?", recordID, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
