package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

// Repository is the persistence surface for payout records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, record *models.PayoutRecord) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PayoutRecord, error)
	FindByTransferReference(ctx context.Context, reference string) (*models.PayoutRecord, error)

	// FindTransferable returns pending records without a transfer whose
	// order already reached delivered.
	FindTransferable(ctx context.Context, limit int) ([]models.PayoutRecord, error)

	// UpdateStatusIf applies updates only while the record still holds the
	// expected status. False means the guard lost a concurrent race.
	UpdateStatusIf(ctx context.Context, recordID uuid.UUID, expected enums.PayoutStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PayoutRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.PayoutRecord, error) {
	var record models.PayoutRecord
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByTransferReference(ctx context.Context, reference string) (*models.PayoutRecord, error) {
	var record models.PayoutRecord
	err := r.db.WithContext(ctx).Where("transfer_reference = ?", reference).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindTransferable(ctx context.Context, limit int) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	query := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = payout_records.order_id").
		Where("payout_records.status = ? AND payout_records.transfer_reference IS NULL", enums.PayoutStatusPending).
		Where("orders.status = ?", enums.OrderStatusDelivered).
		Order("payout_records.created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) UpdateStatusIf(ctx context.Context, recordID uuid.UUID, expected enums.PayoutStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PayoutRecord{}).
		Where("id = ? AND status = ?", recordID, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
