package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

// Service guards copy availability. Every listed book is a single physical
// copy, so holds are status flips on the row rather than counter math.
type Service struct {
	logg *logger.Logger
}

// NewService builds the inventory service.
func NewService(logg *logger.Logger) (*Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{logg: logg}, nil
}

// ReserveForOrder places a hold on every listed copy. All copies must still
// be available; a single missing hold fails the whole reservation.
func (s *Service) ReserveForOrder(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID, orderID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(bookIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no copies to reserve")
	}

	result := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("id IN ? AND status = ?", bookIDs, enums.BookStatusAvailable).
		Updates(map[string]any{
			"status":            enums.BookStatusReserved,
			"reserved_order_id": orderID,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "reserve copies")
	}
	if result.RowsAffected != int64(len(bookIDs)) {
		return pkgerrors.New(pkgerrors.CodeConflict, "one or more copies are no longer available")
	}
	return nil
}

// ReleaseForOrder returns the order's reserved copies to the open catalog.
// Safe to call more than once; sold copies are never released.
func (s *Service) ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	result := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("reserved_order_id = ? AND status = ?", orderID, enums.BookStatusReserved).
		Updates(map[string]any{
			"status":            enums.BookStatusAvailable,
			"reserved_order_id": nil,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "release copies")
	}

	if result.RowsAffected > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": orderID.String(),
			"count":    result.RowsAffected,
		})
		s.logg.Info(logCtx, "reserved copies released")
	}
	return nil
}

// MarkSoldForOrder finalizes the order's holds once delivery completes.
func (s *Service) MarkSoldForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	result := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("reserved_order_id = ? AND status = ?", orderID, enums.BookStatusReserved).
		Update("status", enums.BookStatusSold)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "mark copies sold")
	}
	return nil
}
