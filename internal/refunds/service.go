package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/bookhavenhq/bookhaven-backend/pkg/db"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type refundSubmitter interface {
	SubmitRefund(ctx context.Context, params paystack.RefundParams) (*paystack.RefundResult, error)
}

// Service manages the buyer refund ledger. Records are created owed, move to
// submitted when handed to the provider, and settle on provider webhooks.
type Service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	provider refundSubmitter
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Provider refundSubmitter
	Logger   *logger.Logger
}

// NewService builds a refund service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("refund submitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		provider: params.Provider,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// RefundOwedEvent is emitted when a refund obligation opens.
type RefundOwedEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	AmountCents int       `json:"amountCents"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// RefundCompletedEvent is emitted when the provider confirms the refund.
type RefundCompletedEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	AmountCents int       `json:"amountCents"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// RecordOwed opens the buyer's refund obligation inside the caller's
// transaction. The buyer is always made whole for the full captured amount,
// item total plus delivery fee. Duplicate calls for the same order are no-ops.
func (s *Service) RecordOwed(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	now := s.now().UTC()
	record := models.RefundRecord{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Status:      enums.RefundStatusOwed,
		Reason:      reason,
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, &record); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_refund_records_order_id") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund record")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundOwed,
		AggregateType: enums.AggregateRefund,
		AggregateID:   record.ID,
		Version:       1,
		OccurredAt:    now,
		Data: RefundOwedEvent{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			AmountCents: order.TotalCents,
			Reason:      reason,
			OccurredAt:  now,
		},
	})
}

// SubmitOwed hands owed refunds to the payment provider. Provider failures
// leave the record owed so the next sweep retries it. Returns how many
// submissions succeeded.
func (s *Service) SubmitOwed(ctx context.Context, limit int) (int, error) {
	records, err := s.repo.FindOwed(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query owed refunds")
	}

	submitted := 0
	for _, record := range records {
		if err := s.submitOne(ctx, record); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"refund_id": record.ID.String(),
				"order_id":  record.OrderID.String(),
			})
			s.logg.Warn(logCtx, "refund submission failed, will retry")
			continue
		}
		submitted++
	}
	return submitted, nil
}

func (s *Service) submitOne(ctx context.Context, record models.RefundRecord) error {
	reference, err := s.repo.FindOrderPaymentReference(ctx, record.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order reference")
	}

	result, err := s.provider.SubmitRefund(ctx, paystack.RefundParams{
		TransactionReference: reference,
		AmountCents:          record.AmountCents,
		MerchantNote:         record.Reason,
	})
	if err != nil {
		return err
	}

	now := s.now().UTC()
	providerRef := fmt.Sprintf("%d", result.ID)
	changed, err := s.repo.UpdateStatusIf(ctx, record.ID, enums.RefundStatusOwed, map[string]any{
		"status":             enums.RefundStatusSubmitted,
		"provider_reference": providerRef,
		"submitted_at":       now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund submitted")
	}
	if !changed {
		// Another worker submitted it first; the provider dedupes by
		// transaction so the double submission is harmless.
		return nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_id":          record.ID.String(),
		"order_id":           record.OrderID.String(),
		"provider_reference": providerRef,
	})
	s.logg.Info(logCtx, "refund submitted to provider")
	return nil
}

// HandleRefundProcessed settles a submitted refund after the provider
// confirms it. Unknown references are ignored.
func (s *Service) HandleRefundProcessed(ctx context.Context, providerReference string) error {
	record, err := s.repo.FindByProviderReference(ctx, providerReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund record")
	}
	if record.Status == enums.RefundStatusCompleted {
		return nil
	}

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.UpdateStatusIf(ctx, record.ID, enums.RefundStatusSubmitted, map[string]any{
			"status":       enums.RefundStatusCompleted,
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund completed")
		}
		if !changed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundCompleted,
			AggregateType: enums.AggregateRefund,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    now,
			Data: RefundCompletedEvent{
				OrderID:     record.OrderID,
				BuyerID:     record.BuyerID,
				AmountCents: record.AmountCents,
				OccurredAt:  now,
			},
		})
	})
}

// HandleRefundFailed reopens a submitted refund so the sweep resubmits it.
// Completed refunds never regress.
func (s *Service) HandleRefundFailed(ctx context.Context, providerReference, reason string) error {
	record, err := s.repo.FindByProviderReference(ctx, providerReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund record")
	}
	if record.Status != enums.RefundStatusSubmitted {
		return nil
	}

	now := s.now().UTC()
	changed, err := s.repo.UpdateStatusIf(ctx, record.ID, enums.RefundStatusSubmitted, map[string]any{
		"status":             enums.RefundStatusOwed,
		"provider_reference": nil,
		"failure_reason":     reason,
		"failed_at":          now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen failed refund")
	}
	if changed {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"refund_id": record.ID.String(),
			"order_id":  record.OrderID.String(),
		})
		s.logg.Warn(logCtx, "provider refund failed, reopened for resubmission")
	}
	return nil
}
