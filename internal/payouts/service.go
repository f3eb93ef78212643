package payouts

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
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transferClient interface {
	InitiateTransfer(ctx context.Context, params paystack.TransferParams) (*paystack.TransferResult, error)
}

// Service manages the seller payout ledger. A record opens pending at commit
// time, the transfer starts once the order is delivered, and the provider's
// webhook settles it. Completed payouts never regress.
type Service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	provider transferClient
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Provider transferClient
	Logger   *logger.Logger
}

// NewService builds a payout service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("transfer client required")
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

// PayoutRecordedEvent is emitted when a payout obligation opens.
type PayoutRecordedEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	SellerID    uuid.UUID `json:"sellerId"`
	AmountCents int       `json:"amountCents"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// PayoutSettledEvent is emitted when the provider settles a transfer.
type PayoutSettledEvent struct {
	OrderID     uuid.UUID          `json:"orderId"`
	SellerID    uuid.UUID          `json:"sellerId"`
	AmountCents int                `json:"amountCents"`
	Status      enums.PayoutStatus `json:"status"`
	OccurredAt  time.Time          `json:"occurredAt"`
}

// RecordPending opens the seller's payout obligation inside the caller's
// transaction. Duplicate calls for the same order are no-ops.
func (s *Service) RecordPending(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	now := s.now().UTC()
	record := models.PayoutRecord{
		OrderID:     order.ID,
		SellerID:    order.SellerID,
		AmountCents: order.SellerNetCents,
		Currency:    order.Currency,
		Status:      enums.PayoutStatusPending,
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, &record); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_payout_records_order_id") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout record")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutRecorded,
		AggregateType: enums.AggregatePayout,
		AggregateID:   record.ID,
		Version:       1,
		OccurredAt:    now,
		Data: PayoutRecordedEvent{
			OrderID:     order.ID,
			SellerID:    order.SellerID,
			AmountCents: order.SellerNetCents,
			OccurredAt:  now,
		},
	})
}

// InitiateForOrder starts the transfer for one delivered order's payout.
func (s *Service) InitiateForOrder(ctx context.Context, orderID uuid.UUID) error {
	record, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout record not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout record")
	}
	return s.initiate(ctx, *record)
}

// InitiateTransferable sweeps delivered orders whose payout transfer has not
// started yet. Returns how many transfers were initiated.
func (s *Service) InitiateTransferable(ctx context.Context, limit int) (int, error) {
	records, err := s.repo.FindTransferable(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query transferable payouts")
	}

	initiated := 0
	for _, record := range records {
		if err := s.initiate(ctx, record); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payout_id": record.ID.String(),
				"order_id":  record.OrderID.String(),
			})
			s.logg.Warn(logCtx, "payout transfer initiation failed, will retry")
			continue
		}
		initiated++
	}
	return initiated, nil
}

func (s *Service) initiate(ctx context.Context, record models.PayoutRecord) error {
	if record.Status != enums.PayoutStatusPending {
		return nil
	}
	if record.TransferReference != nil {
		return nil
	}
	if record.AmountCents <= 0 {
		return nil
	}

	reference := "po_" + record.ID.String()
	result, err := s.provider.InitiateTransfer(ctx, paystack.TransferParams{
		AmountCents: record.AmountCents,
		Currency:    string(record.Currency),
		Recipient:   "seller:" + record.SellerID.String(),
		Reference:   reference,
		Reason:      "order payout " + record.OrderID.String(),
	})
	if err != nil {
		return err
	}

	changed, err := s.repo.UpdateStatusIf(ctx, record.ID, enums.PayoutStatusPending, map[string]any{
		"transfer_reference": result.Reference,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transfer reference")
	}
	if !changed {
		return nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payout_id":          record.ID.String(),
		"order_id":           record.OrderID.String(),
		"transfer_reference": result.Reference,
	})
	s.logg.Info(logCtx, "payout transfer initiated")
	return nil
}

// HandleTransferSuccess settles a pending payout after the provider confirms
// the transfer. Unknown references are ignored.
func (s *Service) HandleTransferSuccess(ctx context.Context, transferReference string) error {
	record, err := s.repo.FindByTransferReference(ctx, transferReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout record")
	}
	if record.Status == enums.PayoutStatusCompleted {
		return nil
	}

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.UpdateStatusIf(ctx, record.ID, enums.PayoutStatusPending, map[string]any{
			"status":       enums.PayoutStatusCompleted,
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout completed")
		}
		if !changed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    now,
			Data: PayoutSettledEvent{
				OrderID:     record.OrderID,
				SellerID:    record.SellerID,
				AmountCents: record.AmountCents,
				Status:      enums.PayoutStatusCompleted,
				OccurredAt:  now,
			},
		})
	})
}

// HandleTransferFailed reopens a pending payout whose transfer bounced so the
// sweep re-initiates it. A completed payout never regresses, even if the
// provider later reports a failure for the same reference.
func (s *Service) HandleTransferFailed(ctx context.Context, transferReference, reason string) error {
	record, err := s.repo.FindByTransferReference(ctx, transferReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout record")
	}
	if record.Status != enums.PayoutStatusPending {
		return nil
	}

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.UpdateStatusIf(ctx, record.ID, enums.PayoutStatusPending, map[string]any{
			"transfer_reference": nil,
			"failure_reason":     reason,
			"failed_at":          now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen failed payout")
		}
		if !changed {
			return nil
		}

		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payout_id": record.ID.String(),
			"order_id":  record.OrderID.String(),
		})
		s.logg.Warn(logCtx, "provider transfer failed, reopened for retry")

		// A payout can bounce more than once; the existence check keeps
		// repeat failures from tripping the outbox uniqueness constraint.
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    now,
			Data: PayoutSettledEvent{
				OrderID:     record.OrderID,
				SellerID:    record.SellerID,
				AmountCents: record.AmountCents,
				Status:      enums.PayoutStatusFailed,
				OccurredAt:  now,
			},
		})
	})
}
