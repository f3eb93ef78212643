package paystackwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bookhavenhq/bookhaven-backend/internal/checkout"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
)

// Provider retries undelivered webhooks for days; a processed marker older
// than this is safe to drop.
const dedupeTTL = 72 * time.Hour

const dedupeScope = "paystack_webhook"

type cartSettler interface {
	SettlePaidCheckout(ctx context.Context, input checkout.SettleInput) ([]models.Order, error)
}

type transferReconciler interface {
	HandleTransferSuccess(ctx context.Context, transferReference string) error
	HandleTransferFailed(ctx context.Context, transferReference, reason string) error
}

type refundReconciler interface {
	HandleRefundProcessed(ctx context.Context, providerReference string) error
	HandleRefundFailed(ctx context.Context, providerReference, reason string) error
}

type transactionVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionResult, error)
}

type dedupeStore interface {
	IdempotencyKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Service reconciles provider webhook events against the local ledgers. The
// webhook body is treated as a hint only; money movement is confirmed with
// the provider before any local state changes.
type Service struct {
	settler  cartSettler
	payouts  transferReconciler
	refunds  refundReconciler
	verifier transactionVerifier
	dedupe   dedupeStore
	logg     *logger.Logger
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Settler  cartSettler
	Payouts  transferReconciler
	Refunds  refundReconciler
	Verifier transactionVerifier
	Dedupe   dedupeStore
	Logger   *logger.Logger
}

// NewService builds the webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Settler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart settler required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout reconciler required")
	}
	if params.Refunds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund reconciler required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction verifier required")
	}
	if params.Dedupe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedupe store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		settler:  params.Settler,
		payouts:  params.Payouts,
		refunds:  params.Refunds,
		verifier: params.Verifier,
		dedupe:   params.Dedupe,
		logg:     params.Logger,
	}, nil
}

// HandleEvent routes one verified-signature webhook event. Unknown event
// names are acknowledged without action so the provider stops retrying them.
// Replays of an already-processed event are no-ops.
func (s *Service) HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error {
	if event == nil || event.Event == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}

	dedupeID, err := s.dedupeID(event)
	if err != nil {
		return err
	}
	if dedupeID == "" {
		logCtx := s.logg.WithField(ctx, "event", event.Event)
		s.logg.Info(logCtx, "ignoring unrecognized webhook event")
		return nil
	}

	key := s.dedupe.IdempotencyKey(dedupeScope, dedupeID)
	fresh, err := s.dedupe.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), dedupeTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve webhook dedupe key")
	}
	if !fresh {
		logCtx := s.logg.WithField(ctx, "event", event.Event)
		s.logg.Info(logCtx, "webhook replay ignored")
		return nil
	}

	if err := s.process(ctx, event); err != nil {
		// Release the marker so the provider's retry gets another attempt.
		if delErr := s.dedupe.Del(ctx, key); delErr != nil {
			s.logg.Error(ctx, "release webhook dedupe key", delErr)
		}
		return err
	}
	return nil
}

func (s *Service) dedupeID(event *paystack.WebhookEvent) (string, error) {
	switch event.Event {
	case paystack.EventChargeSuccess, paystack.EventChargeFailed:
		var data paystack.ChargeEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		if data.Reference == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
		}
		return event.Event + ":" + data.Reference, nil
	case paystack.EventTransferSuccess, paystack.EventTransferFailed:
		var data paystack.TransferEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		if data.Reference == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "transfer reference missing")
		}
		return event.Event + ":" + data.Reference, nil
	case paystack.EventRefundProcessed, paystack.EventRefundFailed:
		var data paystack.RefundEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
		}
		if data.ID == 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "refund id missing")
		}
		return fmt.Sprintf("%s:%d", event.Event, data.ID), nil
	default:
		return "", nil
	}
}

func (s *Service) process(ctx context.Context, event *paystack.WebhookEvent) error {
	switch event.Event {
	case paystack.EventChargeSuccess:
		return s.handleChargeSuccess(ctx, event.Data)
	case paystack.EventChargeFailed:
		var data paystack.ChargeEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		logCtx := s.logg.WithPaymentReference(ctx, data.Reference)
		s.logg.Info(logCtx, "charge failed, no orders created")
		return nil
	case paystack.EventTransferSuccess:
		var data paystack.TransferEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		return s.payouts.HandleTransferSuccess(ctx, data.Reference)
	case paystack.EventTransferFailed:
		var data paystack.TransferEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		reason := data.Reason
		if reason == "" {
			reason = "provider reported transfer failure"
		}
		return s.payouts.HandleTransferFailed(ctx, data.Reference, reason)
	case paystack.EventRefundProcessed:
		var data paystack.RefundEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
		}
		return s.refunds.HandleRefundProcessed(ctx, fmt.Sprintf("%d", data.ID))
	case paystack.EventRefundFailed:
		var data paystack.RefundEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
		}
		return s.refunds.HandleRefundFailed(ctx, fmt.Sprintf("%d", data.ID), "provider reported refund failure")
	default:
		return nil
	}
}

func (s *Service) handleChargeSuccess(ctx context.Context, raw json.RawMessage) error {
	var data paystack.ChargeEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
	}

	verified, err := s.verifier.VerifyTransaction(ctx, data.Reference)
	if err != nil {
		return err
	}
	if verified.Status != paystack.TransactionStatusSuccess {
		logCtx := s.logg.WithPaymentReference(ctx, data.Reference)
		s.logg.Warn(logCtx, "charge.success event did not verify, ignoring")
		return nil
	}

	metadata := verified.Metadata
	if len(metadata) == 0 {
		metadata = data.Metadata
	}

	_, err = s.settler.SettlePaidCheckout(ctx, checkout.SettleInput{
		Reference:   verified.Reference,
		AmountCents: verified.AmountCents,
		Metadata:    metadata,
	})
	return err
}
