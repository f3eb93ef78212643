package cron

import (
	"context"
	"fmt"

	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

type payoutInitiator interface {
	InitiateTransferable(ctx context.Context, limit int) (int, error)
}

// NewPayoutReconcileJob builds the job that starts transfers for delivered
// orders whose payout never left pending, covering crashes and provider
// failures after delivery.
func NewPayoutReconcileJob(logg *logger.Logger, payouts payoutInitiator, batchLimit int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if payouts == nil {
		return nil, fmt.Errorf("payout initiator required")
	}
	if batchLimit <= 0 {
		return nil, fmt.Errorf("batch limit must be positive")
	}
	return &payoutReconcileJob{logg: logg, payouts: payouts, batchLimit: batchLimit}, nil
}

type payoutReconcileJob struct {
	logg       *logger.Logger
	payouts    payoutInitiator
	batchLimit int
}

func (j *payoutReconcileJob) Name() string { return "payout-reconcile" }

func (j *payoutReconcileJob) Run(ctx context.Context) (int, error) {
	initiated, err := j.payouts.InitiateTransferable(ctx, j.batchLimit)
	if err != nil {
		return initiated, err
	}
	logCtx := j.logg.WithField(ctx, "initiated", initiated)
	j.logg.Info(logCtx, "stalled payout sweep complete")
	return initiated, nil
}
