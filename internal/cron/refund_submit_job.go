package cron

import (
	"context"
	"fmt"

	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

type refundSubmitter interface {
	SubmitOwed(ctx context.Context, limit int) (int, error)
}

// NewRefundSubmitJob builds the job that pushes owed refunds to the payment
// provider. Submission failures leave records owed for the next pass.
func NewRefundSubmitJob(logg *logger.Logger, refunds refundSubmitter, batchLimit int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if refunds == nil {
		return nil, fmt.Errorf("refund submitter required")
	}
	if batchLimit <= 0 {
		return nil, fmt.Errorf("batch limit must be positive")
	}
	return &refundSubmitJob{logg: logg, refunds: refunds, batchLimit: batchLimit}, nil
}

type refundSubmitJob struct {
	logg       *logger.Logger
	refunds    refundSubmitter
	batchLimit int
}

func (j *refundSubmitJob) Name() string { return "refund-submit" }

func (j *refundSubmitJob) Run(ctx context.Context) (int, error) {
	submitted, err := j.refunds.SubmitOwed(ctx, j.batchLimit)
	if err != nil {
		return submitted, err
	}
	logCtx := j.logg.WithField(ctx, "submitted", submitted)
	j.logg.Info(logCtx, "owed refund sweep complete")
	return submitted, nil
}
