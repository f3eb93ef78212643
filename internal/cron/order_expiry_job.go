package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

type expirableOrderReader interface {
	FindCommitableBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error)
}

// OrderExpiryJobParams configure the commit-window sweeper.
type OrderExpiryJobParams struct {
	Logger     *logger.Logger
	Reader     expirableOrderReader
	Expirer    orderExpirer
	BatchLimit int
}

// NewOrderExpiryJob builds the job that expires orders whose commit window
// has elapsed without a seller decision.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	if params.BatchLimit <= 0 {
		return nil, fmt.Errorf("batch limit must be positive")
	}
	return &orderExpiryJob{
		logg:       params.Logger,
		reader:     params.Reader,
		expirer:    params.Expirer,
		batchLimit: params.BatchLimit,
		now:        time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg       *logger.Logger
	reader     expirableOrderReader
	expirer    orderExpirer
	batchLimit int
	now        func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run expires one batch of overdue orders. A seller commit that lands mid
// sweep wins the conditional update and the order is skipped, not failed.
func (j *orderExpiryJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC()
	overdue, err := j.reader.FindCommitableBefore(ctx, cutoff, j.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("query overdue orders: %w", err)
	}

	expired := 0
	var errs []error
	for _, order := range overdue {
		changed, err := j.expirer.Expire(ctx, order.ID, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if changed {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(overdue),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "commit-window sweep complete")
	return expired, multierr.Combine(errs...)
}
