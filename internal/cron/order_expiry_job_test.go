package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestOrderExpiryJobExpiresOverdueOrders(t *testing.T) {
	t.Parallel()

	overdue := []models.Order{
		{ID: uuid.New()},
		{ID: uuid.New()},
		{ID: uuid.New()},
	}
	reader := &stubOrderReader{orders: overdue}
	expirer := &stubExpirer{changed: map[uuid.UUID]bool{
		overdue[0].ID: true,
		overdue[1].ID: true,
		overdue[2].ID: true,
	}}

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:     testLogger(),
		Reader:     reader,
		Expirer:    expirer,
		BatchLimit: 200,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}

	processed, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if processed != 3 {
		t.Fatalf("expected 3 expired, got %d", processed)
	}
	if len(expirer.calls) != 3 {
		t.Fatalf("expected 3 expire calls, got %d", len(expirer.calls))
	}
}

func TestOrderExpiryJobSkipsLostRaces(t *testing.T) {
	t.Parallel()

	committed := models.Order{ID: uuid.New()}
	stillPending := models.Order{ID: uuid.New()}
	reader := &stubOrderReader{orders: []models.Order{committed, stillPending}}
	// the first order was committed between the query and the sweep
	expirer := &stubExpirer{changed: map[uuid.UUID]bool{
		stillPending.ID: true,
	}}

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:     testLogger(),
		Reader:     reader,
		Expirer:    expirer,
		BatchLimit: 10,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}

	processed, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("lost race must not be an error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 expired, got %d", processed)
	}
}

func TestOrderExpiryJobContinuesPastFailures(t *testing.T) {
	t.Parallel()

	failing := models.Order{ID: uuid.New()}
	healthy := models.Order{ID: uuid.New()}
	reader := &stubOrderReader{orders: []models.Order{failing, healthy}}
	expirer := &stubExpirer{
		changed: map[uuid.UUID]bool{healthy.ID: true},
		errs:    map[uuid.UUID]error{failing.ID: errors.New("deadlock")},
	}

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:     testLogger(),
		Reader:     reader,
		Expirer:    expirer,
		BatchLimit: 10,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}

	processed, err := job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected combined error for the failed order")
	}
	if processed != 1 {
		t.Fatalf("healthy order should still expire, got %d", processed)
	}
	if len(expirer.calls) != 2 {
		t.Fatalf("both orders should be attempted, got %d calls", len(expirer.calls))
	}
}

type stubOrderReader struct {
	orders []models.Order
}

func (s *stubOrderReader) FindCommitableBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit > 0 && len(s.orders) > limit {
		return s.orders[:limit], nil
	}
	return s.orders, nil
}

type stubExpirer struct {
	changed map[uuid.UUID]bool
	errs    map[uuid.UUID]error
	calls   []uuid.UUID
}

func (s *stubExpirer) Expire(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error) {
	s.calls = append(s.calls, orderID)
	if err, ok := s.errs[orderID]; ok {
		return false, err
	}
	return s.changed[orderID], nil
}
