package notifications

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/mailer"
)

func testConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		RateLimitWindow: time.Minute,
		RateLimitPerKey: 2,
		DedupTTL:        time.Hour,
		OpsEmail:        "ops@bookhaven.example",
	}
}

func newTestDispatcher(t *testing.T, limiter *stubLimiter) (*Dispatcher, *mailer.Simulated) {
	t.Helper()

	mail := mailer.NewSimulated()
	dispatch, err := NewDispatcher(mail, limiter, testConfig(), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}
	return dispatch, mail
}

func TestDispatchSendsThroughGateway(t *testing.T) {
	t.Parallel()

	dispatch, mail := newTestDispatcher(t, &stubLimiter{})

	err := dispatch.Dispatch(context.Background(), Notification{
		Type:      enums.NotificationTypeOrderAlert,
		Recipient: "ops@bookhaven.example",
		Subject:   "Order committed",
		Body:      "body",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	sent := mail.Messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].To != "ops@bookhaven.example" || sent[0].Subject != "Order committed" {
		t.Fatalf("message mismatch: %+v", sent[0])
	}
}

func TestDispatchDropsOverRateLimit(t *testing.T) {
	t.Parallel()

	dispatch, mail := newTestDispatcher(t, &stubLimiter{})

	for i := 0; i < 5; i++ {
		err := dispatch.Dispatch(context.Background(), Notification{
			Type:      enums.NotificationTypeSellerNudge,
			Recipient: "ops@bookhaven.example",
			Subject:   "nudge",
			Body:      "body",
		})
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	// limit is 2 per window; the rest are dropped silently
	if got := len(mail.Messages()); got != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", got)
	}
}

func TestDispatchRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	dispatch, _ := newTestDispatcher(t, &stubLimiter{})

	err := dispatch.Dispatch(context.Background(), Notification{Type: enums.NotificationTypeOrderAlert})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing recipient, got %v", err)
	}

	err = dispatch.Dispatch(context.Background(), Notification{Type: "carrier_pigeon", Recipient: "ops@bookhaven.example"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestBuildRoutesLifecycleEventsToBuyerAndSeller(t *testing.T) {
	t.Parallel()

	consumer := &Consumer{cfg: testConfig()}
	orderID := uuid.New()

	payload, err := json.Marshal(orderEventPayload{
		OrderID:     orderID,
		BuyerID:     uuid.New(),
		BuyerEmail:  "buyer@example.com",
		SellerID:    uuid.New(),
		SellerEmail: "seller@example.com",
		Status:      "committed",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	recipients := func(notifications []Notification) map[string]bool {
		got := map[string]bool{}
		for _, n := range notifications {
			got[n.Recipient] = true
		}
		return got
	}

	cases := []struct {
		event      enums.OutboxEventType
		wantCount  int
		wantBuyer  bool
		wantSeller bool
	}{
		{enums.EventOrderCreated, 2, true, true},
		{enums.EventOrderCommitted, 2, true, true},
		{enums.EventOrderShipped, 1, true, false},
		{enums.EventOrderDelivered, 2, true, true},
		{enums.EventOrderDeclined, 2, true, true},
		{enums.EventOrderExpired, 2, true, true},
		{enums.EventOrderRefunded, 2, true, true},
	}
	for _, tc := range cases {
		notifications, err := consumer.build(tc.event, payload)
		if err != nil {
			t.Fatalf("build %s: %v", tc.event, err)
		}
		if len(notifications) != tc.wantCount {
			t.Fatalf("build %s: %d notifications, want %d", tc.event, len(notifications), tc.wantCount)
		}
		got := recipients(notifications)
		if got["buyer@example.com"] != tc.wantBuyer {
			t.Fatalf("build %s: buyer routing wrong, recipients %v", tc.event, got)
		}
		if got["seller@example.com"] != tc.wantSeller {
			t.Fatalf("build %s: seller routing wrong, recipients %v", tc.event, got)
		}
		if got["ops@bookhaven.example"] {
			t.Fatalf("build %s: lifecycle notice must not go to ops", tc.event)
		}
	}
}

func TestBuildFallsBackToOpsWithoutAddresses(t *testing.T) {
	t.Parallel()

	consumer := &Consumer{cfg: testConfig()}
	payload, err := json.Marshal(orderEventPayload{
		OrderID:  uuid.New(),
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   "committed",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	notifications, err := consumer.build(enums.EventOrderCommitted, payload)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, n := range notifications {
		if n.Recipient != "ops@bookhaven.example" {
			t.Fatalf("expected ops fallback, got %s", n.Recipient)
		}
	}
}

func TestBuildKeepsOpsOnlyEvents(t *testing.T) {
	t.Parallel()

	consumer := &Consumer{cfg: testConfig()}
	orderID := uuid.New()
	sellerID := uuid.New()

	bookingPayload, _ := json.Marshal(bookingFailedPayload{OrderID: orderID, SellerID: sellerID, Reason: "no riders"})
	notifications, err := consumer.build(enums.EventBookingFailed, bookingPayload)
	if err != nil {
		t.Fatalf("build booking failure: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Type != enums.NotificationTypeOpsAlert {
		t.Fatalf("booking failure notifications: %+v", notifications)
	}
	if notifications[0].Recipient != "ops@bookhaven.example" {
		t.Fatalf("booking failure recipient: %s", notifications[0].Recipient)
	}

	payoutPayload, _ := json.Marshal(payoutEventPayload{OrderID: orderID, SellerID: sellerID, AmountCents: 9000, Status: "failed"})
	notifications, err = consumer.build(enums.EventPayoutFailed, payoutPayload)
	if err != nil {
		t.Fatalf("build payout failure: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Recipient != "ops@bookhaven.example" {
		t.Fatalf("payout failure notifications: %+v", notifications)
	}

	skipped, err := consumer.build(enums.EventNotificationQueue, payoutPayload)
	if err != nil || len(skipped) != 0 {
		t.Fatalf("expected pass-through event to be skipped, got %+v err %v", skipped, err)
	}
}

type stubLimiter struct {
	counts map[string]int64
}

func (s *stubLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}
