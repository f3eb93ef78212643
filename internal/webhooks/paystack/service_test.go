package paystackwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/bookhavenhq/bookhaven-backend/internal/checkout"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
)

func newTestReconciler(t *testing.T, settler *stubSettler, payouts *stubPayouts, refunds *stubRefunds, verifier *stubVerifier) (*Service, *memoryDedupe) {
	t.Helper()

	dedupe := newMemoryDedupe()
	service, err := NewService(ServiceParams{
		Settler:  settler,
		Payouts:  payouts,
		Refunds:  refunds,
		Verifier: verifier,
		Dedupe:   dedupe,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return service, dedupe
}

func chargeEvent(t *testing.T, name, reference string) *paystack.WebhookEvent {
	t.Helper()
	data, err := json.Marshal(paystack.ChargeEventData{
		Reference:   reference,
		Status:      "success",
		AmountCents: 11500,
	})
	if err != nil {
		t.Fatalf("marshal charge data: %v", err)
	}
	return &paystack.WebhookEvent{Event: name, Data: data}
}

func TestChargeSuccessVerifiesBeforeSettling(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	verifier := &stubVerifier{
		result: &paystack.TransactionResult{
			Reference:   "bh_ok",
			Status:      paystack.TransactionStatusSuccess,
			AmountCents: 11500,
			Metadata:    json.RawMessage(`{"buyer_id":"x"}`),
		},
	}
	service, _ := newTestReconciler(t, settler, &stubPayouts{}, &stubRefunds{}, verifier)

	if err := service.HandleEvent(context.Background(), chargeEvent(t, paystack.EventChargeSuccess, "bh_ok")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(settler.inputs) != 1 {
		t.Fatalf("expected 1 settle call, got %d", len(settler.inputs))
	}
	input := settler.inputs[0]
	if input.Reference != "bh_ok" || input.AmountCents != 11500 {
		t.Fatalf("settle input mismatch: %+v", input)
	}
	if string(input.Metadata) != `{"buyer_id":"x"}` {
		t.Fatalf("metadata should come from the verified transaction, got %s", input.Metadata)
	}
}

func TestChargeSuccessIgnoredWhenVerifyDisagrees(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	verifier := &stubVerifier{
		result: &paystack.TransactionResult{
			Reference: "bh_spoof",
			Status:    paystack.TransactionStatusFailed,
		},
	}
	service, _ := newTestReconciler(t, settler, &stubPayouts{}, &stubRefunds{}, verifier)

	if err := service.HandleEvent(context.Background(), chargeEvent(t, paystack.EventChargeSuccess, "bh_spoof")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(settler.inputs) != 0 {
		t.Fatalf("unverified charge must not settle")
	}
}

func TestReplayOfProcessedEventIsNoOp(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	verifier := &stubVerifier{
		result: &paystack.TransactionResult{
			Reference:   "bh_once",
			Status:      paystack.TransactionStatusSuccess,
			AmountCents: 500,
		},
	}
	service, _ := newTestReconciler(t, settler, &stubPayouts{}, &stubRefunds{}, verifier)

	event := chargeEvent(t, paystack.EventChargeSuccess, "bh_once")
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(settler.inputs) != 1 {
		t.Fatalf("replay settled again: %d calls", len(settler.inputs))
	}
}

func TestFailedProcessingReleasesDedupeKey(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{err: pkgerrors.New(pkgerrors.CodeDependency, "db unavailable")}
	verifier := &stubVerifier{
		result: &paystack.TransactionResult{
			Reference:   "bh_retry",
			Status:      paystack.TransactionStatusSuccess,
			AmountCents: 900,
		},
	}
	service, dedupe := newTestReconciler(t, settler, &stubPayouts{}, &stubRefunds{}, verifier)

	event := chargeEvent(t, paystack.EventChargeSuccess, "bh_retry")
	if err := service.HandleEvent(context.Background(), event); err == nil {
		t.Fatalf("expected settle failure to propagate")
	}
	if len(dedupe.keys) != 0 {
		t.Fatalf("dedupe key not released: %v", dedupe.keys)
	}

	// retry succeeds once the dependency recovers
	settler.err = nil
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(settler.inputs) != 1 {
		t.Fatalf("expected exactly 1 successful settle, got %d", len(settler.inputs))
	}
}

func TestTransferEventsRouteToPayouts(t *testing.T) {
	t.Parallel()

	payouts := &stubPayouts{}
	service, _ := newTestReconciler(t, &stubSettler{}, payouts, &stubRefunds{}, &stubVerifier{})

	success, _ := json.Marshal(paystack.TransferEventData{Reference: "po_1", Status: "success"})
	if err := service.HandleEvent(context.Background(), &paystack.WebhookEvent{Event: paystack.EventTransferSuccess, Data: success}); err != nil {
		t.Fatalf("transfer.success: %v", err)
	}
	if len(payouts.succeeded) != 1 || payouts.succeeded[0] != "po_1" {
		t.Fatalf("transfer success not routed: %v", payouts.succeeded)
	}

	failed, _ := json.Marshal(paystack.TransferEventData{Reference: "po_2", Status: "failed", Reason: "account closed"})
	if err := service.HandleEvent(context.Background(), &paystack.WebhookEvent{Event: paystack.EventTransferFailed, Data: failed}); err != nil {
		t.Fatalf("transfer.failed: %v", err)
	}
	if len(payouts.failed) != 1 || payouts.failed[0].reference != "po_2" || payouts.failed[0].reason != "account closed" {
		t.Fatalf("transfer failure not routed: %+v", payouts.failed)
	}
}

func TestRefundEventsRouteToRefunds(t *testing.T) {
	t.Parallel()

	refunds := &stubRefunds{}
	service, _ := newTestReconciler(t, &stubSettler{}, &stubPayouts{}, refunds, &stubVerifier{})

	processed, _ := json.Marshal(paystack.RefundEventData{ID: 42, Status: "processed"})
	if err := service.HandleEvent(context.Background(), &paystack.WebhookEvent{Event: paystack.EventRefundProcessed, Data: processed}); err != nil {
		t.Fatalf("refund.processed: %v", err)
	}
	if len(refunds.processed) != 1 || refunds.processed[0] != "42" {
		t.Fatalf("refund success not routed: %v", refunds.processed)
	}

	failedData, _ := json.Marshal(paystack.RefundEventData{ID: 43, Status: "failed"})
	if err := service.HandleEvent(context.Background(), &paystack.WebhookEvent{Event: paystack.EventRefundFailed, Data: failedData}); err != nil {
		t.Fatalf("refund.failed: %v", err)
	}
	if len(refunds.failed) != 1 || refunds.failed[0] != "43" {
		t.Fatalf("refund failure not routed: %v", refunds.failed)
	}
}

func TestUnknownEventAcknowledged(t *testing.T) {
	t.Parallel()

	settler := &stubSettler{}
	service, dedupe := newTestReconciler(t, settler, &stubPayouts{}, &stubRefunds{}, &stubVerifier{})

	err := service.HandleEvent(context.Background(), &paystack.WebhookEvent{
		Event: "subscription.create",
		Data:  json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("unknown event should be acknowledged: %v", err)
	}
	if len(settler.inputs) != 0 || len(dedupe.keys) != 0 {
		t.Fatalf("unknown event must not touch state")
	}
}

type stubSettler struct {
	inputs []checkout.SettleInput
	err    error
}

func (s *stubSettler) SettlePaidCheckout(ctx context.Context, input checkout.SettleInput) ([]models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, input)
	return nil, nil
}

type failedTransfer struct {
	reference string
	reason    string
}

type stubPayouts struct {
	succeeded []string
	failed    []failedTransfer
}

func (s *stubPayouts) HandleTransferSuccess(ctx context.Context, reference string) error {
	s.succeeded = append(s.succeeded, reference)
	return nil
}

func (s *stubPayouts) HandleTransferFailed(ctx context.Context, reference, reason string) error {
	s.failed = append(s.failed, failedTransfer{reference: reference, reason: reason})
	return nil
}

type stubRefunds struct {
	processed []string
	failed    []string
}

func (s *stubRefunds) HandleRefundProcessed(ctx context.Context, providerReference string) error {
	s.processed = append(s.processed, providerReference)
	return nil
}

func (s *stubRefunds) HandleRefundFailed(ctx context.Context, providerReference, reason string) error {
	s.failed = append(s.failed, providerReference)
	return nil
}

type stubVerifier struct {
	result *paystack.TransactionResult
	err    error
}

func (s *stubVerifier) VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return nil, fmt.Errorf("no transaction for %s", reference)
	}
	return s.result, nil
}

type memoryDedupe struct {
	keys map[string]string
}

func newMemoryDedupe() *memoryDedupe {
	return &memoryDedupe{keys: map[string]string{}}
}

func (m *memoryDedupe) IdempotencyKey(scope, id string) string {
	return "bh:idempotency:" + scope + ":" + id
}

func (m *memoryDedupe) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := m.keys[key]; exists {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryDedupe) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}
