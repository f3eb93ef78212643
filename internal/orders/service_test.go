package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/courier"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
	"github.com/bookhavenhq/bookhaven-backend/pkg/types"
)

type testHarness struct {
	service   Service
	repo      *stubRepo
	inventory *stubInventory
	refunds   *stubRefunds
	payouts   *stubPayouts
	transfers *stubTransfers
	courier   *courier.Simulated
	outbox    *stubOutbox
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	repo := newStubRepo()
	inventory := &stubInventory{}
	refunds := &stubRefunds{}
	payouts := &stubPayouts{}
	transfers := &stubTransfers{}
	shipping := courier.NewSimulated()
	publisher := &stubOutbox{}

	service, err := NewService(ServiceParams{
		Repo:      repo,
		Tx:        stubTxRunner{},
		Outbox:    publisher,
		Inventory: inventory,
		Refunds:   refunds,
		Payouts:   payouts,
		Transfers: transfers,
		Courier:   shipping,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &testHarness{
		service:   service,
		repo:      repo,
		inventory: inventory,
		refunds:   refunds,
		payouts:   payouts,
		transfers: transfers,
		courier:   shipping,
		outbox:    publisher,
	}
}

func (h *testHarness) seedOrder(status enums.OrderStatus, expiresAt *time.Time) *models.Order {
	order := models.Order{
		ID:               uuid.New(),
		PaymentReference: "bh_" + uuid.NewString(),
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		Currency:         enums.CurrencyNGN,
		Status:           status,
		ItemTotalCents:   10000,
		DeliveryFeeCents: 1500,
		TotalCents:       11500,
		CommissionCents:  1000,
		SellerNetCents:   9000,
		ShippingAddress: &types.Address{
			Line1:      "14 Glover Road",
			City:       "Lagos",
			State:      "Lagos",
			PostalCode: "101241",
			Country:    "NG",
		},
		ExpiresAt: expiresAt,
	}
	h.repo.orders[order.ID] = order
	return &order
}

func hoursFromNow(h int) *time.Time {
	t := time.Now().UTC().Add(time.Duration(h) * time.Hour)
	return &t
}

func TestCommitRecordsPayoutAndBooksShipment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	committed, err := h.service.Commit(context.Background(), CommitInput{OrderID: order.ID, SellerID: order.SellerID})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if committed.Status != enums.OrderStatusCommitted {
		t.Fatalf("status: %s", committed.Status)
	}
	if committed.ExpiresAt != nil {
		t.Fatalf("commit deadline should be cleared")
	}
	if len(h.payouts.pending) != 1 || h.payouts.pending[0] != order.ID {
		t.Fatalf("payout obligation missing: %v", h.payouts.pending)
	}
	if h.outbox.count(enums.EventOrderCommitted) != 1 {
		t.Fatalf("order_committed event missing")
	}
	if len(h.courier.Bookings()) != 1 {
		t.Fatalf("expected 1 courier booking, got %d", len(h.courier.Bookings()))
	}
	if committed.TrackingCode == nil || *committed.TrackingCode == "" {
		t.Fatalf("tracking code not persisted after booking")
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)

	result, err := h.service.Commit(context.Background(), CommitInput{OrderID: order.ID, SellerID: order.SellerID})
	if err != nil {
		t.Fatalf("repeat commit: %v", err)
	}
	if result.Status != enums.OrderStatusCommitted {
		t.Fatalf("status: %s", result.Status)
	}
	if len(h.payouts.pending) != 0 {
		t.Fatalf("repeat commit must not open a second payout")
	}
	if len(h.courier.Bookings()) != 0 {
		t.Fatalf("repeat commit must not book again")
	}
}

func TestCommitRejectedFromTerminalState(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusDeclined, nil)

	_, err := h.service.Commit(context.Background(), CommitInput{OrderID: order.ID, SellerID: order.SellerID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCommitLosesRaceToSweeper(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(-1))
	// the sweeper flips the row between the service's read and its update
	h.repo.conflictOnce[order.ID] = true

	_, err := h.service.Commit(context.Background(), CommitInput{OrderID: order.ID, SellerID: order.SellerID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on lost race, got %v", err)
	}
	if len(h.payouts.pending) != 0 {
		t.Fatalf("lost race must not record a payout")
	}
}

func TestCommitSurvivesBookingFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.courier.SetFailing(true)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	committed, err := h.service.Commit(context.Background(), CommitInput{OrderID: order.ID, SellerID: order.SellerID})
	if err != nil {
		t.Fatalf("booking failure must not fail the commit: %v", err)
	}
	if committed.Status != enums.OrderStatusCommitted {
		t.Fatalf("commit not durable: %s", committed.Status)
	}
	if stored := h.repo.orders[order.ID]; stored.Status != enums.OrderStatusCommitted {
		t.Fatalf("stored status reverted: %s", stored.Status)
	}
	if h.outbox.count(enums.EventBookingFailed) != 1 {
		t.Fatalf("booking fallback event missing")
	}
}

func TestCommitForbiddenForWrongSeller(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	_, err := h.service.Commit(context.Background(), CommitInput{OrderID: order.ID, SellerID: uuid.New()})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDeclineReleasesCopiesAndOwesRefund(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	declined, err := h.service.Decline(context.Background(), DeclineInput{
		OrderID:  order.ID,
		SellerID: order.SellerID,
		Reason:   "copy damaged in storage",
	})
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != enums.OrderStatusDeclined {
		t.Fatalf("status: %s", declined.Status)
	}
	if len(h.inventory.released) != 1 || h.inventory.released[0] != order.ID {
		t.Fatalf("copies not released: %v", h.inventory.released)
	}
	if len(h.refunds.owed) != 1 || h.refunds.owed[0].reason != "copy damaged in storage" {
		t.Fatalf("refund obligation mismatch: %+v", h.refunds.owed)
	}
	if h.outbox.count(enums.EventOrderDeclined) != 1 {
		t.Fatalf("order_declined event missing")
	}
}

func TestDeclineDefaultsReason(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	if _, err := h.service.Decline(context.Background(), DeclineInput{OrderID: order.ID, SellerID: order.SellerID}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if len(h.refunds.owed) != 1 || h.refunds.owed[0].reason != "seller declined the order" {
		t.Fatalf("default reason missing: %+v", h.refunds.owed)
	}
}

func TestExpireOnlyPastDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cutoff := time.Now().UTC()

	future := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(12))
	changed, err := h.service.Expire(context.Background(), future.ID, cutoff)
	if err != nil {
		t.Fatalf("expire future order: %v", err)
	}
	if changed {
		t.Fatalf("order inside its window must not expire")
	}

	overdue := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(-1))
	changed, err = h.service.Expire(context.Background(), overdue.ID, cutoff)
	if err != nil {
		t.Fatalf("expire overdue order: %v", err)
	}
	if !changed {
		t.Fatalf("overdue order should expire")
	}
	if len(h.inventory.released) != 1 {
		t.Fatalf("expired order must release copies")
	}
	if len(h.refunds.owed) != 1 || h.refunds.owed[0].reason != "commit window elapsed" {
		t.Fatalf("refund obligation mismatch: %+v", h.refunds.owed)
	}
	if h.outbox.count(enums.EventOrderExpired) != 1 {
		t.Fatalf("order_expired event missing")
	}
}

func TestDoubleExpireIsNoOp(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cutoff := time.Now().UTC()
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(-2))

	if changed, err := h.service.Expire(context.Background(), order.ID, cutoff); err != nil || !changed {
		t.Fatalf("first expire: changed=%v err=%v", changed, err)
	}
	changed, err := h.service.Expire(context.Background(), order.ID, cutoff)
	if err != nil {
		t.Fatalf("second expire must be benign: %v", err)
	}
	if changed {
		t.Fatalf("second expire must not change anything")
	}
	if len(h.refunds.owed) != 1 {
		t.Fatalf("refund must be owed exactly once, got %d", len(h.refunds.owed))
	}
}

func TestMarkShippedSetsTracking(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)
	tracking := "TRK-123"

	shipped, err := h.service.MarkShipped(context.Background(), ShipInput{
		OrderID:      order.ID,
		SellerID:     order.SellerID,
		TrackingCode: &tracking,
	})
	if err != nil {
		t.Fatalf("mark shipped: %v", err)
	}
	if shipped.Status != enums.OrderStatusShipped {
		t.Fatalf("status: %s", shipped.Status)
	}
	if shipped.TrackingCode == nil || *shipped.TrackingCode != tracking {
		t.Fatalf("tracking code not set")
	}
	if h.outbox.count(enums.EventOrderShipped) != 1 {
		t.Fatalf("order_shipped event missing")
	}
}

func TestMarkShippedRejectedBeforeCommit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	_, err := h.service.MarkShipped(context.Background(), ShipInput{OrderID: order.ID, SellerID: order.SellerID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestMarkShippedByTrackingMovesCommittedOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)

	err := h.service.MarkShippedByTracking(context.Background(), TrackingShipInput{
		OrderID:      order.ID,
		TrackingCode: "TRK-987",
	})
	if err != nil {
		t.Fatalf("collection scan: %v", err)
	}
	stored := h.repo.orders[order.ID]
	if stored.Status != enums.OrderStatusShipped {
		t.Fatalf("status: %s", stored.Status)
	}
	if stored.TrackingCode == nil || *stored.TrackingCode != "TRK-987" {
		t.Fatalf("tracking code not persisted")
	}
	if h.outbox.count(enums.EventOrderShipped) != 1 {
		t.Fatalf("order_shipped event missing")
	}
}

func TestMarkShippedByTrackingIgnoresRepeatScan(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusShipped, nil)

	if err := h.service.MarkShippedByTracking(context.Background(), TrackingShipInput{OrderID: order.ID}); err != nil {
		t.Fatalf("repeat scan must be benign: %v", err)
	}
	if h.outbox.count(enums.EventOrderShipped) != 0 {
		t.Fatalf("repeat scan must not emit again")
	}
}

func TestMarkShippedByTrackingIgnoresDeliveredOrder(t *testing.T) {
	t.Parallel()

	// the collected scan can be redelivered after the delivery scan landed
	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusDelivered, nil)

	if err := h.service.MarkShippedByTracking(context.Background(), TrackingShipInput{OrderID: order.ID}); err != nil {
		t.Fatalf("late scan must be benign: %v", err)
	}
	if stored := h.repo.orders[order.ID]; stored.Status != enums.OrderStatusDelivered {
		t.Fatalf("late scan must not regress state: %s", stored.Status)
	}
}

func TestMarkShippedByTrackingRejectedBeforeCommit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusPendingCommit, hoursFromNow(24))

	err := h.service.MarkShippedByTracking(context.Background(), TrackingShipInput{OrderID: order.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestMarkShippedByTrackingBenignOnLostRace(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)
	h.repo.conflictOnce[order.ID] = true

	if err := h.service.MarkShippedByTracking(context.Background(), TrackingShipInput{OrderID: order.ID}); err != nil {
		t.Fatalf("lost race must be benign: %v", err)
	}
	if h.outbox.count(enums.EventOrderShipped) != 0 {
		t.Fatalf("lost race must not emit")
	}
}

func TestMarkDeliveredFinalizesAndStartsTransfer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusShipped, nil)

	if err := h.service.MarkDelivered(context.Background(), DeliverInput{OrderID: order.ID}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if len(h.inventory.sold) != 1 || h.inventory.sold[0] != order.ID {
		t.Fatalf("copies not marked sold: %v", h.inventory.sold)
	}
	if len(h.transfers.initiated) != 1 || h.transfers.initiated[0] != order.ID {
		t.Fatalf("transfer not initiated: %v", h.transfers.initiated)
	}
	if h.outbox.count(enums.EventOrderDelivered) != 1 {
		t.Fatalf("order_delivered event missing")
	}
}

func TestMarkDeliveredAcceptsCommittedOrder(t *testing.T) {
	t.Parallel()

	// the delivery scan can arrive before the shipped scan
	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)

	if err := h.service.MarkDelivered(context.Background(), DeliverInput{OrderID: order.ID}); err != nil {
		t.Fatalf("mark delivered from committed: %v", err)
	}
	if stored := h.repo.orders[order.ID]; stored.Status != enums.OrderStatusDelivered {
		t.Fatalf("status: %s", stored.Status)
	}
}

func TestMarkDeliveredSurvivesTransferFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.transfers.err = pkgerrors.New(pkgerrors.CodeDependency, "provider down")
	order := h.seedOrder(enums.OrderStatusShipped, nil)

	if err := h.service.MarkDelivered(context.Background(), DeliverInput{OrderID: order.ID}); err != nil {
		t.Fatalf("transfer failure must not fail delivery: %v", err)
	}
	if stored := h.repo.orders[order.ID]; stored.Status != enums.OrderStatusDelivered {
		t.Fatalf("delivery not durable: %s", stored.Status)
	}
}

func TestRefundFromCommittedReleasesCopies(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)

	refunded, err := h.service.Refund(context.Background(), RefundInput{
		OrderID: order.ID,
		Reason:  "buyer dispute upheld",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != enums.OrderStatusRefunded {
		t.Fatalf("status: %s", refunded.Status)
	}
	if len(h.inventory.released) != 1 {
		t.Fatalf("copies should return to the catalog before shipment")
	}
	if len(h.refunds.owed) != 1 || h.refunds.owed[0].reason != "buyer dispute upheld" {
		t.Fatalf("refund obligation mismatch: %+v", h.refunds.owed)
	}
}

func TestRefundFromShippedKeepsCopiesHeld(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusShipped, nil)

	if _, err := h.service.Refund(context.Background(), RefundInput{OrderID: order.ID, Reason: "lost in transit"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(h.inventory.released) != 0 {
		t.Fatalf("shipped copies must not return to the catalog")
	}
	if len(h.refunds.owed) != 1 {
		t.Fatalf("refund obligation missing")
	}
}

func TestRefundRequiresReason(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusCommitted, nil)

	_, err := h.service.Refund(context.Background(), RefundInput{OrderID: order.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefundRejectedAfterDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	order := h.seedOrder(enums.OrderStatusDelivered, nil)

	_, err := h.service.Refund(context.Background(), RefundInput{OrderID: order.ID, Reason: "too late"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepo struct {
	orders       map[uuid.UUID]models.Order
	conflictOnce map[uuid.UUID]bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		orders:       map[uuid.UUID]models.Order{},
		conflictOnce: map[uuid.UUID]bool{},
	}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = *order
	return order, nil
}

func (s *stubRepo) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	return nil
}

func (s *stubRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &order, nil
}

func (s *stubRepo) FindOrdersByPaymentReference(ctx context.Context, reference string) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.PaymentReference == reference {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubRepo) FindOrdersBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.SellerID == sellerID {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubRepo) FindOrdersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.BuyerID == buyerID {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubRepo) FindCommitableBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.Status == enums.OrderStatusPendingCommit && order.ExpiresAt != nil && !order.ExpiresAt.After(cutoff) {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubRepo) UpdateStatusIf(ctx context.Context, orderID uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error) {
	if s.conflictOnce[orderID] {
		delete(s.conflictOnce, orderID)
		return false, nil
	}
	order, ok := s.orders[orderID]
	if !ok || order.Status != expected {
		return false, nil
	}
	if next, ok := updates["status"].(enums.OrderStatus); ok {
		order.Status = next
	}
	if _, ok := updates["expires_at"]; ok {
		order.ExpiresAt = nil
	}
	if code, ok := updates["tracking_code"].(string); ok {
		order.TrackingCode = &code
	}
	s.orders[orderID] = order
	return true, nil
}

func (s *stubRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	order, ok := s.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if shipment, ok := updates["courier_shipment_id"].(string); ok {
		order.CourierShipment = &shipment
	}
	if tracking, ok := updates["tracking_code"].(string); ok {
		order.TrackingCode = &tracking
	}
	s.orders[orderID] = order
	return nil
}

type stubInventory struct {
	released []uuid.UUID
	sold     []uuid.UUID
}

func (s *stubInventory) ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s.released = append(s.released, orderID)
	return nil
}

func (s *stubInventory) MarkSoldForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s.sold = append(s.sold, orderID)
	return nil
}

type owedRefund struct {
	orderID uuid.UUID
	reason  string
}

type stubRefunds struct {
	owed []owedRefund
}

func (s *stubRefunds) RecordOwed(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) error {
	s.owed = append(s.owed, owedRefund{orderID: order.ID, reason: reason})
	return nil
}

type stubPayouts struct {
	pending []uuid.UUID
}

func (s *stubPayouts) RecordPending(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	s.pending = append(s.pending, order.ID)
	return nil
}

type stubTransfers struct {
	initiated []uuid.UUID
	err       error
}

func (s *stubTransfers) InitiateForOrder(ctx context.Context, orderID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.initiated = append(s.initiated, orderID)
	return nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) count(eventType enums.OutboxEventType) int {
	n := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}
