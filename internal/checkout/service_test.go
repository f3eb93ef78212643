package checkout

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/internal/orders"
	"github.com/bookhavenhq/bookhaven-backend/internal/settlement"
	"github.com/bookhavenhq/bookhaven-backend/pkg/courier"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
	"github.com/bookhavenhq/bookhaven-backend/pkg/types"
)

func testAddress() types.Address {
	return types.Address{
		Line1:      "14 Glover Road",
		City:       "Lagos",
		State:      "Lagos",
		PostalCode: "101241",
		Country:    "NG",
	}
}

func newTestService(t *testing.T, repo orders.Repository, books bookReader, reserver copyReserver, publisher outboxPublisher) (*Service, *paystack.Simulated, *courier.Simulated) {
	t.Helper()

	calculator, err := settlement.NewCalculator(settlement.PolicyV1.Version)
	if err != nil {
		t.Fatalf("build calculator: %v", err)
	}

	payments := paystack.NewSimulated()
	shipping := courier.NewSimulated()

	service, err := NewService(ServiceParams{
		OrderRepo:    repo,
		Books:        books,
		Tx:           stubTxRunner{},
		Outbox:       publisher,
		Inventory:    reserver,
		Calculator:   calculator,
		Payments:     payments,
		Courier:      shipping,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		CommitWindow: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return service, payments, shipping
}

func TestStartOpensSessionWithPerSellerDeliveryFees(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()

	books := []models.Book{
		{ID: uuid.New(), SellerID: sellerA, Title: "Things Fall Apart", Author: "Chinua Achebe", PriceCents: 4500, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
		{ID: uuid.New(), SellerID: sellerA, Title: "Arrow of God", Author: "Chinua Achebe", PriceCents: 3500, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
		{ID: uuid.New(), SellerID: sellerB, Title: "Purple Hibiscus", Author: "Chimamanda Ngozi Adichie", PriceCents: 5000, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
	}

	service, _, shipping := newTestService(t, newStubOrderRepo(), &stubBookReader{books: books}, &stubReserver{}, &stubOutbox{})
	shipping.SetFeeCents(1500)

	session, err := service.Start(context.Background(), StartInput{
		BuyerID:         buyerID,
		Email:           "buyer@example.com",
		BookIDs:         []uuid.UUID{books[0].ID, books[1].ID, books[2].ID},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if session.ItemTotalCents != 13000 {
		t.Fatalf("item total mismatch: %d", session.ItemTotalCents)
	}
	// two sellers, one quote each
	if session.DeliveryFeeCents != 3000 {
		t.Fatalf("delivery total mismatch: %d", session.DeliveryFeeCents)
	}
	if session.TotalCents != 16000 {
		t.Fatalf("grand total mismatch: %d", session.TotalCents)
	}
	if session.Reference == "" || session.AuthorizationURL == "" {
		t.Fatalf("session handle incomplete: %+v", session)
	}
}

func TestStartRejectsReservedCopy(t *testing.T) {
	t.Parallel()

	reserved := models.Book{ID: uuid.New(), SellerID: uuid.New(), Title: "Half of a Yellow Sun", Author: "Chimamanda Ngozi Adichie", PriceCents: 6000, Currency: enums.CurrencyNGN, Status: enums.BookStatusReserved}

	service, _, _ := newTestService(t, newStubOrderRepo(), &stubBookReader{books: []models.Book{reserved}}, &stubReserver{}, &stubOutbox{})

	_, err := service.Start(context.Background(), StartInput{
		BuyerID:         uuid.New(),
		Email:           "buyer@example.com",
		BookIDs:         []uuid.UUID{reserved.ID},
		ShippingAddress: testAddress(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestStartRejectsSelfPurchase(t *testing.T) {
	t.Parallel()

	sellerID := uuid.New()
	own := models.Book{ID: uuid.New(), SellerID: sellerID, Title: "The Famished Road", Author: "Ben Okri", PriceCents: 5500, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable}

	service, _, _ := newTestService(t, newStubOrderRepo(), &stubBookReader{books: []models.Book{own}}, &stubReserver{}, &stubOutbox{})

	_, err := service.Start(context.Background(), StartInput{
		BuyerID:         sellerID,
		Email:           "seller@example.com",
		BookIDs:         []uuid.UUID{own.ID},
		ShippingAddress: testAddress(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestStartRejectsMissingCopy(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t, newStubOrderRepo(), &stubBookReader{}, &stubReserver{}, &stubOutbox{})

	_, err := service.Start(context.Background(), StartInput{
		BuyerID:         uuid.New(),
		Email:           "buyer@example.com",
		BookIDs:         []uuid.UUID{uuid.New()},
		ShippingAddress: testAddress(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSettleSplitsCartBySeller(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()

	books := []models.Book{
		{ID: uuid.New(), SellerID: sellerA, SellerEmail: "seller-a@example.com", Title: "Things Fall Apart", Author: "Chinua Achebe", PriceCents: 4500, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
		{ID: uuid.New(), SellerID: sellerA, SellerEmail: "seller-a@example.com", Title: "Arrow of God", Author: "Chinua Achebe", PriceCents: 5500, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
		{ID: uuid.New(), SellerID: sellerB, SellerEmail: "seller-b@example.com", Title: "Purple Hibiscus", Author: "Chimamanda Ngozi Adichie", PriceCents: 5000, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
	}

	repo := newStubOrderRepo()
	reserver := &stubReserver{}
	publisher := &stubOutbox{}
	service, _, _ := newTestService(t, repo, &stubBookReader{books: books}, reserver, publisher)

	payload := cartPayload{
		BuyerID:  buyerID,
		Email:    "buyer@example.com",
		BookIDs:  []uuid.UUID{books[0].ID, books[1].ID, books[2].ID},
		Address:  testAddress(),
		Currency: enums.CurrencyNGN,
		DeliveryFees: map[string]int{
			sellerA.String(): 1500,
			sellerB.String(): 2000,
		},
		TotalCents: 18500,
	}
	metadata, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	created, err := service.SettlePaidCheckout(context.Background(), SettleInput{
		Reference:   "bh_test",
		AmountCents: 18500,
		Metadata:    metadata,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if len(created) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(created))
	}

	bySeller := map[uuid.UUID]models.Order{}
	for _, order := range created {
		bySeller[order.SellerID] = order
	}

	orderA, ok := bySeller[sellerA]
	if !ok {
		t.Fatalf("missing order for first seller")
	}
	if orderA.Status != enums.OrderStatusPendingCommit {
		t.Fatalf("unexpected status: %s", orderA.Status)
	}
	if orderA.ItemTotalCents != 10000 || orderA.DeliveryFeeCents != 1500 || orderA.TotalCents != 11500 {
		t.Fatalf("first seller totals mismatch: %+v", orderA)
	}
	if orderA.CommissionCents != 1000 || orderA.SellerNetCents != 9000 {
		t.Fatalf("first seller settlement mismatch: commission=%d net=%d", orderA.CommissionCents, orderA.SellerNetCents)
	}
	if len(orderA.Items) != 2 {
		t.Fatalf("expected 2 items for first seller, got %d", len(orderA.Items))
	}
	if orderA.BuyerEmail != "buyer@example.com" || orderA.SellerEmail != "seller-a@example.com" {
		t.Fatalf("contact snapshot mismatch: buyer=%q seller=%q", orderA.BuyerEmail, orderA.SellerEmail)
	}
	if orderA.ExpiresAt == nil {
		t.Fatalf("expected commit deadline")
	}
	if got := time.Until(*orderA.ExpiresAt); got < 47*time.Hour || got > 49*time.Hour {
		t.Fatalf("commit deadline outside window: %s", got)
	}

	orderB, ok := bySeller[sellerB]
	if !ok {
		t.Fatalf("missing order for second seller")
	}
	if orderB.ItemTotalCents != 5000 || orderB.DeliveryFeeCents != 2000 {
		t.Fatalf("second seller totals mismatch: %+v", orderB)
	}
	if orderB.CommissionCents != 500 || orderB.SellerNetCents != 4500 {
		t.Fatalf("second seller settlement mismatch: commission=%d net=%d", orderB.CommissionCents, orderB.SellerNetCents)
	}

	if len(reserver.reservations) != 2 {
		t.Fatalf("expected 2 reservation calls, got %d", len(reserver.reservations))
	}
	if len(reserver.reservations[orderA.ID]) != 2 || len(reserver.reservations[orderB.ID]) != 1 {
		t.Fatalf("reservation grouping mismatch: %+v", reserver.reservations)
	}

	if publisher.count(enums.EventOrderCreated) != 2 {
		t.Fatalf("expected 2 order_created events, got %d", publisher.count(enums.EventOrderCreated))
	}
}

func TestSettleReplayReturnsExistingOrders(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	existing := models.Order{
		ID:               uuid.New(),
		PaymentReference: "bh_replay",
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		Status:           enums.OrderStatusPendingCommit,
	}
	repo.orders[existing.ID] = existing

	reserver := &stubReserver{}
	publisher := &stubOutbox{}
	service, _, _ := newTestService(t, repo, &stubBookReader{}, reserver, publisher)

	created, err := service.SettlePaidCheckout(context.Background(), SettleInput{
		Reference:   "bh_replay",
		AmountCents: 0,
		Metadata:    json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("settle replay: %v", err)
	}
	if len(created) != 1 || created[0].ID != existing.ID {
		t.Fatalf("expected existing order back, got %+v", created)
	}
	if len(reserver.reservations) != 0 {
		t.Fatalf("replay must not reserve copies")
	}
	if publisher.total() != 0 {
		t.Fatalf("replay must not emit events")
	}
}

func TestSettleRejectsAmountMismatch(t *testing.T) {
	t.Parallel()

	book := models.Book{ID: uuid.New(), SellerID: uuid.New(), Title: "Sozaboy", Author: "Ken Saro-Wiwa", PriceCents: 3000, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable}
	service, _, _ := newTestService(t, newStubOrderRepo(), &stubBookReader{books: []models.Book{book}}, &stubReserver{}, &stubOutbox{})

	payload := cartPayload{
		BuyerID:      uuid.New(),
		BookIDs:      []uuid.UUID{book.ID},
		Address:      testAddress(),
		Currency:     enums.CurrencyNGN,
		DeliveryFees: map[string]int{book.SellerID.String(): 1500},
		TotalCents:   4500,
	}
	metadata, _ := json.Marshal(payload)

	_, err := service.SettlePaidCheckout(context.Background(), SettleInput{
		Reference:   "bh_short",
		AmountCents: 4000,
		Metadata:    metadata,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSettleFailsWhenNoSellerOrderSurvives(t *testing.T) {
	t.Parallel()

	book := models.Book{ID: uuid.New(), SellerID: uuid.New(), Title: "The Famished Road", Author: "Ben Okri", PriceCents: 7000, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable}
	repo := newStubOrderRepo()
	service, _, _ := newTestService(t, repo, &stubBookReader{books: []models.Book{book}}, &stubReserver{fail: true}, &stubOutbox{})

	payload := cartPayload{
		BuyerID:      uuid.New(),
		BookIDs:      []uuid.UUID{book.ID},
		Address:      testAddress(),
		Currency:     enums.CurrencyNGN,
		DeliveryFees: map[string]int{book.SellerID.String(): 1500},
		TotalCents:   8500,
	}
	metadata, _ := json.Marshal(payload)

	created, err := service.SettlePaidCheckout(context.Background(), SettleInput{
		Reference:   "bh_conflict",
		AmountCents: 8500,
		Metadata:    metadata,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no orders, got %d", len(created))
	}
}

func TestSettleCreatesRemainingOrdersWhenOneSellerConflicts(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()

	books := []models.Book{
		{ID: uuid.New(), SellerID: sellerA, Title: "Things Fall Apart", Author: "Chinua Achebe", PriceCents: 4500, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
		{ID: uuid.New(), SellerID: sellerB, Title: "Purple Hibiscus", Author: "Chimamanda Ngozi Adichie", PriceCents: 5000, Currency: enums.CurrencyNGN, Status: enums.BookStatusAvailable},
	}

	repo := newStubOrderRepo()
	reserver := &stubReserver{failBooks: map[uuid.UUID]bool{books[1].ID: true}}
	publisher := &stubOutbox{}
	service, _, _ := newTestService(t, repo, &stubBookReader{books: books}, reserver, publisher)

	payload := cartPayload{
		BuyerID:  buyerID,
		Email:    "buyer@example.com",
		BookIDs:  []uuid.UUID{books[0].ID, books[1].ID},
		Address:  testAddress(),
		Currency: enums.CurrencyNGN,
		DeliveryFees: map[string]int{
			sellerA.String(): 1500,
			sellerB.String(): 2000,
		},
		TotalCents: 13000,
	}
	metadata, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	created, err := service.SettlePaidCheckout(context.Background(), SettleInput{
		Reference:   "bh_partial",
		AmountCents: 13000,
		Metadata:    metadata,
	})
	if err != nil {
		t.Fatalf("settle with one conflicted seller: %v", err)
	}

	if len(created) != 1 {
		t.Fatalf("expected 1 surviving order, got %d", len(created))
	}
	if created[0].SellerID != sellerA {
		t.Fatalf("expected order for unconflicted seller, got %s", created[0].SellerID)
	}
	if len(reserver.reservations) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(reserver.reservations))
	}
	if publisher.count(enums.EventOrderCreated) != 1 {
		t.Fatalf("expected 1 order_created event, got %d", publisher.count(enums.EventOrderCreated))
	}
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubBookReader struct {
	books []models.Book
}

func (s *stubBookReader) FindBooksByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error) {
	byID := make(map[uuid.UUID]models.Book, len(s.books))
	for _, book := range s.books {
		byID[book.ID] = book
	}
	var found []models.Book
	for _, id := range ids {
		if book, ok := byID[id]; ok {
			found = append(found, book)
		}
	}
	return found, nil
}

type stubReserver struct {
	fail         bool
	failBooks    map[uuid.UUID]bool
	reservations map[uuid.UUID][]uuid.UUID
}

func (s *stubReserver) ReserveForOrder(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID, orderID uuid.UUID) error {
	if s.fail {
		return pkgerrors.New(pkgerrors.CodeConflict, "one or more copies are no longer available")
	}
	for _, id := range bookIDs {
		if s.failBooks[id] {
			return pkgerrors.New(pkgerrors.CodeConflict, "one or more copies are no longer available")
		}
	}
	if s.reservations == nil {
		s.reservations = map[uuid.UUID][]uuid.UUID{}
	}
	s.reservations[orderID] = append(s.reservations[orderID], bookIDs...)
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

func (s *stubOutbox) total() int {
	return len(s.events)
}

type stubOrderRepo struct {
	orders map[uuid.UUID]models.Order
	items  map[uuid.UUID][]models.OrderItem
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		orders: map[uuid.UUID]models.Order{},
		items:  map[uuid.UUID][]models.OrderItem{},
	}
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository {
	return s
}

func (s *stubOrderRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s.orders[order.ID] = *order
	return order, nil
}

func (s *stubOrderRepo) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		s.items[items[i].OrderID] = append(s.items[items[i].OrderID], items[i])
	}
	return nil
}

func (s *stubOrderRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	order.Items = s.items[orderID]
	return &order, nil
}

func (s *stubOrderRepo) FindOrdersByPaymentReference(ctx context.Context, reference string) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.PaymentReference == reference {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubOrderRepo) FindOrdersBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.SellerID == sellerID {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubOrderRepo) FindOrdersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.BuyerID == buyerID {
			found = append(found, order)
		}
	}
	return found, nil
}

func (s *stubOrderRepo) FindCommitableBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var found []models.Order
	for _, order := range s.orders {
		if order.Status == enums.OrderStatusPendingCommit && order.ExpiresAt != nil && !order.ExpiresAt.After(cutoff) {
			found = append(found, order)
		}
		if limit > 0 && len(found) >= limit {
			break
		}
	}
	return found, nil
}

func (s *stubOrderRepo) UpdateStatusIf(ctx context.Context, orderID uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != expected {
		return false, nil
	}
	if next, ok := updates["status"].(enums.OrderStatus); ok {
		order.Status = next
	}
	s.orders[orderID] = order
	return true, nil
}

func (s *stubOrderRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return nil
}
