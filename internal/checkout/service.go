package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/internal/checkout/helpers"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type copyReserver interface {
	ReserveForOrder(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID, orderID uuid.UUID) error
}

type bookReader interface {
	FindBooksByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error)
}

type paymentInitializer interface {
	InitializeTransaction(ctx context.Context, params paystack.InitializeParams) (*paystack.InitializeResult, error)
}

type feeQuoter interface {
	QuoteDeliveryFee(ctx context.Context, params courier.QuoteParams) (*courier.Quote, error)
}

// Service turns a paid multi-seller cart into per-seller orders.
type Service struct {
	orderRepo    orders.Repository
	books        bookReader
	tx           txRunner
	outbox       outboxPublisher
	inventory    copyReserver
	calculator   *settlement.Calculator
	payments     paymentInitializer
	courier      feeQuoter
	logg         *logger.Logger
	commitWindow time.Duration
	now          func() time.Time
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	OrderRepo    orders.Repository
	Books        bookReader
	Tx           txRunner
	Outbox       outboxPublisher
	Inventory    copyReserver
	Calculator   *settlement.Calculator
	Payments     paymentInitializer
	Courier      feeQuoter
	Logger       *logger.Logger
	CommitWindow time.Duration
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Books == nil {
		return nil, fmt.Errorf("book reader required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("copy reserver required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("settlement calculator required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment initializer required")
	}
	if params.Courier == nil {
		return nil, fmt.Errorf("courier quoter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.CommitWindow <= 0 {
		return nil, fmt.Errorf("commit window must be positive")
	}
	return &Service{
		orderRepo:    params.OrderRepo,
		books:        params.Books,
		tx:           params.Tx,
		outbox:       params.Outbox,
		inventory:    params.Inventory,
		calculator:   params.Calculator,
		payments:     params.Payments,
		courier:      params.Courier,
		logg:         params.Logger,
		commitWindow: params.CommitWindow,
		now:          time.Now,
	}, nil
}

// StartInput opens a hosted payment session for a cart.
type StartInput struct {
	BuyerID         uuid.UUID
	Email           string
	BookIDs         []uuid.UUID
	ShippingAddress types.Address
	Currency        enums.Currency
}

// Session is the handle the buyer is redirected with.
type Session struct {
	Reference        string
	AuthorizationURL string
	ItemTotalCents   int
	DeliveryFeeCents int
	TotalCents       int
}

// cartPayload is the cart snapshot carried through the provider's metadata so
// the settlement webhook can rebuild the cart without server-side session
// state.
type cartPayload struct {
	BuyerID      uuid.UUID      `json:"buyer_id"`
	Email        string         `json:"email"`
	BookIDs      []uuid.UUID    `json:"book_ids"`
	Address      types.Address  `json:"address"`
	Currency     enums.Currency `json:"currency"`
	DeliveryFees map[string]int `json:"delivery_fees"`
	TotalCents   int            `json:"total_cents"`
}

// OrderCreatedEvent is emitted for each per-seller order carved from a cart.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	PaymentReference string    `json:"paymentReference"`
	BuyerID          uuid.UUID `json:"buyerId"`
	BuyerEmail       string    `json:"buyerEmail"`
	SellerID         uuid.UUID `json:"sellerId"`
	SellerEmail      string    `json:"sellerEmail"`
	ItemCount        int       `json:"itemCount"`
	TotalCents       int       `json:"totalCents"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// Start validates the cart, prices delivery per seller, and opens the hosted
// payment session. Copies are not held until payment is captured.
func (s *Service) Start(ctx context.Context, input StartInput) (*Session, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	if len(input.BookIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyNGN
	}

	books, err := s.loadAvailableBooks(ctx, input.BookIDs)
	if err != nil {
		return nil, err
	}
	for _, book := range books {
		if book.SellerID == input.BuyerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot purchase your own listing")
		}
	}

	grouped := helpers.GroupBooksBySeller(books)
	totals := helpers.ComputeTotalsBySeller(books)

	itemTotal := 0
	deliveryTotal := 0
	deliveryFees := make(map[string]int, len(grouped))
	for _, sellerID := range helpers.SellerIDsInCartOrder(books) {
		quote, err := s.courier.QuoteDeliveryFee(ctx, courier.QuoteParams{
			Destination: input.ShippingAddress,
			ItemCount:   len(grouped[sellerID]),
		})
		if err != nil {
			return nil, err
		}
		deliveryFees[sellerID.String()] = quote.FeeCents
		deliveryTotal += quote.FeeCents
		itemTotal += totals[sellerID].ItemTotalCents
	}

	reference := "bh_" + uuid.NewString()
	payload := cartPayload{
		BuyerID:      input.BuyerID,
		Email:        input.Email,
		BookIDs:      input.BookIDs,
		Address:      input.ShippingAddress,
		Currency:     currency,
		DeliveryFees: deliveryFees,
		TotalCents:   itemTotal + deliveryTotal,
	}
	metadata, err := payloadToMetadata(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart payload")
	}

	result, err := s.payments.InitializeTransaction(ctx, paystack.InitializeParams{
		Email:       input.Email,
		AmountCents: payload.TotalCents,
		Currency:    string(currency),
		Reference:   reference,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithPaymentReference(ctx, result.Reference)
	s.logg.Info(logCtx, "checkout session opened")

	return &Session{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		ItemTotalCents:   itemTotal,
		DeliveryFeeCents: deliveryTotal,
		TotalCents:       payload.TotalCents,
	}, nil
}

// SettleInput carries a captured charge into order creation.
type SettleInput struct {
	Reference   string
	AmountCents int
	Metadata    json.RawMessage
}

// SettlePaidCheckout splits a captured cart into one pending order per
// seller. Each seller's sub-order is created in its own transaction, so one
// seller's failure never takes down the rest of the cart. Replays of the
// same reference return the existing orders without writing anything.
func (s *Service) SettlePaidCheckout(ctx context.Context, input SettleInput) ([]models.Order, error) {
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	existing, err := s.orderRepo.FindOrdersByPaymentReference(ctx, input.Reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing orders")
	}
	if len(existing) > 0 {
		logCtx := s.logg.WithPaymentReference(ctx, input.Reference)
		s.logg.Info(logCtx, "charge already settled, skipping")
		return existing, nil
	}

	var payload cartPayload
	if err := json.Unmarshal(input.Metadata, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode cart payload")
	}
	if payload.BuyerID == uuid.Nil || len(payload.BookIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart payload incomplete")
	}
	if input.AmountCents != payload.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "captured amount does not match cart total")
	}

	books, err := s.loadBooks(ctx, payload.BookIDs)
	if err != nil {
		return nil, err
	}

	grouped := helpers.GroupBooksBySeller(books)
	totals := helpers.ComputeTotalsBySeller(books)
	now := s.now().UTC()
	expiresAt := now.Add(s.commitWindow)

	var created []models.Order
	var failures error
	for _, sellerID := range helpers.SellerIDsInCartOrder(books) {
		order, err := s.settleSellerOrder(ctx, input.Reference, payload, sellerID, grouped[sellerID], totals[sellerID].ItemTotalCents, now, expiresAt)
		if err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payment_reference": input.Reference,
				"seller_id":         sellerID.String(),
			})
			s.logg.Warn(logCtx, "seller sub-order failed, continuing with rest of cart")
			failures = multierr.Append(failures, err)
			continue
		}
		created = append(created, *order)
	}

	if len(created) == 0 {
		if failures != nil {
			return nil, failures
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no seller orders created")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_reference": input.Reference,
		"order_count":       len(created),
		"seller_count":      len(grouped),
	})
	if failures != nil {
		s.logg.Warn(logCtx, "paid cart split partially, some seller orders failed")
	} else {
		s.logg.Info(logCtx, "paid cart split into seller orders")
	}
	return created, nil
}

func (s *Service) settleSellerOrder(ctx context.Context, reference string, payload cartPayload, sellerID uuid.UUID, group []models.Book, itemTotal int, now, expiresAt time.Time) (*models.Order, error) {
	deliveryFee := payload.DeliveryFees[sellerID.String()]

	breakdown, err := s.calculator.Compute(itemTotal, deliveryFee)
	if err != nil {
		return nil, err
	}

	sellerEmail := ""
	if len(group) > 0 {
		sellerEmail = group[0].SellerEmail
	}

	address := payload.Address
	order := models.Order{
		PaymentReference: reference,
		BuyerID:          payload.BuyerID,
		BuyerEmail:       payload.Email,
		SellerID:         sellerID,
		SellerEmail:      sellerEmail,
		Currency:         payload.Currency,
		Status:           enums.OrderStatusPendingCommit,
		ItemTotalCents:   itemTotal,
		DeliveryFeeCents: deliveryFee,
		TotalCents:       itemTotal + deliveryFee,
		CommissionCents:  breakdown.CommissionCents,
		SellerNetCents:   breakdown.SellerNetCents,
		PolicyVersion:    breakdown.PolicyVersion,
		ShippingAddress:  &address,
		ExpiresAt:        &expiresAt,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orderRepo.WithTx(tx)
		if _, err := repo.CreateOrder(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(group))
		bookIDs := make([]uuid.UUID, 0, len(group))
		for _, book := range group {
			items = append(items, models.OrderItem{
				OrderID:    order.ID,
				BookID:     book.ID,
				Title:      book.Title,
				Author:     book.Author,
				ISBN:       book.ISBN,
				Condition:  book.Condition,
				PriceCents: book.PriceCents,
			})
			bookIDs = append(bookIDs, book.ID)
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		order.Items = items

		if err := s.inventory.ReserveForOrder(ctx, tx, bookIDs, order.ID); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: OrderCreatedEvent{
				OrderID:          order.ID,
				PaymentReference: reference,
				BuyerID:          payload.BuyerID,
				BuyerEmail:       payload.Email,
				SellerID:         sellerID,
				SellerEmail:      sellerEmail,
				ItemCount:        len(items),
				TotalCents:       order.TotalCents,
				ExpiresAt:        expiresAt,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) loadAvailableBooks(ctx context.Context, ids []uuid.UUID) ([]models.Book, error) {
	books, err := s.loadBooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, book := range books {
		if book.Status != enums.BookStatusAvailable {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("copy %s is no longer available", book.ID))
		}
	}
	return books, nil
}

func (s *Service) loadBooks(ctx context.Context, ids []uuid.UUID) ([]models.Book, error) {
	books, err := s.books.FindBooksByIDs(ctx, ids)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more copies not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load copies")
	}
	if len(books) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more copies not found")
	}
	return books, nil
}

func payloadToMetadata(payload cartPayload) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
