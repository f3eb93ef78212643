package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/courier"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryReleaser returns reserved copies to the open catalog, or marks
// them sold once an order completes.
type InventoryReleaser interface {
	ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	MarkSoldForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// RefundRecorder opens the buyer's refund obligation inside the caller's
// transaction.
type RefundRecorder interface {
	RecordOwed(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) error
}

// PayoutRecorder opens the seller's payout obligation inside the caller's
// transaction.
type PayoutRecorder interface {
	RecordPending(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

// TransferInitiator starts moving the seller's net to their account. Runs
// outside the delivery transaction; failures are retried by the payout job.
type TransferInitiator interface {
	InitiateForOrder(ctx context.Context, orderID uuid.UUID) error
}

// Service defines order lifecycle operations beyond repository reads.
type Service interface {
	Commit(ctx context.Context, input CommitInput) (*models.Order, error)
	Decline(ctx context.Context, input DeclineInput) (*models.Order, error)
	Expire(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error)
	MarkShipped(ctx context.Context, input ShipInput) (*models.Order, error)
	MarkShippedByTracking(ctx context.Context, input TrackingShipInput) error
	MarkDelivered(ctx context.Context, input DeliverInput) error
	Refund(ctx context.Context, input RefundInput) (*models.Order, error)

	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Inventory InventoryReleaser
	Refunds   RefundRecorder
	Payouts   PayoutRecorder
	Transfers TransferInitiator
	Courier   courier.Client
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory InventoryReleaser
	refunds   RefundRecorder
	payouts   PayoutRecorder
	transfers TransferInitiator
	courier   courier.Client
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund recorder required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout recorder required")
	}
	if params.Transfers == nil {
		return nil, fmt.Errorf("transfer initiator required")
	}
	if params.Courier == nil {
		return nil, fmt.Errorf("courier client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		inventory: params.Inventory,
		refunds:   params.Refunds,
		payouts:   params.Payouts,
		transfers: params.Transfers,
		courier:   params.Courier,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// CommitInput captures a seller accepting an order.
type CommitInput struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
}

// DeclineInput captures a seller rejecting an order.
type DeclineInput struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
	Reason   string
}

// ShipInput captures a seller handing a parcel to the courier.
type ShipInput struct {
	OrderID      uuid.UUID
	SellerID     uuid.UUID
	TrackingCode *string
}

// TrackingShipInput captures the courier's first collection scan.
type TrackingShipInput struct {
	OrderID      uuid.UUID
	TrackingCode string
}

// DeliverInput captures a delivery confirmation from the courier.
type DeliverInput struct {
	OrderID uuid.UUID
}

// RefundInput captures a support-initiated refund.
type RefundInput struct {
	OrderID     uuid.UUID
	Reason      string
	ActorUserID uuid.UUID
}

// OrderStateEvent is the payload for lifecycle outbox events.
type OrderStateEvent struct {
	OrderID          uuid.UUID         `json:"orderId"`
	PaymentReference string            `json:"paymentReference"`
	BuyerID          uuid.UUID         `json:"buyerId"`
	BuyerEmail       string            `json:"buyerEmail"`
	SellerID         uuid.UUID         `json:"sellerId"`
	SellerEmail      string            `json:"sellerEmail"`
	Status           enums.OrderStatus `json:"status"`
	OccurredAt       time.Time         `json:"occurredAt"`
}

// BookingFailedEvent is emitted when courier booking fails after a commit.
// The commit itself is never rolled back for a booking failure.
type BookingFailedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	SellerID   uuid.UUID `json:"sellerId"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (s *service) Commit(ctx context.Context, input CommitInput) (*models.Order, error) {
	order, err := s.loadSellerOrder(ctx, input.OrderID, input.SellerID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCommitted {
		return order, nil
	}
	if !CanTransition(order.Status, enums.OrderStatusCommitted) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be committed")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusPendingCommit, map[string]any{
			"status":       enums.OrderStatusCommitted,
			"committed_at": now,
			"expires_at":   nil,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be committed")
		}

		order.Status = enums.OrderStatusCommitted
		order.CommittedAt = &now
		order.ExpiresAt = nil

		if err := s.payouts.RecordPending(ctx, tx, order); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderCommitted, order, now))
	})
	if err != nil {
		return nil, err
	}

	// Courier booking happens after the commit is durable so no DB lock is
	// held across the network call. A failed booking never reverts the
	// commit; it queues a fallback notification instead.
	s.bookShipment(ctx, order)

	return order, nil
}

func (s *service) bookShipment(ctx context.Context, order *models.Order) {
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())

	params := courier.BookingParams{
		OrderID:   order.ID.String(),
		ItemCount: len(order.Items),
	}
	if order.ShippingAddress != nil {
		params.Destination = *order.ShippingAddress
	}

	booking, err := s.courier.BookShipment(ctx, params)
	if err != nil {
		s.logg.Warn(logCtx, "courier booking failed after commit")
		s.queueBookingFallback(ctx, order, err)
		return
	}

	updates := map[string]any{
		"courier_shipment_id": booking.ShipmentID,
		"tracking_code":       booking.TrackingCode,
	}
	if err := s.repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		s.logg.Error(logCtx, "persisting courier booking", err)
		return
	}

	order.CourierShipment = &booking.ShipmentID
	order.TrackingCode = &booking.TrackingCode
	s.logg.Info(logCtx, "courier shipment booked")
}

func (s *service) queueBookingFallback(ctx context.Context, order *models.Order, cause error) {
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: BookingFailedEvent{
				OrderID:    order.ID,
				SellerID:   order.SellerID,
				Reason:     cause.Error(),
				OccurredAt: now,
			},
		})
	})
	if err != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Error(logCtx, "queueing booking fallback notification", err)
	}
}

func (s *service) Decline(ctx context.Context, input DeclineInput) (*models.Order, error) {
	order, err := s.loadSellerOrder(ctx, input.OrderID, input.SellerID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusDeclined {
		return order, nil
	}
	if !CanTransition(order.Status, enums.OrderStatusDeclined) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be declined")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"status":      enums.OrderStatusDeclined,
			"declined_at": now,
			"expires_at":  nil,
		}
		if input.Reason != "" {
			updates["decline_reason"] = input.Reason
		}
		changed, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusPendingCommit, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be declined")
		}

		order.Status = enums.OrderStatusDeclined
		order.DeclinedAt = &now
		order.ExpiresAt = nil

		if err := s.inventory.ReleaseForOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		reason := input.Reason
		if reason == "" {
			reason = "seller declined the order"
		}
		if err := s.refunds.RecordOwed(ctx, tx, order, reason); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderDeclined, order, now))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Expire moves one overdue order to expired. Returns false without error when
// the order changed state concurrently; the sweep simply moves on.
func (s *service) Expire(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPendingCommit {
		return false, nil
	}
	if order.ExpiresAt == nil || order.ExpiresAt.After(cutoff) {
		return false, nil
	}

	now := s.now().UTC()
	expired := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusPendingCommit, map[string]any{
			"status":     enums.OrderStatusExpired,
			"expired_at": now,
			"expires_at": nil,
		})
		if err != nil {
			return err
		}
		if !changed {
			// The seller committed or declined between the scan and this
			// update. Nothing to do.
			return nil
		}
		expired = true

		order.Status = enums.OrderStatusExpired
		order.ExpiredAt = &now
		order.ExpiresAt = nil

		if err := s.inventory.ReleaseForOrder(ctx, tx, order.ID); err != nil {
			return err
		}
		if err := s.refunds.RecordOwed(ctx, tx, order, "commit window elapsed"); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderExpired, order, now))
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

func (s *service) MarkShipped(ctx context.Context, input ShipInput) (*models.Order, error) {
	order, err := s.loadSellerOrder(ctx, input.OrderID, input.SellerID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusShipped {
		return order, nil
	}
	if !CanTransition(order.Status, enums.OrderStatusShipped) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked shipped")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"status":     enums.OrderStatusShipped,
			"shipped_at": now,
		}
		if input.TrackingCode != nil && *input.TrackingCode != "" {
			updates["tracking_code"] = *input.TrackingCode
		}
		changed, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusCommitted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked shipped")
		}

		order.Status = enums.OrderStatusShipped
		order.ShippedAt = &now
		if input.TrackingCode != nil && *input.TrackingCode != "" {
			order.TrackingCode = input.TrackingCode
		}

		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderShipped, order, now))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkShippedByTracking moves a committed order to shipped off the courier's
// first collection scan. The scan stream is at-least-once and unordered, so
// a repeat scan or one that lost the race to a later transition is a no-op.
func (s *service) MarkShippedByTracking(ctx context.Context, input TrackingShipInput) error {
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusShipped || order.Status == enums.OrderStatusDelivered {
		return nil
	}
	if !CanTransition(order.Status, enums.OrderStatusShipped) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked shipped")
	}

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"status":     enums.OrderStatusShipped,
			"shipped_at": now,
		}
		if input.TrackingCode != "" {
			updates["tracking_code"] = input.TrackingCode
		}
		changed, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusCommitted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			// Another scan or the seller got there first.
			return nil
		}

		order.Status = enums.OrderStatusShipped
		order.ShippedAt = &now
		if input.TrackingCode != "" {
			order.TrackingCode = &input.TrackingCode
		}

		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderShipped, order, now))
	})
}

func (s *service) MarkDelivered(ctx context.Context, input DeliverInput) error {
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusDelivered {
		return nil
	}
	if !CanTransition(order.Status, enums.OrderStatusDelivered) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked delivered")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": now,
		}
		// Delivery scans can overtake the shipped scan, so accept either
		// predecessor state.
		changed, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusShipped, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			changed, err = repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusCommitted, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be marked delivered")
		}

		order.Status = enums.OrderStatusDelivered
		order.DeliveredAt = &now

		if err := s.inventory.MarkSoldForOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderDelivered, order, now))
	})
	if err != nil {
		return err
	}

	// Transfer initiation talks to the payment provider, so it runs after
	// the delivery is durable. The payout job retries any that fail here.
	if err := s.transfers.InitiateForOrder(ctx, order.ID); err != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Warn(logCtx, "payout transfer initiation deferred to retry job")
	}
	return nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Order, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusRefunded {
		return order, nil
	}
	if !CanTransition(order.Status, enums.OrderStatusRefunded) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be refunded")
	}

	previous := order.Status
	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.UpdateStatusIf(ctx, order.ID, previous, map[string]any{
			"status":      enums.OrderStatusRefunded,
			"refunded_at": now,
			"expires_at":  nil,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be refunded")
		}

		order.Status = enums.OrderStatusRefunded
		order.RefundedAt = &now
		order.ExpiresAt = nil

		// Copies are only back on the market if the parcel never left.
		if previous == enums.OrderStatusPendingCommit || previous == enums.OrderStatusCommitted {
			if err := s.inventory.ReleaseForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		if err := s.refunds.RecordOwed(ctx, tx, order, input.Reason); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, s.stateEvent(enums.EventOrderRefunded, order, now))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	orders, err := s.repo.FindOrdersBySeller(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller orders")
	}
	return orders, nil
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	orders, err := s.repo.FindOrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return orders, nil
}

func (s *service) loadSellerOrder(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
	}
	return order, nil
}

func (s *service) stateEvent(eventType enums.OutboxEventType, order *models.Order, occurredAt time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		OccurredAt:    occurredAt,
		Data: OrderStateEvent{
			OrderID:          order.ID,
			PaymentReference: order.PaymentReference,
			BuyerID:          order.BuyerID,
			BuyerEmail:       order.BuyerEmail,
			SellerID:         order.SellerID,
			SellerEmail:      order.SellerEmail,
			Status:           order.Status,
			OccurredAt:       occurredAt,
		},
	}
}
