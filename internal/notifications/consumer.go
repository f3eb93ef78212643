package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox/idempotency"
)

const orderNotificationConsumer = "order-notifications"

type dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Consumer watches the order event stream and turns lifecycle transitions
// into outbound notifications. Buyer and seller addresses are snapshotted
// onto the events at checkout, so no user directory lookup happens here;
// settlement and booking alerts still go to the ops inbox.
type Consumer struct {
	dispatch     dispatcher
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	cfg          config.NotificationsConfig
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(dispatch dispatcher, subscription *pubsub.Subscriber, manager *idempotency.Manager, cfg config.NotificationsConfig, logg *logger.Logger) (*Consumer, error) {
	if dispatch == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("order subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatch:     dispatch,
		subscription: subscription,
		idempotency:  manager,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	rawType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": rawType,
	})

	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil {
		c.logg.Info(logCtx, "skipping unrecognized event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notifications, err := c.build(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	if len(notifications) == 0 {
		return processResult{ack: true}
	}

	for _, notification := range notifications {
		if err := c.dispatch.Dispatch(ctx, notification); err != nil {
			c.logg.Error(logCtx, "notification dispatch failed", err)
			_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
			return processResult{nack: true}
		}
	}
	return processResult{ack: true}
}

type orderEventPayload struct {
	OrderID          uuid.UUID `json:"orderId"`
	PaymentReference string    `json:"paymentReference"`
	BuyerID          uuid.UUID `json:"buyerId"`
	BuyerEmail       string    `json:"buyerEmail"`
	SellerID         uuid.UUID `json:"sellerId"`
	SellerEmail      string    `json:"sellerEmail"`
	Status           string    `json:"status"`
}

type payoutEventPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	SellerID    uuid.UUID `json:"sellerId"`
	AmountCents int       `json:"amountCents"`
	Status      string    `json:"status"`
}

type refundEventPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	BuyerID     uuid.UUID `json:"buyerId"`
	AmountCents int       `json:"amountCents"`
	Reason      string    `json:"reason"`
}

type bookingFailedPayload struct {
	OrderID  uuid.UUID `json:"orderId"`
	SellerID uuid.UUID `json:"sellerId"`
	Reason   string    `json:"reason"`
}

// recipient falls back to the ops inbox when an event predates the address
// snapshot and carries no email.
func (c *Consumer) recipient(email string) string {
	if email == "" {
		return c.cfg.OpsEmail
	}
	return email
}

func (c *Consumer) build(eventType enums.OutboxEventType, data json.RawMessage) ([]Notification, error) {
	switch eventType {
	case enums.EventOrderCreated:
		var payload orderEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeOrderAlert,
				Recipient: c.recipient(payload.BuyerEmail),
				Subject:   "Your order is pending seller confirmation",
				Body:      fmt.Sprintf("Order %s is waiting for the seller to confirm. We will let you know as soon as they do.", payload.OrderID),
			},
			{
				Type:      enums.NotificationTypeSellerNudge,
				Recipient: c.recipient(payload.SellerEmail),
				Subject:   "Action required: new order awaiting commitment",
				Body:      fmt.Sprintf("You have a new order %s pending commitment. The commit window is running.", payload.OrderID),
			},
		}, nil
	case enums.EventOrderCommitted:
		var payload orderEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeOrderAlert,
				Recipient: c.recipient(payload.BuyerEmail),
				Subject:   "Your order is confirmed",
				Body:      fmt.Sprintf("The seller committed order %s. Expect shipment soon.", payload.OrderID),
			},
			{
				Type:      enums.NotificationTypeShippingAlert,
				Recipient: c.recipient(payload.SellerEmail),
				Subject:   "Courier pickup scheduled",
				Body:      fmt.Sprintf("You committed order %s. A courier pickup has been scheduled; have the parcel ready.", payload.OrderID),
			},
		}, nil
	case enums.EventOrderShipped:
		var payload orderEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeShippingAlert,
				Recipient: c.recipient(payload.BuyerEmail),
				Subject:   "Your order is on its way",
				Body:      fmt.Sprintf("Order %s has been collected by the courier.", payload.OrderID),
			},
		}, nil
	case enums.EventOrderDelivered:
		var payload orderEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeShippingAlert,
				Recipient: c.recipient(payload.BuyerEmail),
				Subject:   "Your order was delivered",
				Body:      fmt.Sprintf("Order %s was delivered. Enjoy your books.", payload.OrderID),
			},
			{
				Type:      enums.NotificationTypeShippingAlert,
				Recipient: c.recipient(payload.SellerEmail),
				Subject:   "Order delivered, payout on the way",
				Body:      fmt.Sprintf("Order %s reached the buyer. Your payout is being processed.", payload.OrderID),
			},
		}, nil
	case enums.EventOrderDeclined, enums.EventOrderExpired, enums.EventOrderRefunded:
		var payload orderEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeRefundAlert,
				Recipient: c.recipient(payload.BuyerEmail),
				Subject:   "Order closed, refund owed",
				Body:      fmt.Sprintf("Order %s ended in %s. You are owed a full refund.", payload.OrderID, payload.Status),
			},
			{
				Type:      enums.NotificationTypeOrderAlert,
				Recipient: c.recipient(payload.SellerEmail),
				Subject:   fmt.Sprintf("Order %s closed", payload.Status),
				Body:      fmt.Sprintf("Order %s is now %s. Its copies are no longer held for this order.", payload.OrderID, payload.Status),
			},
		}, nil
	case enums.EventRefundOwed, enums.EventRefundCompleted:
		var payload refundEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		subject := "Refund recorded"
		if eventType == enums.EventRefundCompleted {
			subject = "Refund completed"
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeRefundAlert,
				Recipient: c.cfg.OpsEmail,
				Subject:   subject,
				Body:      fmt.Sprintf("Refund of %d for order %s (buyer %s). %s", payload.AmountCents, payload.OrderID, payload.BuyerID, payload.Reason),
			},
		}, nil
	case enums.EventPayoutRecorded, enums.EventPayoutCompleted, enums.EventPayoutFailed:
		var payload payoutEventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypePayoutAlert,
				Recipient: c.cfg.OpsEmail,
				Subject:   fmt.Sprintf("Payout update for order %s", payload.OrderID),
				Body:      fmt.Sprintf("Payout of %d to seller %s on order %s: %s.", payload.AmountCents, payload.SellerID, payload.OrderID, string(eventType)),
			},
		}, nil
	case enums.EventBookingFailed:
		var payload bookingFailedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return []Notification{
			{
				Type:      enums.NotificationTypeOpsAlert,
				Recipient: c.cfg.OpsEmail,
				Subject:   "Courier booking failed",
				Body:      fmt.Sprintf("Courier booking failed for committed order %s (seller %s): %s. Book manually.", payload.OrderID, payload.SellerID, payload.Reason),
			},
		}, nil
	default:
		return nil, nil
	}
}
