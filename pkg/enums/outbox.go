package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregatePayout       OutboxAggregateType = "payout"
	AggregateRefund       OutboxAggregateType = "refund"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayout,
	AggregateRefund,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderCommitted    OutboxEventType = "order_committed"
	EventOrderDeclined     OutboxEventType = "order_declined"
	EventOrderExpired      OutboxEventType = "order_expired"
	EventOrderShipped      OutboxEventType = "order_shipped"
	EventOrderDelivered    OutboxEventType = "order_delivered"
	EventOrderRefunded     OutboxEventType = "order_refunded"
	EventPayoutRecorded    OutboxEventType = "payout_recorded"
	EventPayoutCompleted   OutboxEventType = "payout_completed"
	EventPayoutFailed      OutboxEventType = "payout_failed"
	EventRefundOwed        OutboxEventType = "refund_owed"
	EventRefundCompleted   OutboxEventType = "refund_completed"
	EventBookingFailed     OutboxEventType = "courier_booking_failed"
	EventNotificationQueue OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCommitted,
	EventOrderDeclined,
	EventOrderExpired,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderRefunded,
	EventPayoutRecorded,
	EventPayoutCompleted,
	EventPayoutFailed,
	EventRefundOwed,
	EventRefundCompleted,
	EventBookingFailed,
	EventNotificationQueue,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
