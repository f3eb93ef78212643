package enums

import "fmt"

// OrderStatus tracks the lifecycle of a seller-scoped order.
type OrderStatus string

const (
	OrderStatusPendingCommit OrderStatus = "pending_commit"
	OrderStatusCommitted     OrderStatus = "committed"
	OrderStatusShipped       OrderStatus = "shipped"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusDeclined      OrderStatus = "declined"
	OrderStatusExpired       OrderStatus = "expired"
	OrderStatusRefunded      OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingCommit,
	OrderStatusCommitted,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusDeclined,
	OrderStatusExpired,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from the status.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusDelivered, OrderStatusDeclined, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
