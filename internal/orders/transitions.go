package orders

import "github.com/bookhavenhq/bookhaven-backend/pkg/enums"

// allowedTransitions is the full lifecycle graph. Delivery confirmations can
// arrive before the shipped scan, so committed orders may jump straight to
// delivered.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingCommit: {
		enums.OrderStatusCommitted,
		enums.OrderStatusDeclined,
		enums.OrderStatusExpired,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusCommitted: {
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusExpired: {
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
