package orders

import (
	"testing"

	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
)

func TestTransitionGraph(t *testing.T) {
	t.Parallel()

	statuses := []enums.OrderStatus{
		enums.OrderStatusPendingCommit,
		enums.OrderStatusCommitted,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusDeclined,
		enums.OrderStatusExpired,
		enums.OrderStatusRefunded,
	}

	allowed := map[enums.OrderStatus]map[enums.OrderStatus]bool{
		enums.OrderStatusPendingCommit: {
			enums.OrderStatusCommitted: true,
			enums.OrderStatusDeclined:  true,
			enums.OrderStatusExpired:   true,
			enums.OrderStatusRefunded:  true,
		},
		enums.OrderStatusCommitted: {
			enums.OrderStatusShipped:   true,
			enums.OrderStatusDelivered: true,
			enums.OrderStatusRefunded:  true,
		},
		enums.OrderStatusShipped: {
			enums.OrderStatusDelivered: true,
			enums.OrderStatusRefunded:  true,
		},
		enums.OrderStatusExpired: {
			enums.OrderStatusRefunded: true,
		},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	t.Parallel()

	for _, terminal := range []enums.OrderStatus{
		enums.OrderStatusDelivered,
		enums.OrderStatusDeclined,
		enums.OrderStatusRefunded,
	} {
		if !terminal.IsTerminal() {
			t.Errorf("%s should be terminal", terminal)
		}
		for _, to := range []enums.OrderStatus{
			enums.OrderStatusPendingCommit,
			enums.OrderStatusCommitted,
			enums.OrderStatusShipped,
			enums.OrderStatusDelivered,
			enums.OrderStatusDeclined,
			enums.OrderStatusExpired,
			enums.OrderStatusRefunded,
		} {
			if CanTransition(terminal, to) {
				t.Errorf("terminal %s must not transition to %s", terminal, to)
			}
		}
	}
}
