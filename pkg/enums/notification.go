package enums

import "fmt"

// NotificationType classifies outbound messages to buyers and sellers.
type NotificationType string

const (
	NotificationTypeOrderAlert    NotificationType = "order_alert"
	NotificationTypeSellerNudge   NotificationType = "seller_nudge"
	NotificationTypeRefundAlert   NotificationType = "refund_alert"
	NotificationTypePayoutAlert   NotificationType = "payout_alert"
	NotificationTypeShippingAlert NotificationType = "shipping_alert"
	NotificationTypeOpsAlert      NotificationType = "ops_alert"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderAlert,
	NotificationTypeSellerNudge,
	NotificationTypeRefundAlert,
	NotificationTypePayoutAlert,
	NotificationTypeShippingAlert,
	NotificationTypeOpsAlert,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
