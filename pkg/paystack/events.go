package paystack

import "encoding/json"

// Webhook event names the reconciler recognizes.
const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventTransferSuccess = "transfer.success"
	EventTransferFailed  = "transfer.failed"
	EventRefundProcessed = "refund.processed"
	EventRefundFailed    = "refund.failed"
)

// WebhookEvent is the outer shape of every provider webhook body.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChargeEventData is the payload of charge.* events.
type ChargeEventData struct {
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	AmountCents int             `json:"amount"`
	Currency    string          `json:"currency"`
	PaidAt      string          `json:"paid_at"`
	Metadata    json.RawMessage `json:"metadata"`
	Customer    struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// TransferEventData is the payload of transfer.* events.
type TransferEventData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	AmountCents  int    `json:"amount"`
	Reason       string `json:"reason"`
}

// RefundEventData is the payload of refund.* events.
type RefundEventData struct {
	ID                   int64  `json:"id"`
	TransactionReference string `json:"transaction_reference"`
	Status               string `json:"status"`
	AmountCents          int    `json:"amount"`
}
