package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

var (
	errSecretKeyRequired     = errors.New("paystack secret key is required")
	errWebhookSecretRequired = errors.New("paystack webhook secret is required")
	errLoggerRequired        = errors.New("paystack logger is required")
)

// Client exposes the payment provider operations the platform depends on.
type Client interface {
	InitializeTransaction(ctx context.Context, params InitializeParams) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*TransactionResult, error)
	InitiateTransfer(ctx context.Context, params TransferParams) (*TransferResult, error)
	SubmitRefund(ctx context.Context, params RefundParams) (*RefundResult, error)
}

// InitializeParams starts a hosted checkout session.
type InitializeParams struct {
	Email       string         `json:"email"`
	AmountCents int            `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// InitializeResult carries the redirect handle for a started session.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransactionResult is the provider's view of a charge.
type TransactionResult struct {
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	AmountCents int             `json:"amount"`
	Currency    string          `json:"currency"`
	PaidAt      string          `json:"paid_at"`
	Metadata    json.RawMessage `json:"metadata"`
}

// TransferParams moves money to a seller.
type TransferParams struct {
	AmountCents int    `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Recipient   string `json:"recipient"`
	Reference   string `json:"reference,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// TransferResult is the provider's view of an outbound transfer.
type TransferResult struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	AmountCents  int    `json:"amount"`
}

// RefundParams returns money to a buyer for a captured charge.
type RefundParams struct {
	TransactionReference string `json:"transaction"`
	AmountCents          int    `json:"amount,omitempty"`
	MerchantNote         string `json:"merchant_note,omitempty"`
}

// RefundResult is the provider's view of a submitted refund.
type RefundResult struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	AmountCents int    `json:"amount"`
}

// Transaction statuses returned by verify.
const (
	TransactionStatusSuccess   = "success"
	TransactionStatusFailed    = "failed"
	TransactionStatusAbandoned = "abandoned"
)

// New selects the real or simulated client based on configuration.
func New(ctx context.Context, cfg config.PaystackConfig, logg *logger.Logger) (Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if cfg.Simulated {
		logg.Info(ctx, "paystack client running in simulated mode")
		return NewSimulated(), nil
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errSecretKeyRequired
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errWebhookSecretRequired
	}
	return newHTTPClient(cfg, logg), nil
}
