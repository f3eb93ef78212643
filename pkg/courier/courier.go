package courier

import (
	"context"
	"errors"
	"strings"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/types"
)

var (
	errAPIKeyRequired  = errors.New("courier api key is required")
	errBaseURLRequired = errors.New("courier base url is required")
	errLoggerRequired  = errors.New("courier logger is required")
)

// Client exposes the delivery provider operations the platform depends on.
type Client interface {
	QuoteDeliveryFee(ctx context.Context, params QuoteParams) (*Quote, error)
	BookShipment(ctx context.Context, params BookingParams) (*Booking, error)
}

// QuoteParams prices a delivery before checkout completes.
type QuoteParams struct {
	Origin      types.Address `json:"origin"`
	Destination types.Address `json:"destination"`
	ItemCount   int           `json:"item_count"`
}

// Quote is the provider's delivery price for a route.
type Quote struct {
	FeeCents int    `json:"fee"`
	Currency string `json:"currency"`
	QuoteID  string `json:"quote_id"`
}

// BookingParams reserves a pickup after a seller commits.
type BookingParams struct {
	OrderID     string        `json:"order_id"`
	Origin      types.Address `json:"origin"`
	Destination types.Address `json:"destination"`
	ItemCount   int           `json:"item_count"`
}

// Booking is the provider's confirmation of a reserved pickup.
type Booking struct {
	ShipmentID   string `json:"shipment_id"`
	TrackingCode string `json:"tracking_code"`
	Status       string `json:"status"`
}

// Tracking statuses delivered through the courier's webhook.
const (
	TrackingStatusPickedUp  = "picked_up"
	TrackingStatusInTransit = "in_transit"
	TrackingStatusDelivered = "delivered"
)

// New selects the real or simulated client based on configuration.
func New(ctx context.Context, cfg config.CourierConfig, logg *logger.Logger) (Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if cfg.Simulated {
		logg.Info(ctx, "courier client running in simulated mode")
		return NewSimulated(), nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}
	return newHTTPClient(cfg, logg), nil
}
