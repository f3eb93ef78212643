package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

type httpClient struct {
	baseURL    string
	apiKey     string
	maxRetries uint64
	http       *http.Client
	logger     *logger.Logger
}

func newHTTPClient(cfg config.CourierConfig, logg *logger.Logger) *httpClient {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &httpClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: uint64(retries),
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logg,
	}
}

func (c *httpClient) QuoteDeliveryFee(ctx context.Context, params QuoteParams) (*Quote, error) {
	c.log(ctx, "request", "quote_delivery_fee", map[string]any{"item_count": params.ItemCount})

	var quote Quote
	if err := c.call(ctx, http.MethodPost, "/v1/quotes", params, &quote); err != nil {
		c.log(ctx, "error", "quote_delivery_fee", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "quote_delivery_fee", map[string]any{"fee": quote.FeeCents})
	return &quote, nil
}

func (c *httpClient) BookShipment(ctx context.Context, params BookingParams) (*Booking, error) {
	c.log(ctx, "request", "book_shipment", map[string]any{"order_id": params.OrderID})

	var booking Booking
	if err := c.call(ctx, http.MethodPost, "/v1/shipments", params, &booking); err != nil {
		c.log(ctx, "error", "book_shipment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "book_shipment", map[string]any{
		"shipment_id":   booking.ShipmentID,
		"tracking_code": booking.TrackingCode,
	})
	return &booking, nil
}

func (c *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.callOnce(ctx, method, path, payload, out)
		if err != nil && pkgerrors.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *httpClient) callOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "courier unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading courier response")
	}

	if resp.StatusCode >= 500 {
		return pkgerrors.New(pkgerrors.CodeDependency, "courier request failed")
	}
	if resp.StatusCode >= 400 {
		return pkgerrors.New(pkgerrors.CodeValidation, "courier rejected the request")
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding courier response")
		}
	}
	return nil
}

func (c *httpClient) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Warn(ctx, fmt.Sprintf("courier %s failed", op))
	default:
		c.logger.Info(ctx, fmt.Sprintf("courier %s", phase))
	}
}
