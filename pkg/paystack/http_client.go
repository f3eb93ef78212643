package paystack

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
	secretKey  string
	callback   string
	maxRetries uint64
	http       *http.Client
	logger     *logger.Logger
}

func newHTTPClient(cfg config.PaystackConfig, logg *logger.Logger) *httpClient {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &httpClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		callback:   cfg.CallbackURL,
		maxRetries: uint64(retries),
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logg,
	}
}

// apiResponse is the envelope every provider endpoint wraps its payload in.
type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *httpClient) InitializeTransaction(ctx context.Context, params InitializeParams) (*InitializeResult, error) {
	if params.CallbackURL == "" {
		params.CallbackURL = c.callback
	}
	c.log(ctx, "request", "initialize_transaction", map[string]any{
		"reference": params.Reference,
		"amount":    params.AmountCents,
	})

	var result InitializeResult
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", params, &result); err != nil {
		c.log(ctx, "error", "initialize_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "initialize_transaction", map[string]any{"reference": result.Reference})
	return &result, nil
}

func (c *httpClient) VerifyTransaction(ctx context.Context, reference string) (*TransactionResult, error) {
	c.log(ctx, "request", "verify_transaction", map[string]any{"reference": reference})

	var result TransactionResult
	path := "/transaction/verify/" + strings.TrimSpace(reference)
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		c.log(ctx, "error", "verify_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "verify_transaction", map[string]any{
		"reference": result.Reference,
		"status":    result.Status,
	})
	return &result, nil
}

func (c *httpClient) InitiateTransfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	body := struct {
		TransferParams
		Source string `json:"source"`
	}{TransferParams: params, Source: "balance"}

	c.log(ctx, "request", "initiate_transfer", map[string]any{
		"reference": params.Reference,
		"amount":    params.AmountCents,
	})

	var result TransferResult
	if err := c.call(ctx, http.MethodPost, "/transfer", body, &result); err != nil {
		c.log(ctx, "error", "initiate_transfer", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "initiate_transfer", map[string]any{
		"reference": result.Reference,
		"status":    result.Status,
	})
	return &result, nil
}

func (c *httpClient) SubmitRefund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	c.log(ctx, "request", "submit_refund", map[string]any{
		"transaction": params.TransactionReference,
		"amount":      params.AmountCents,
	})

	var result RefundResult
	if err := c.call(ctx, http.MethodPost, "/refund", params, &result); err != nil {
		c.log(ctx, "error", "submit_refund", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "submit_refund", map[string]any{"status": result.Status})
	return &result, nil
}

// call issues one provider request with retry on transport and 5xx failures.
// 4xx responses are terminal and surface immediately.
func (c *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = encoded
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
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading provider response")
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), err, "decoding provider response")
	}

	if resp.StatusCode >= 400 || !envelope.Status {
		return pkgerrors.New(codeForStatus(resp.StatusCode), providerMessage(envelope.Message))
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding provider payload")
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
		c.logger.Warn(ctx, fmt.Sprintf("paystack %s failed", op))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paystack %s", phase))
	}
}

func providerMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "payment provider rejected the request"
	}
	return "payment provider: " + msg
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeDependency
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
