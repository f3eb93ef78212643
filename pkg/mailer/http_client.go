package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

type httpClient struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
	logger  *logger.Logger
}

func newHTTPClient(cfg config.MailerConfig, logg *logger.Logger) *httpClient {
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.FromAddress,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logg,
	}
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c *httpClient) Send(ctx context.Context, msg Message) error {
	body := sendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To}}}},
		From:             emailAddress{Email: c.from},
		Subject:          msg.Subject,
		Content:          []content{{Type: "text/plain", Value: msg.Body}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mailer unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		if c.logger != nil {
			logCtx := c.logger.WithField(ctx, "status", resp.StatusCode)
			c.logger.Warn(logCtx, "mailer send rejected")
		}
		return pkgerrors.New(pkgerrors.CodeDependency, "mailer send failed")
	}
	return nil
}
