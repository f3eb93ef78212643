package mailer

import (
	"context"
	"errors"
	"strings"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("mailer api key is required")
	errLoggerRequired = errors.New("mailer logger is required")
)

// Client delivers outbound messages to buyers and sellers.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// New selects the real or simulated client based on configuration.
func New(ctx context.Context, cfg config.MailerConfig, logg *logger.Logger) (Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if cfg.Simulated {
		logg.Info(ctx, "mailer client running in simulated mode")
		return NewSimulated(), nil
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	return newHTTPClient(cfg, logg), nil
}
