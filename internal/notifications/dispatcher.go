package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/mailer"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Notification is one outbound message ready for delivery.
type Notification struct {
	Type      enums.NotificationType
	Recipient string
	Subject   string
	Body      string
}

// Dispatcher delivers notifications through the mail gateway with a
// per-recipient fixed-window rate limit backed by Redis, so a burst of order
// events does not flood a single inbox.
type Dispatcher struct {
	mail    mailer.Client
	limiter rateLimiter
	cfg     config.NotificationsConfig
	logg    *logger.Logger
}

// NewDispatcher builds the rate-limited notification gateway.
func NewDispatcher(mail mailer.Client, limiter rateLimiter, cfg config.NotificationsConfig, logg *logger.Logger) (*Dispatcher, error) {
	if mail == nil {
		return nil, fmt.Errorf("mail client required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.RateLimitPerKey <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit settings must be positive")
	}
	return &Dispatcher{
		mail:    mail,
		limiter: limiter,
		cfg:     cfg,
		logg:    logg,
	}, nil
}

// Dispatch sends one notification. Messages over the recipient's rate limit
// are dropped, not queued; delivery is best effort by design of the callers.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.Recipient == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification recipient required")
	}
	if !n.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type")
	}

	scope := "notify:" + n.Recipient
	allowed, count, err := d.limiter.FixedWindowAllow(ctx, scope, int64(d.cfg.RateLimitPerKey), d.cfg.RateLimitWindow)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notification rate check")
	}
	if !allowed {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"recipient": n.Recipient,
			"type":      string(n.Type),
			"count":     count,
		})
		d.logg.Warn(logCtx, "notification dropped, recipient over rate limit")
		return nil
	}

	if err := d.mail.Send(ctx, mailer.Message{
		To:      n.Recipient,
		Subject: n.Subject,
		Body:    n.Body,
	}); err != nil {
		return err
	}

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"recipient": n.Recipient,
		"type":      string(n.Type),
	})
	d.logg.Info(logCtx, "notification delivered")
	return nil
}
