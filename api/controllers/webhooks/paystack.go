package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bookhavenhq/bookhaven-backend/api/responses"
	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
)

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error
}

// PaystackWebhook receives provider charge, transfer and refund events. The
// signature is checked against the raw body before anything is parsed.
func PaystackWebhook(svc PaystackWebhookService, cfg config.PaystackConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(paystack.SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !paystack.VerifySignature(cfg.WebhookSecret, payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		// A signed but malformed body will never parse on retry either, so
		// acknowledge it instead of making the provider redeliver forever.
		var event paystack.WebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			if logg != nil {
				logg.Warn(ctx, "discarding malformed paystack payload")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithField(ctx, "event", event.Event)
			logg.Info(logCtx, "paystack event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
