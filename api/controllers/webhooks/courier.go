package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/api/responses"
	internalorders "github.com/bookhavenhq/bookhaven-backend/internal/orders"
	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
)

const courierSignatureHeader = "x-courier-signature"

// Tracking statuses the courier reports back.
const (
	courierStatusCollected = "collected"
	courierStatusDelivered = "delivered"
	courierStatusInTransit = "in_transit"
)

type deliveryConfirmer interface {
	MarkShippedByTracking(ctx context.Context, input internalorders.TrackingShipInput) error
	MarkDelivered(ctx context.Context, input internalorders.DeliverInput) error
}

type courierTrackingEvent struct {
	ShipmentID   string    `json:"shipment_id"`
	OrderID      uuid.UUID `json:"order_id"`
	TrackingCode string    `json:"tracking_code"`
	Status       string    `json:"status"`
}

// CourierWebhook receives tracking callbacks from the delivery provider.
// The first collected scan moves the order to shipped and the delivered
// scan finalizes it; other intermediate scans are logged and acknowledged.
func CourierWebhook(svc deliveryConfirmer, cfg config.CourierConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(courierSignatureHeader)
		if !validCourierSignature(payload, cfg.APIKey, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid courier signature"))
			return
		}

		var event courierTrackingEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		if event.OrderID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}

		logCtx := ctx
		if logg != nil {
			logCtx = logg.WithFields(ctx, map[string]any{
				"order_id":      event.OrderID.String(),
				"shipment_id":   event.ShipmentID,
				"track_status":  event.Status,
				"tracking_code": event.TrackingCode,
			})
		}

		switch event.Status {
		case courierStatusCollected:
			if err := svc.MarkShippedByTracking(ctx, internalorders.TrackingShipInput{OrderID: event.OrderID, TrackingCode: event.TrackingCode}); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logg.Info(logCtx, "collection scan moved order to shipped")
			}
		case courierStatusDelivered:
			if err := svc.MarkDelivered(ctx, internalorders.DeliverInput{OrderID: event.OrderID}); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logg.Info(logCtx, "delivery confirmed by courier")
			}
		default:
			if logg != nil {
				logg.Info(logCtx, "courier scan acknowledged")
			}
		}

		responses.WriteSuccess(w, nil)
	}
}

func validCourierSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
