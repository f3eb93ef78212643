package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/api/middleware"
	"github.com/bookhavenhq/bookhaven-backend/api/responses"
	"github.com/bookhavenhq/bookhaven-backend/api/validators"
	"github.com/bookhavenhq/bookhaven-backend/internal/checkout"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/types"
)

type checkoutRequest struct {
	Email           string        `json:"email" validate:"required,email"`
	BookIDs         []uuid.UUID   `json:"book_ids" validate:"required,min=1"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	Currency        string        `json:"currency,omitempty"`
}

type checkoutResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	ItemTotalCents   int    `json:"item_total_cents"`
	DeliveryFeeCents int    `json:"delivery_fee_cents"`
	TotalCents       int    `json:"total_cents"`
}

// Checkout opens a hosted payment session for the buyer's cart.
func Checkout(svc *checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Start(r.Context(), checkout.StartInput{
			BuyerID:         buyerID,
			Email:           req.Email,
			BookIDs:         req.BookIDs,
			ShippingAddress: req.ShippingAddress,
			Currency:        enums.Currency(req.Currency),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Reference:        session.Reference,
			AuthorizationURL: session.AuthorizationURL,
			ItemTotalCents:   session.ItemTotalCents,
			DeliveryFeeCents: session.DeliveryFeeCents,
			TotalCents:       session.TotalCents,
		})
	}
}
