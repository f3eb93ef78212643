package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bookhavenhq/bookhaven-backend/api/middleware"
	"github.com/bookhavenhq/bookhaven-backend/api/responses"
	"github.com/bookhavenhq/bookhaven-backend/api/validators"
	internalorders "github.com/bookhavenhq/bookhaven-backend/internal/orders"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
	"github.com/bookhavenhq/bookhaven-backend/pkg/enums"
	pkgerrors "github.com/bookhavenhq/bookhaven-backend/pkg/errors"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/types"
)

type orderView struct {
	ID               uuid.UUID         `json:"id"`
	PaymentReference string            `json:"payment_reference"`
	BuyerID          uuid.UUID         `json:"buyer_id"`
	SellerID         uuid.UUID         `json:"seller_id"`
	Currency         enums.Currency    `json:"currency"`
	Status           enums.OrderStatus `json:"status"`
	ItemTotalCents   int               `json:"item_total_cents"`
	DeliveryFeeCents int               `json:"delivery_fee_cents"`
	TotalCents       int               `json:"total_cents"`
	CommissionCents  int               `json:"commission_cents"`
	SellerNetCents   int               `json:"seller_net_cents"`
	ShippingAddress  *types.Address    `json:"shipping_address,omitempty"`
	TrackingCode     *string           `json:"tracking_code,omitempty"`
	DeclineReason    *string           `json:"decline_reason,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	CommittedAt      *time.Time        `json:"committed_at,omitempty"`
	ShippedAt        *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Items            []orderItemView   `json:"items,omitempty"`
}

type orderItemView struct {
	BookID     uuid.UUID `json:"book_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	PriceCents int       `json:"price_cents"`
}

func toOrderView(order models.Order) orderView {
	view := orderView{
		ID:               order.ID,
		PaymentReference: order.PaymentReference,
		BuyerID:          order.BuyerID,
		SellerID:         order.SellerID,
		Currency:         order.Currency,
		Status:           order.Status,
		ItemTotalCents:   order.ItemTotalCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		TotalCents:       order.TotalCents,
		CommissionCents:  order.CommissionCents,
		SellerNetCents:   order.SellerNetCents,
		ShippingAddress:  order.ShippingAddress,
		TrackingCode:     order.TrackingCode,
		DeclineReason:    order.DeclineReason,
		ExpiresAt:        order.ExpiresAt,
		CommittedAt:      order.CommittedAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CreatedAt:        order.CreatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, orderItemView{
			BookID:     item.BookID,
			Title:      item.Title,
			Author:     item.Author,
			PriceCents: item.PriceCents,
		})
	}
	return view
}

func toOrderViews(orders []models.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	return views
}

// List returns the caller's orders from the buyer or seller perspective.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		role := strings.TrimSpace(r.URL.Query().Get("role"))
		if role == "" {
			role = "buyer"
		}

		var (
			list []models.Order
			err  error
		)
		switch role {
		case "buyer":
			list, err = svc.ListByBuyer(r.Context(), userID)
		case "seller":
			list, err = svc.ListBySeller(r.Context(), userID)
		default:
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller"))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderViews(list))
	}
}

// Detail returns a single order after checking the caller participates in it.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.BuyerID != userID && order.SellerID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user"))
			return
		}

		responses.WriteSuccess(w, toOrderView(*order))
	}
}

// Commit records the seller's acceptance of a pending order.
func Commit(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		sellerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Commit(r.Context(), internalorders.CommitInput{
			OrderID:  orderID,
			SellerID: sellerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderView(*order))
	}
}

type declineRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Decline records the seller's rejection of a pending order.
func Decline(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		sellerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req declineRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Decline(r.Context(), internalorders.DeclineInput{
			OrderID:  orderID,
			SellerID: sellerID,
			Reason:   req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderView(*order))
	}
}

type shipRequest struct {
	TrackingCode *string `json:"tracking_code,omitempty" validate:"omitempty,max=100"`
}

// Ship marks a committed order as handed to the courier.
func Ship(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		sellerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req shipRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.MarkShipped(r.Context(), internalorders.ShipInput{
			OrderID:      orderID,
			SellerID:     sellerID,
			TrackingCode: req.TrackingCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderView(*order))
	}
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Refund is the support override that closes an order and owes the buyer a
// full refund from any pre-delivery state.
func Refund(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actorID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Refund(r.Context(), internalorders.RefundInput{
			OrderID:     orderID,
			Reason:      req.Reason,
			ActorUserID: actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderView(*order))
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
