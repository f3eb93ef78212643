package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookhavenhq/bookhaven-backend/api/controllers"
	ordercontrollers "github.com/bookhavenhq/bookhaven-backend/api/controllers/orders"
	webhookcontrollers "github.com/bookhavenhq/bookhaven-backend/api/controllers/webhooks"
	"github.com/bookhavenhq/bookhaven-backend/api/middleware"
	checkoutsvc "github.com/bookhavenhq/bookhaven-backend/internal/checkout"
	"github.com/bookhavenhq/bookhaven-backend/internal/orders"
	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/redis"
)

// RouterParams carries the wired services the HTTP surface exposes.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           redis.Pinger
	Checkout        *checkoutsvc.Service
	Orders          orders.Service
	PaystackWebhook webhookcontrollers.PaystackWebhookService
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(params.PaystackWebhook, cfg.Paystack, logg))
		r.Post("/courier", webhookcontrollers.CourierWebhook(params.Orders, cfg.Courier, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		r.Post("/checkout", controllers.Checkout(params.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(params.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(params.Orders, logg))
			r.Post("/{orderId}/commit", ordercontrollers.Commit(params.Orders, logg))
			r.Post("/{orderId}/decline", ordercontrollers.Decline(params.Orders, logg))
			r.Post("/{orderId}/ship", ordercontrollers.Ship(params.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		r.Post("/orders/{orderId}/refund", ordercontrollers.Refund(params.Orders, logg))
	})

	return r
}
