package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bookhavenhq/bookhaven-backend/api/routes"
	"github.com/bookhavenhq/bookhaven-backend/internal/checkout"
	"github.com/bookhavenhq/bookhaven-backend/internal/inventory"
	"github.com/bookhavenhq/bookhaven-backend/internal/orders"
	"github.com/bookhavenhq/bookhaven-backend/internal/payouts"
	"github.com/bookhavenhq/bookhaven-backend/internal/refunds"
	"github.com/bookhavenhq/bookhaven-backend/internal/settlement"
	paystackwebhook "github.com/bookhavenhq/bookhaven-backend/internal/webhooks/paystack"
	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/courier"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/migrate"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
	"github.com/bookhavenhq/bookhaven-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paystackClient, err := paystack.New(context.Background(), cfg.Paystack, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	courierClient, err := courier.New(context.Background(), cfg.Courier, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create courier client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	inventoryService, err := inventory.NewService(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	calculator, err := settlement.NewCalculator(cfg.Commission.PolicyVersion)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement calculator", err)
		os.Exit(1)
	}

	refundsService, err := refunds.NewService(refunds.ServiceParams{
		Repo:     refunds.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxService,
		Provider: paystackClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	payoutsService, err := payouts.NewService(payouts.ServiceParams{
		Repo:     payouts.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxService,
		Provider: paystackClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Outbox:    outboxService,
		Inventory: inventoryService,
		Refunds:   refundsService,
		Payouts:   payoutsService,
		Transfers: payoutsService,
		Courier:   courierClient,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		OrderRepo:    ordersRepo,
		Books:        checkout.NewBookRepository(dbClient.DB()),
		Tx:           dbClient,
		Outbox:       outboxService,
		Inventory:    inventoryService,
		Calculator:   calculator,
		Payments:     paystackClient,
		Courier:      courierClient,
		Logger:       logg,
		CommitWindow: cfg.Sweeper.CommitWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		Settler:  checkoutService,
		Payouts:  payoutsService,
		Refunds:  refundsService,
		Verifier: paystackClient,
		Dedupe:   redisClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Checkout:        checkoutService,
			Orders:          ordersService,
			PaystackWebhook: webhookService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
