package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookhavenhq/bookhaven-backend/internal/cron"
	"github.com/bookhavenhq/bookhaven-backend/internal/inventory"
	"github.com/bookhavenhq/bookhaven-backend/internal/orders"
	"github.com/bookhavenhq/bookhaven-backend/internal/payouts"
	"github.com/bookhavenhq/bookhaven-backend/internal/refunds"
	"github.com/bookhavenhq/bookhaven-backend/pkg/config"
	"github.com/bookhavenhq/bookhaven-backend/pkg/courier"
	"github.com/bookhavenhq/bookhaven-backend/pkg/db"
	"github.com/bookhavenhq/bookhaven-backend/pkg/logger"
	"github.com/bookhavenhq/bookhaven-backend/pkg/metrics"
	"github.com/bookhavenhq/bookhaven-backend/pkg/migrate"
	"github.com/bookhavenhq/bookhaven-backend/pkg/outbox"
	"github.com/bookhavenhq/bookhaven-backend/pkg/paystack"
	"github.com/bookhavenhq/bookhaven-backend/pkg/redis"
)

const lockKeyFormat = "bh:sweeper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
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

	expiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:     logg,
		Reader:     ordersRepo,
		Expirer:    ordersService,
		BatchLimit: cfg.Sweeper.BatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order expiry job", err)
		os.Exit(1)
	}

	refundJob, err := cron.NewRefundSubmitJob(logg, refundsService, cfg.Sweeper.BatchLimit)
	if err != nil {
		logg.Error(context.Background(), "failed to create refund submit job", err)
		os.Exit(1)
	}

	payoutJob, err := cron.NewPayoutReconcileJob(logg, payoutsService, cfg.Sweeper.BatchLimit)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout reconcile job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Sweeper.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, refundJob, payoutJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting sweeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
