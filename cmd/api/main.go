package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/oakline/marketplace-backend/api/routes"
	"github.com/oakline/marketplace-backend/internal/cart"
	checkoutsvc "github.com/oakline/marketplace-backend/internal/checkout"
	"github.com/oakline/marketplace-backend/internal/checkout/reservation"
	"github.com/oakline/marketplace-backend/internal/orders"
	"github.com/oakline/marketplace-backend/internal/payments"
	"github.com/oakline/marketplace-backend/internal/settings"
	"github.com/oakline/marketplace-backend/internal/vouchers"
	paymentwebhook "github.com/oakline/marketplace-backend/internal/webhooks/payment"
	"github.com/oakline/marketplace-backend/pkg/config"
	"github.com/oakline/marketplace-backend/pkg/db"
	"github.com/oakline/marketplace-backend/pkg/gateway"
	"github.com/oakline/marketplace-backend/pkg/logger"
	"github.com/oakline/marketplace-backend/pkg/metrics"
	"github.com/oakline/marketplace-backend/pkg/migrate"
	"github.com/oakline/marketplace-backend/pkg/outbox"
	"github.com/oakline/marketplace-backend/pkg/redis"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	cartRepo := cart.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	voucherRepo := vouchers.NewRepository(dbClient.DB())
	voucherService := vouchers.NewService(voucherRepo, cartRepo)
	settingsService := settings.NewService(dbClient.DB(), redisClient, cfg.Checkout.SettingsCacheTTL, logg)
	reservationManager := reservation.NewManager(cfg.Checkout.LockWaitTimeout)

	checkoutService, err := checkoutsvc.NewService(
		dbClient,
		cartRepo,
		ordersRepo,
		voucherRepo,
		voucherService,
		settingsService,
		reservationManager,
		gatewayClient,
		outboxService,
		checkoutMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		dbClient,
		ordersRepo,
		voucherRepo,
		cartRepo,
		reservationManager,
		gatewayClient,
		outboxService,
		checkoutMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(dbClient, ordersRepo, reservationManager, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	webhookGuard, err := paymentwebhook.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookGuardTTL, "payment-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
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
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Gateway:         gatewayClient,
			WebhookGuard:    webhookGuard,
			CheckoutService: checkoutService,
			VoucherService:  voucherService,
			OrdersService:   ordersService,
			PaymentsService: paymentsService,
			MetricsRegistry: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
