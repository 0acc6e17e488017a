package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oakline/marketplace-backend/api/controllers"
	"github.com/oakline/marketplace-backend/api/middleware"
	checkoutsvc "github.com/oakline/marketplace-backend/internal/checkout"
	"github.com/oakline/marketplace-backend/internal/orders"
	"github.com/oakline/marketplace-backend/internal/payments"
	"github.com/oakline/marketplace-backend/internal/vouchers"
	paymentwebhook "github.com/oakline/marketplace-backend/internal/webhooks/payment"
	"github.com/oakline/marketplace-backend/pkg/config"
	"github.com/oakline/marketplace-backend/pkg/db"
	"github.com/oakline/marketplace-backend/pkg/gateway"
	"github.com/oakline/marketplace-backend/pkg/logger"
	"github.com/oakline/marketplace-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              *db.Client
	Redis           *redis.Client
	Gateway         *gateway.Client
	WebhookGuard    *paymentwebhook.IdempotencyGuard
	CheckoutService checkoutsvc.Service
	VoucherService  vouchers.Service
	OrdersService   orders.Service
	PaymentsService payments.Service
	MetricsRegistry *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	logg := deps.Logger

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, logg, readiness))
	})

	if deps.MetricsRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", controllers.PaymentWebhook(deps.PaymentsService, deps.Gateway, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Config.JWT, logg))

		r.Post("/checkout", controllers.Checkout(deps.CheckoutService, logg))
		r.Post("/vouchers/validate", controllers.ValidateVoucher(deps.VoucherService, logg))
		r.Post("/order-items/{itemID}/cancel", controllers.CancelOrderItem(deps.OrdersService, logg))

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/", controllers.OrderDetail(deps.OrdersService, logg))
			r.Post("/receive", controllers.ReceiveOrder(deps.OrdersService, logg))
			r.Post("/refund", controllers.RefundOrder(deps.OrdersService, logg))
			r.With(middleware.RequireRole("seller", logg)).Post("/ship", controllers.ShipOrder(deps.OrdersService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", logg))
			r.Delete("/orders/{orderID}/sellers/{sellerID}", controllers.RemoveSellerFromOrder(deps.OrdersService, logg))
		})
	})

	return r
}
