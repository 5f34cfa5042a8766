package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glintbooks/glint-backend/api/controllers"
	"github.com/glintbooks/glint-backend/api/middleware"
	"github.com/glintbooks/glint-backend/internal/connection"
	"github.com/glintbooks/glint-backend/internal/mandates"
	"github.com/glintbooks/glint-backend/internal/payments"
	gcwebhook "github.com/glintbooks/glint-backend/internal/webhooks/gocardless"
	"github.com/glintbooks/glint-backend/pkg/config"
	"github.com/glintbooks/glint-backend/pkg/db"
	"github.com/glintbooks/glint-backend/pkg/logger"
	"github.com/glintbooks/glint-backend/pkg/redis"
)

// collectPolicy bounds how fast a single merchant can submit collections.
var collectPolicy = middleware.RateLimitPolicy{
	Name:   "collect_payment",
	Limit:  30,
	Window: time.Minute,
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	connectionService *connection.Service,
	mandateService *mandates.Service,
	paymentService *payments.Service,
	webhookService *gcwebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// The webhook endpoint authenticates by signature, not bearer token.
	r.Post("/gocardless-webhook", controllers.GoCardlessWebhook(webhookService, logg))
	r.Get("/gocardless-webhook", controllers.GoCardlessWebhookLiveness())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/gocardless-connect", controllers.GoCardlessConnect(connectionService, logg))
		r.Post("/gocardless-connect/callback", controllers.GoCardlessConnectCallback(connectionService, logg))
		r.Get("/gocardless-connection", controllers.GoCardlessConnection(connectionService, logg))
		r.Post("/gocardless-disconnect", controllers.GoCardlessDisconnect(connectionService, logg))

		r.Post("/gocardless-setup-mandate", controllers.GoCardlessSetupMandate(mandateService, logg))
		r.Post("/gocardless-mandate-sent", controllers.GoCardlessMandateSent(mandateService, logg))
		r.Post("/gocardless-check-mandate", controllers.GoCardlessCheckMandate(mandateService, logg))

		r.With(middleware.RateLimit(collectPolicy, redisClient, logg)).
			Post("/gocardless-collect-payment", controllers.GoCardlessCollectPayment(paymentService, logg))
	})

	return r
}
