package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/glintbooks/glint-backend/api/routes"
	"github.com/glintbooks/glint-backend/internal/connection"
	"github.com/glintbooks/glint-backend/internal/customers"
	"github.com/glintbooks/glint-backend/internal/jobs"
	"github.com/glintbooks/glint-backend/internal/mandates"
	"github.com/glintbooks/glint-backend/internal/merchants"
	"github.com/glintbooks/glint-backend/internal/payments"
	gcwebhook "github.com/glintbooks/glint-backend/internal/webhooks/gocardless"
	"github.com/glintbooks/glint-backend/pkg/config"
	"github.com/glintbooks/glint-backend/pkg/crypto"
	"github.com/glintbooks/glint-backend/pkg/db"
	"github.com/glintbooks/glint-backend/pkg/gocardless"
	"github.com/glintbooks/glint-backend/pkg/logger"
	"github.com/glintbooks/glint-backend/pkg/metrics"
	"github.com/glintbooks/glint-backend/pkg/migrate"
	"github.com/glintbooks/glint-backend/pkg/redis"
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gcClient, err := gocardless.NewClient(context.Background(), cfg.GoCardless, logg, paymentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build gocardless client", err)
		os.Exit(1)
	}

	tokenKey, err := crypto.DeriveKey(cfg.Security.ServerSecret)
	if err != nil {
		logg.Error(context.Background(), "failed to derive token key", err)
		os.Exit(1)
	}

	merchantsRepo := merchants.NewRepository(dbClient.DB())
	customersRepo := customers.NewRepository(dbClient.DB())
	jobsRepo := jobs.NewRepository(dbClient.DB())
	eventsRepo := gcwebhook.NewEventsRepository(dbClient.DB())

	connectionService, err := connection.NewService(connection.ServiceParams{
		Merchants:      merchantsRepo,
		Provider:       gcClient,
		TokenKey:       tokenKey,
		StateSecret:    []byte(cfg.Security.ServerSecret),
		AllowedDomains: cfg.GoCardless.RedirectAllowList(),
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create connection service", err)
		os.Exit(1)
	}

	mandateService, err := mandates.NewService(mandates.ServiceParams{
		Customers: customersRepo,
		Provider:  gcClient,
		Tokens:    connectionService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create mandate service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Customers: customersRepo,
		Jobs:      jobsRepo,
		Provider:  gcClient,
		Tokens:    connectionService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	webhookService, err := gcwebhook.NewService(gcwebhook.ServiceParams{
		WebhookSecret:     cfg.GoCardless.WebhookSecret,
		TransactionRunner: dbClient,
		Events:            eventsRepo,
		Customers:         customersRepo,
		Jobs:              jobsRepo,
		Provider:          gcClient,
		Tokens:            connectionService,
		Guard:             redisClient,
		GuardTTL:          cfg.Eventing.WebhookIdempotencyTTL,
		Metrics:           paymentMetrics,
		Logger:            logg,
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
		"env":            cfg.App.Env,
		"addr":           addr,
		"gocardless_env": gcClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			connectionService,
			mandateService,
			paymentService,
			webhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
