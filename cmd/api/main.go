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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabzclean/fabzclean-backend/api/routes"
	"github.com/fabzclean/fabzclean-backend/internal/audit"
	"github.com/fabzclean/fabzclean-backend/internal/credits"
	"github.com/fabzclean/fabzclean-backend/internal/customers"
	"github.com/fabzclean/fabzclean-backend/internal/ledger"
	"github.com/fabzclean/fabzclean-backend/internal/orders"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/metrics"
	"github.com/fabzclean/fabzclean-backend/pkg/migrate"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	conn := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	customerRepo := customers.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)

	auditService, err := audit.NewService(audit.NewRepository(conn), outboxService, logg)
	requireService(logg, "audit", err)

	engine, err := credits.NewEngine(customerRepo, ledgerRepo, outboxService)
	requireService(logg, "ledger engine", err)

	creditsService, err := credits.NewService(credits.ServiceParams{
		Tx:        dbClient,
		Engine:    engine,
		Customers: customerRepo,
		Ledger:    ledgerRepo,
		Audit:     auditService,
		Outbox:    outboxService,
		Metrics:   ledgerMetrics,
		Logger:    logg,
		Config:    cfg.Ledger,
	})
	requireService(logg, "credits", err)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Customers: customerRepo,
		Engine:    engine,
		Tx:        dbClient,
		Outbox:    outboxService,
		Audit:     auditService,
		Metrics:   ledgerMetrics,
		Logger:    logg,
		Config:    cfg.Ledger,
	})
	requireService(logg, "orders", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			creditsService,
			ordersService,
			auditService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server stopped")
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(context.Background(), "service", name), "failed to create service", err)
	os.Exit(1)
}
