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

	"github.com/angelmondragon/packfinderz-finance/api/controllers"
	"github.com/angelmondragon/packfinderz-finance/api/routes"
	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/payouts"
	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/internal/refunds"
	"github.com/angelmondragon/packfinderz-finance/internal/settlements"
	"github.com/angelmondragon/packfinderz-finance/internal/summary"
	"github.com/angelmondragon/packfinderz-finance/internal/vendorlock"
	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/metrics"
	"github.com/angelmondragon/packfinderz-finance/pkg/migrate"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/redis"
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
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.IsSQLite(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.AutoRun(context.Background(), cfg, logg, dbClient); err != nil {
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
	if dbStats, err := dbClient.StatsCollector(); err == nil {
		registry.MustRegister(dbStats)
	}
	financeMetrics := metrics.NewFinanceMetrics(registry)

	locker, err := newVendorLocker(cfg, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor locker", err)
		os.Exit(1)
	}

	services, err := buildServices(cfg, logg, dbClient, redisClient, locker, financeMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":               cfg.App.Env,
		"addr":              addr,
		"stripe_env":        cfg.Stripe.Environment(),
		"distributed_locks": cfg.FeatureFlags.DistributedLocks,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg,
			map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			redisClient,
			registry,
			services,
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
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func newVendorLocker(cfg *config.Config, redisClient *redis.Client) (vendorlock.Locker, error) {
	if !cfg.FeatureFlags.DistributedLocks {
		return vendorlock.NewLocalLocker(), nil
	}
	return vendorlock.NewRedisLocker(redisClient, cfg.Finance.VendorLockTTL, cfg.Finance.VendorLockWait)
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	locker vendorlock.Locker,
	financeMetrics *metrics.FinanceMetrics,
) (routes.Services, error) {
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return routes.Services{}, err
	}

	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repository:      refunds.NewRepository(dbClient.DB()),
		TxRunner:        dbClient,
		Ledger:          ledgerSvc,
		Outbox:          emitter,
		Locker:          locker,
		Logger:          logg,
		Metrics:         financeMetrics,
		BulkConcurrency: cfg.Finance.BulkConcurrency,
	})
	if err != nil {
		return routes.Services{}, err
	}

	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Repository: settlements.NewRepository(dbClient.DB()),
		Logger:     logg,
		Metrics:    financeMetrics,
	})
	if err != nil {
		return routes.Services{}, err
	}

	payoutRepo := payouts.NewRepository(dbClient.DB())
	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repository:     payoutRepo,
		TxRunner:       dbClient,
		Ledger:         ledgerSvc,
		Outbox:         emitter,
		Locker:         locker,
		Logger:         logg,
		Metrics:        financeMetrics,
		MinPayoutCents: cfg.Finance.MinPayoutCents,
		Currency:       cfg.Finance.Currency,
	})
	if err != nil {
		return routes.Services{}, err
	}

	methodSvc, err := payouts.NewMethodService(payouts.MethodServiceParams{
		Repository: payoutRepo,
		TxRunner:   dbClient,
		Outbox:     emitter,
		Locker:     locker,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	summarySvc, err := summary.NewService(summary.ServiceParams{
		Repository: summary.NewRepository(dbClient.DB()),
		Cache:      redisClient,
		CacheTTL:   cfg.Finance.SummaryCacheTTL,
		Currency:   cfg.Finance.Currency,
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	reconSvc, err := reconciliation.NewService(reconciliation.ServiceParams{
		Refunds:        refundSvc,
		Settlements:    settlementSvc,
		ToleranceCents: cfg.Finance.MatchToleranceCents,
		Logger:         logg,
		Metrics:        financeMetrics,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Ledger:         ledgerSvc,
		Refunds:        refundSvc,
		Settlements:    settlementSvc,
		Payouts:        payoutSvc,
		PayoutMethods:  methodSvc,
		Summary:        summarySvc,
		Reconciliation: reconSvc,
	}, nil
}
