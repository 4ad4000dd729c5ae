package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-finance/internal/cron"
	"github.com/angelmondragon/packfinderz-finance/internal/ledger"
	"github.com/angelmondragon/packfinderz-finance/internal/reconciliation"
	"github.com/angelmondragon/packfinderz-finance/internal/refunds"
	"github.com/angelmondragon/packfinderz-finance/internal/settlements"
	"github.com/angelmondragon/packfinderz-finance/internal/vendorlock"
	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/metrics"
	"github.com/angelmondragon/packfinderz-finance/pkg/migrate"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/redis"
)

const lockKeyFormat = "finance:cron-worker:lock:%s"

func main() {
	once := flag.Bool("once", false, "run the selected jobs a single time and exit")
	only := flag.String("jobs", "", "comma separated job names to run; empty runs all")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.FeatureFlags.DistributedLocks {
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
		redisLock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	financeMetrics := metrics.NewFinanceMetrics(prometheus.DefaultRegisterer)
	jobs, err := buildJobs(cfg, logg, dbClient, financeMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(jobs...)
	if err == nil && *only != "" {
		registry, err = registry.Select(strings.Split(*only, ",")...)
	}
	if err != nil {
		logg.Error(context.Background(), "invalid cron job selection", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"once":        *once,
		"jobs":        registry.Names(),
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	if cfg.App.MetricsAddr != "" {
		group.Go(func() error {
			return metrics.Serve(groupCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, financeMetrics *metrics.FinanceMetrics) ([]cron.Job, error) {
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repository: refunds.NewRepository(dbClient.DB()),
		TxRunner:   dbClient,
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Locker:     vendorlock.NewLocalLocker(),
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Repository: settlements.NewRepository(dbClient.DB()),
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	reconSvc, err := reconciliation.NewService(reconciliation.ServiceParams{
		Refunds:        refundSvc,
		Settlements:    settlementSvc,
		ToleranceCents: cfg.Finance.MatchToleranceCents,
		Logger:         logg,
		Metrics:        financeMetrics,
	})
	if err != nil {
		return nil, err
	}

	reconJob, err := cron.NewReconciliationJob(cron.ReconciliationJobParams{Logger: logg, Reconciler: reconSvc})
	if err != nil {
		return nil, err
	}
	auditJob, err := cron.NewBalanceAuditJob(cron.BalanceAuditJobParams{Logger: logg, Ledger: ledgerSvc, Metrics: financeMetrics})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Repository:          outbox.NewRepository(dbClient.DB()),
		PublishedRetention:  cfg.Outbox.PublishedRetention,
		DeadLetterRetention: cfg.Outbox.DeadLetterRetention,
		BatchSize:           cfg.Outbox.PurgeBatchSize,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{reconJob, auditJob, retentionJob}, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
