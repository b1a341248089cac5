package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/salesmetrics-etl/api"
	"github.com/angelmondragon/salesmetrics-etl/api/controllers"
	"github.com/angelmondragon/salesmetrics-etl/api/routes"
	"github.com/angelmondragon/salesmetrics-etl/internal/cron"
	"github.com/angelmondragon/salesmetrics-etl/internal/etl"
	"github.com/angelmondragon/salesmetrics-etl/pkg/config"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
	"github.com/angelmondragon/salesmetrics-etl/pkg/metrics"
	"github.com/angelmondragon/salesmetrics-etl/pkg/migrate"
)

const serviceName = "salesmetrics-etl-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Pipeline.ScheduleInterval.String(),
	})

	res, err := etl.Open(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open resources", err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, res.Reporting); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	runner, err := etl.NewRunnerFromConfig(cfg, res, pipelineMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to build runner", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(etl.NewJob(runner)),
		Lock:     cron.NewLocalLock(),
		Metrics:  cronMetrics,
		Interval: cfg.Pipeline.ScheduleInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	readiness := make(map[string]controllers.Pinger)
	for name, p := range res.Pingers() {
		readiness[name] = p
	}
	router := routes.NewRouter(cfg, logg, routes.Deps{
		Readiness: readiness,
		Runs:      runner,
		Trigger:   service,
		Gatherer:  prometheus.DefaultGatherer,
	})

	logg.Info(ctx, "starting etl worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return api.Serve(groupCtx, cfg.Metrics.Addr, router, logg)
	})
	group.Go(func() error {
		return service.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "etl worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "etl worker shutting down gracefully")
}
