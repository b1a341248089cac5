package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/salesmetrics-etl/internal/etl"
	"github.com/angelmondragon/salesmetrics-etl/internal/extract"
	"github.com/angelmondragon/salesmetrics-etl/pkg/config"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
	"github.com/angelmondragon/salesmetrics-etl/pkg/metrics"
	"github.com/angelmondragon/salesmetrics-etl/pkg/migrate"
)

const (
	serviceName = "salesmetrics-etl"
	pushTimeout = 10 * time.Second
)

func main() {
	dryRun := flag.Bool("dry-run", false, "run extract and transform only, print a preview")
	validateOnly := flag.Bool("validate-only", false, "summarize the reporting table without running the pipeline")
	probe := flag.Bool("probe", false, "check the source database connection and exit")
	printJSON := flag.Bool("json", false, "print the run result as JSON on stdout")
	flag.Parse()

	os.Exit(run(*dryRun, *validateOnly, *probe, *printJSON))
}

func run(dryRun, validateOnly, probe, printJSON bool) int {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return pkgerrors.MetadataFor(pkgerrors.CodeValidation).ExitCode
	}
	if dryRun {
		cfg.Pipeline.DryRun = true
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	res, err := etl.Open(ctx, cfg, logg)
	if err != nil {
		return fail(ctx, logg, "failed to open resources", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	if probe {
		result, err := extract.NewProber(res.Source, logg).Probe(ctx)
		if err != nil {
			return fail(ctx, logg, "source probe failed", err)
		}
		if printJSON {
			writeJSON(ctx, logg, result)
		}
		return 0
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, res.Reporting); err != nil {
		return fail(ctx, logg, "failed to run dev migrations", err)
	}

	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	runner, err := etl.NewRunnerFromConfig(cfg, res, pipelineMetrics, logg)
	if err != nil {
		return fail(ctx, logg, "failed to build runner", err)
	}

	if validateOnly {
		summary, err := runner.ValidateOnly(ctx)
		if err != nil {
			return fail(ctx, logg, "validation failed", err)
		}
		if printJSON {
			writeJSON(ctx, logg, summary)
		}
		return 0
	}

	result, runErr := runner.Run(ctx)
	if printJSON {
		writeJSON(ctx, logg, result)
	}
	pushMetrics(ctx, cfg.Metrics, registry, logg)

	if runErr != nil {
		return pkgerrors.MetadataFor(pkgerrors.CodeOf(runErr)).ExitCode
	}
	return 0
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) int {
	logg.Error(logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), msg, err)
	return pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).ExitCode
}

func pushMetrics(ctx context.Context, cfg config.MetricsConfig, g prometheus.Gatherer, logg *logger.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	// The run context may already be canceled by the time we push.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.PushgatewayURL, cfg.JobName, g); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "metrics push failed")
		return
	}
	logg.Debug(ctx, "metrics pushed")
}

func writeJSON(ctx context.Context, logg *logger.Logger, v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logg.Error(ctx, "failed to encode output", err)
	}
}
