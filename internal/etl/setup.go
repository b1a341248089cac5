package etl

import (
	"context"

	"go.uber.org/multierr"

	"github.com/angelmondragon/salesmetrics-etl/internal/extract"
	"github.com/angelmondragon/salesmetrics-etl/internal/load"
	"github.com/angelmondragon/salesmetrics-etl/internal/load/bqexport"
	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	pkgbigquery "github.com/angelmondragon/salesmetrics-etl/pkg/bigquery"
	"github.com/angelmondragon/salesmetrics-etl/pkg/config"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
	"github.com/angelmondragon/salesmetrics-etl/pkg/metrics"
)

// Resources are the connections a runner needs, opened from config.
type Resources struct {
	Reporting *db.Client
	Source    *db.Client
	BigQuery  *pkgbigquery.Client

	Extractor *extract.Extractor
	Loader    *load.Loader
	Exporter  *bqexport.Exporter
}

// Open connects to the reporting database, the source database when it is a
// separate one, and BigQuery when the export is enabled.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (res *Resources, err error) {
	if logg == nil {
		logg = logger.Nop()
	}
	res = &Resources{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, res.Close())
			res = nil
		}
	}()

	res.Reporting, err = db.New(logg.WithField(ctx, "database", "reporting"), cfg.DB, logg)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connecting to reporting database")
	}

	res.Source = res.Reporting
	if !cfg.Source.UsesReportingDB() {
		res.Source, err = db.New(logg.WithField(ctx, "database", "source"), cfg.Source.DBConfig(cfg.DB), logg)
		if err != nil {
			return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connecting to source database")
		}
	}

	res.Extractor, err = extract.New(res.Source, extract.TablesFromConfig(cfg.Source), logg)
	if err != nil {
		return res, err
	}

	res.Loader, err = load.New(res.Reporting, load.Options{
		Table:     cfg.Pipeline.TargetTable,
		BatchSize: cfg.Pipeline.BatchSize,
		Truncate:  cfg.Pipeline.Truncate,
	}, logg)
	if err != nil {
		return res, err
	}

	if !cfg.BigQuery.Enabled {
		return res, nil
	}
	exportCfg := bqexport.Config{
		MetricsTable: cfg.BigQuery.MetricsTable,
		RunsTable:    cfg.BigQuery.RunsTable,
	}
	specs, err := bqexport.TableSpecs(exportCfg)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building bigquery schemas")
	}
	res.BigQuery, err = pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, specs, logg)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connecting to bigquery")
	}
	res.Exporter, err = bqexport.New(res.BigQuery, exportCfg, logg)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "building bigquery exporter")
	}
	return res, nil
}

// Pingers returns the readiness checks for the opened connections.
func (r *Resources) Pingers() map[string]db.Pinger {
	out := map[string]db.Pinger{}
	if r.Reporting != nil {
		out["reporting_db"] = r.Reporting
	}
	if r.Source != nil && r.Source != r.Reporting {
		out["source_db"] = r.Source
	}
	if r.BigQuery != nil {
		out["bigquery"] = r.BigQuery
	}
	return out
}

// Close releases every connection that was opened.
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	var err error
	if r.BigQuery != nil {
		err = multierr.Append(err, r.BigQuery.Close())
	}
	if r.Source != nil && r.Source != r.Reporting {
		err = multierr.Append(err, r.Source.Close())
	}
	if r.Reporting != nil {
		err = multierr.Append(err, r.Reporting.Close())
	}
	return err
}

// NewRunnerFromConfig wires a runner over opened resources.
func NewRunnerFromConfig(cfg *config.Config, res *Resources, pm *metrics.PipelineMetrics, logg *logger.Logger) (*Runner, error) {
	params := Params{
		Extractor: res.Extractor,
		Loader:    res.Loader,
		Transform: transform.Options{
			YearsToAnalyze: cfg.Pipeline.YearsToAnalyze,
			PercentileA:    cfg.Pipeline.PercentileA,
			PercentileB:    cfg.Pipeline.PercentileB,
		},
		Metrics: pm,
		Logger:  logg,
		DryRun:  cfg.Pipeline.DryRun,
	}
	if res.Exporter != nil {
		params.Exporter = res.Exporter
	}
	return NewRunner(params)
}
