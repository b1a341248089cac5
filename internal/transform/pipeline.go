package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

var validate = validator.New()

// Result is the outcome of a successful run.
type Result struct {
	Metrics []ProductMetric
	Report  Report
}

// Pipeline runs the transform stages in order. It holds no state between
// runs; the same Dataset always yields the same Result.
type Pipeline struct {
	opts     Options
	observer Observer
	now      func() time.Time
}

type Option func(*Pipeline)

// WithObserver registers an observer for stage events.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		if obs == nil {
			return
		}
		if p.observer == nil {
			p.observer = obs
			return
		}
		p.observer = Observers{p.observer, obs}
	}
}

// WithLogger logs one line per stage through logg.
func WithLogger(logg *logger.Logger) Option {
	return WithObserver(NewLogObserver(logg))
}

// New validates opts and builds a pipeline.
func New(opts Options, options ...Option) (*Pipeline, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transform options")
	}
	p := &Pipeline{opts: opts, now: time.Now}
	for _, apply := range options {
		apply(p)
	}
	return p, nil
}

// Options returns the settings the pipeline was built with.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run executes join, window, aggregate, derive, classify and order. Any stage
// failure aborts the run and is returned tagged with the stage name.
func (p *Pipeline) Run(ctx context.Context, ds Dataset) (*Result, error) {
	report := Report{
		YearsAnalyzed:  p.opts.YearsToAnalyze,
		PercentileA:    p.opts.PercentileA,
		PercentileB:    p.opts.PercentileB,
		StageDurations: make(map[Stage]time.Duration, len(Stages)),
	}

	var (
		sales   []Sale
		metrics []ProductMetric
	)

	err := p.stage(ctx, &report, StageJoin, len(ds.SalesDetail), func() (int, map[string]int, error) {
		joined, stats, err := Join(ds)
		if err != nil {
			return 0, nil, err
		}
		sales = joined
		report.SalesDetailRows = stats.DetailRows
		report.SalesHeaderRows = stats.HeaderRows
		report.ProductRows = stats.ProductRows
		report.JoinedRows = stats.JoinedRows
		report.OrphanLines = stats.OrphanLines
		report.LinesWithoutCatalog = stats.LinesWithoutCatalog
		return len(joined), map[string]int{
			"orphan_lines":          stats.OrphanLines,
			"lines_without_catalog": stats.LinesWithoutCatalog,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, &report, StageWindow, len(sales), func() (int, map[string]int, error) {
		kept, stats, err := FilterWindow(sales, p.opts.YearsToAnalyze)
		report.MaxDate = stats.MaxDate
		report.Cutoff = stats.Cutoff
		if err != nil {
			return 0, nil, err
		}
		sales = kept
		report.RowsKept = stats.Kept
		report.RowsRemoved = stats.Removed
		return len(kept), nil, nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, &report, StageAggregate, len(sales), func() (int, map[string]int, error) {
		grouped, err := Aggregate(sales)
		if err != nil {
			return 0, nil, err
		}
		metrics = grouped
		return len(grouped), nil, nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, &report, StageDerive, len(metrics), func() (int, map[string]int, error) {
		Derive(metrics)
		missing := 0
		for _, m := range metrics {
			if m.GrossMargin == nil {
				missing++
			}
		}
		return len(metrics), map[string]int{"products_without_margin": missing}, nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, &report, StageClassify, len(metrics), func() (int, map[string]int, error) {
		th, err := Classify(metrics, p.opts.PercentileA, p.opts.PercentileB)
		if err != nil {
			return 0, nil, err
		}
		report.ThresholdA = th.ValueA
		report.ThresholdB = th.ValueB
		report.TierCounts = th.Counts
		return len(metrics), nil, nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, &report, StageOrder, len(metrics), func() (int, map[string]int, error) {
		SortByTotalSales(metrics)
		return len(metrics), nil, nil
	})
	if err != nil {
		return nil, err
	}

	report.summarize(metrics)
	return &Result{Metrics: metrics, Report: report}, nil
}

func (p *Pipeline) stage(ctx context.Context, report *Report, stage Stage, rowsIn int, fn func() (int, map[string]int, error)) error {
	start := p.now()
	rowsOut, warnings, err := fn()
	elapsed := p.now().Sub(start)
	report.StageDurations[stage] = elapsed

	if err != nil {
		err = tagStage(err, stage)
	}
	if p.observer != nil {
		p.observer.StageCompleted(ctx, StageEvent{
			Stage:    stage,
			RowsIn:   rowsIn,
			RowsOut:  rowsOut,
			Duration: elapsed,
			Warnings: warnings,
			Err:      err,
		})
	}
	return err
}

func tagStage(err error, stage Stage) error {
	if typed := pkgerrors.As(err); typed != nil {
		typed.WithStage(stage.String())
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("%s stage failed", stage)).WithStage(stage.String())
}
