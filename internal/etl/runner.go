package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesmetrics-etl/internal/load"
	"github.com/angelmondragon/salesmetrics-etl/internal/load/bqexport"
	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
	"github.com/angelmondragon/salesmetrics-etl/pkg/metrics"
)

// Phase names a top-level step of a run.
type Phase string

const (
	PhaseExtract   Phase = "extract"
	PhaseTransform Phase = "transform"
	PhaseLoad      Phase = "load"
	PhaseValidate  Phase = "validate"
	PhaseExport    Phase = "export"
)

const (
	StatusSucceeded = metrics.StatusSucceeded
	StatusFailed    = metrics.StatusFailed

	previewRows = 10
)

// Extractor reads the three source tables.
type Extractor interface {
	ExtractAll(ctx context.Context) (transform.Dataset, error)
}

// Loader writes and summarizes the reporting table.
type Loader interface {
	Load(ctx context.Context, metrics []transform.ProductMetric, processedAt time.Time) (*load.Result, error)
	Validate(ctx context.Context) (*load.Summary, error)
}

// Exporter appends results to the analytics warehouse.
type Exporter interface {
	ExportMetrics(ctx context.Context, runID string, metrics []transform.ProductMetric, processedAt time.Time) (int, error)
	RecordRun(ctx context.Context, row bqexport.RunRow) error
}

// Params wires a Runner. Loader may be nil for dry runs; Exporter and
// Metrics are optional.
type Params struct {
	Extractor Extractor
	Loader    Loader
	Exporter  Exporter
	Transform transform.Options
	Metrics   *metrics.PipelineMetrics
	Logger    *logger.Logger
	DryRun    bool
	Clock     func() time.Time
}

// RunResult describes one run, successful or not.
type RunResult struct {
	RunID      string                    `json:"run_id"`
	Status     string                    `json:"status"`
	DryRun     bool                      `json:"dry_run"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Phases     map[Phase]time.Duration   `json:"phases"`
	Report     *transform.Report         `json:"report,omitempty"`
	Load       *load.Result              `json:"load,omitempty"`
	Summary    *load.Summary             `json:"summary,omitempty"`
	Exported   int                       `json:"exported"`
	Preview    []transform.ProductMetric `json:"preview,omitempty"`

	FailedPhase Phase          `json:"failed_phase,omitempty"`
	ErrorCode   pkgerrors.Code `json:"error_code,omitempty"`
	Error       string         `json:"error,omitempty"`

	metrics []transform.ProductMetric
}

// Metrics returns the ordered product metrics of a run that reached the end
// of the transform phase.
func (r *RunResult) Metrics() []transform.ProductMetric {
	if r == nil {
		return nil
	}
	return r.metrics
}

// Runner executes extract, transform, load, validate and export in order.
type Runner struct {
	extractor Extractor
	loader    Loader
	exporter  Exporter
	pipeline  *transform.Pipeline
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger
	dryRun    bool
	now       func() time.Time

	mu     sync.RWMutex
	latest *RunResult
}

// NewRunner validates params and builds a runner.
func NewRunner(params Params) (*Runner, error) {
	if params.Extractor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "extractor is required")
	}
	if params.Loader == nil && !params.DryRun {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loader is required unless running dry")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}

	pipeline, err := transform.New(params.Transform,
		transform.WithLogger(logg),
		transform.WithObserver(stageMetrics{params.Metrics}),
	)
	if err != nil {
		return nil, err
	}

	return &Runner{
		extractor: params.Extractor,
		loader:    params.Loader,
		exporter:  params.Exporter,
		pipeline:  pipeline,
		metrics:   params.Metrics,
		logg:      logg,
		dryRun:    params.DryRun,
		now:       now,
	}, nil
}

// DryRun reports whether load and export are skipped.
func (r *Runner) DryRun() bool {
	return r.dryRun
}

// Latest returns the most recent run result, or nil before the first run.
func (r *Runner) Latest() *RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Run executes one full pass. The returned result is never nil; on failure it
// records the failing phase and the error is returned alongside it.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		RunID:     uuid.NewString(),
		DryRun:    r.dryRun,
		StartedAt: r.now().UTC(),
		Phases:    make(map[Phase]time.Duration, 5),
	}
	ctx = r.logg.WithRunID(ctx, res.RunID)
	r.logg.Info(r.logg.WithField(ctx, "dry_run", r.dryRun), "etl.run.started")

	err := r.run(ctx, res)

	res.FinishedAt = r.now().UTC()
	if err != nil {
		res.Status = StatusFailed
		res.ErrorCode = pkgerrors.CodeOf(err)
		res.Error = err.Error()
		fields := pkgerrors.Dump(err).Fields()
		fields["failed_phase"] = string(res.FailedPhase)
		r.logg.Error(r.logg.WithFields(ctx, fields), "etl.run.failed", err)
	} else {
		res.Status = StatusSucceeded
		r.logCompleted(ctx, res)
	}

	r.metrics.RunFinished(res.FinishedAt, err)
	r.recordRun(ctx, res)

	r.mu.Lock()
	r.latest = res
	r.mu.Unlock()
	return res, err
}

func (r *Runner) run(ctx context.Context, res *RunResult) error {
	var ds transform.Dataset
	err := r.phase(ctx, res, PhaseExtract, func(ctx context.Context) error {
		var err error
		ds, err = r.extractor.ExtractAll(ctx)
		return err
	})
	if err != nil {
		return err
	}
	r.metrics.SetRows(metrics.RowsExtracted, int64(len(ds.SalesDetail)))

	var out *transform.Result
	err = r.phase(ctx, res, PhaseTransform, func(ctx context.Context) error {
		var err error
		out, err = r.pipeline.Run(ctx, ds)
		return err
	})
	if err != nil {
		return err
	}
	res.Report = &out.Report
	res.metrics = out.Metrics
	r.recordReport(out.Report)

	if r.dryRun {
		res.Preview = out.Metrics[:min(previewRows, len(out.Metrics))]
		r.logPreview(ctx, res.Preview)
		return nil
	}

	processedAt := r.now().UTC()
	err = r.phase(ctx, res, PhaseLoad, func(ctx context.Context) error {
		var err error
		res.Load, err = r.loader.Load(ctx, out.Metrics, processedAt)
		return err
	})
	if err != nil {
		return err
	}
	r.metrics.SetRows(metrics.RowsLoaded, res.Load.RowsWritten)

	err = r.phase(ctx, res, PhaseValidate, func(ctx context.Context) error {
		var err error
		res.Summary, err = r.loader.Validate(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if r.exporter == nil {
		return nil
	}
	err = r.phase(ctx, res, PhaseExport, func(ctx context.Context) error {
		var err error
		res.Exported, err = r.exporter.ExportMetrics(ctx, res.RunID, out.Metrics, processedAt)
		return err
	})
	if err != nil {
		return err
	}
	r.metrics.SetRows(metrics.RowsExported, int64(res.Exported))
	return nil
}

func (r *Runner) phase(ctx context.Context, res *RunResult, phase Phase, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		res.FailedPhase = phase
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s canceled", phase)).WithStage(string(phase))
	}
	ctx = r.logg.WithField(ctx, "phase", string(phase))
	start := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(start)
	res.Phases[phase] = elapsed
	r.metrics.ObserveStage(string(phase), elapsed, err != nil)
	if err != nil {
		res.FailedPhase = phase
		return phaseError(phase, err)
	}
	r.logg.Debug(r.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds()), "etl.phase.completed")
	return nil
}

// phaseError prefixes err with the failing phase. Typed errors keep their
// code and stage; anything else becomes an internal error of that phase.
func phaseError(phase Phase, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("%s failed", phase))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s failed", phase)).WithStage(string(phase))
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("%s failed", phase)).WithStage(string(phase))
}

func (r *Runner) recordReport(report transform.Report) {
	r.metrics.SetRows(metrics.RowsOrphanLines, int64(report.OrphanLines))
	r.metrics.SetRows(metrics.RowsWithoutCatalog, int64(report.LinesWithoutCatalog))
	r.metrics.SetRows(metrics.RowsWindowed, int64(report.RowsKept))
	r.metrics.SetRows(metrics.RowsProducts, int64(report.Products))
	thresholds := map[enums.PerformanceTier]float64{
		enums.PerformanceTierA: report.ThresholdA,
		enums.PerformanceTierB: report.ThresholdB,
	}
	for _, tier := range enums.PerformanceTiers() {
		r.metrics.SetTier(tier.String(), report.TierCounts[tier], thresholds[tier])
	}
}

func (r *Runner) logCompleted(ctx context.Context, res *RunResult) {
	fields := map[string]any{
		"dry_run":     res.DryRun,
		"duration_ms": res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}
	if rep := res.Report; rep != nil {
		fields["products"] = rep.Products
		fields["total_sales"] = rep.TotalSales
		fields["total_quantity"] = rep.TotalQuantity
		fields["threshold_a"] = rep.ThresholdA
		fields["threshold_b"] = rep.ThresholdB
		fields["top_product_id"] = rep.TopProductID
		fields["top_product_name"] = rep.TopProductName
		for _, tier := range enums.PerformanceTiers() {
			fields["tier_"+tier.String()] = rep.TierCounts[tier]
			fields["tier_"+tier.String()+"_pct"] = fmt.Sprintf("%.1f", rep.TierShare(tier))
		}
	}
	if res.Load != nil {
		fields["rows_loaded"] = res.Load.RowsWritten
		fields["table"] = res.Load.Table
	}
	if r.exporter != nil && !res.DryRun {
		fields["rows_exported"] = res.Exported
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), "etl.run.completed")
}

func (r *Runner) logPreview(ctx context.Context, preview []transform.ProductMetric) {
	for i, m := range preview {
		name := ""
		if m.ProductName != nil {
			name = *m.ProductName
		}
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"rank":        i + 1,
			"product_id":  m.ProductID,
			"name":        name,
			"total_sales": m.TotalSales,
			"qty_sold":    m.QtySold,
			"performance": m.Performance.String(),
		}), "etl.dry_run.preview")
	}
}

// recordRun stores the run outcome in the warehouse. Failures are logged and
// never change the run status.
func (r *Runner) recordRun(ctx context.Context, res *RunResult) {
	if r.exporter == nil || res.DryRun {
		return
	}
	row := bqexport.RunRow{
		RunID:      res.RunID,
		Status:     res.Status,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Exported:   int64(res.Exported),
	}
	if res.Report != nil {
		row.Products = int64(res.Report.Products)
		row.TotalSales = res.Report.TotalSales
		row.ThresholdA = res.Report.ThresholdA
		row.ThresholdB = res.Report.ThresholdB
		if report, err := bqexport.EncodeJSON(res.Report); err == nil {
			row.Report = report
		}
	}
	if res.Load != nil {
		row.RowsLoaded = res.Load.RowsWritten
	}
	if res.ErrorCode != "" {
		row.ErrorCode.StringVal = string(res.ErrorCode)
		row.ErrorCode.Valid = true
		row.FailedPhase.StringVal = string(res.FailedPhase)
		row.FailedPhase.Valid = true
	}
	if err := r.exporter.RecordRun(ctx, row); err != nil {
		r.logg.Warn(r.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "etl.run.record_failed")
	}
}

// ValidateOnly summarizes the reporting table without running the pipeline.
func (r *Runner) ValidateOnly(ctx context.Context) (*load.Summary, error) {
	if r.loader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation needs a loader")
	}
	summary, err := r.loader.Validate(ctx)
	if err != nil {
		return nil, phaseError(PhaseValidate, err)
	}
	return summary, nil
}
