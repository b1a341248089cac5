package bqexport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	pkgbigquery "github.com/angelmondragon/salesmetrics-etl/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

const (
	stageExport           = "export"
	defaultBatchSize      = 500
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the exporter behavior.
type Config struct {
	MetricsTable string
	RunsTable    string
	BatchSize    int
	RetryPolicy  RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Exporter appends run results to BigQuery.
type Exporter struct {
	client       tableInserter
	metricsTable string
	runsTable    string
	batchSize    int
	retry        RetryPolicy
	logg         *logger.Logger
}

// TableSpecs returns the tables the exporter writes, with schemas inferred
// from the row types, so the client can create them on first use.
func TableSpecs(cfg Config) ([]pkgbigquery.TableSpec, error) {
	metricSchema, err := cbigquery.InferSchema(MetricRow{})
	if err != nil {
		return nil, fmt.Errorf("infer metric schema: %w", err)
	}
	runSchema, err := cbigquery.InferSchema(RunRow{})
	if err != nil {
		return nil, fmt.Errorf("infer run schema: %w", err)
	}
	return []pkgbigquery.TableSpec{
		{Name: cfg.MetricsTable, Schema: metricSchema, PartitionField: "processed_at"},
		{Name: cfg.RunsTable, Schema: runSchema, PartitionField: "started_at"},
	}, nil
}

// New creates an exporter backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config, logg *logger.Logger) (*Exporter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	metrics := strings.TrimSpace(cfg.MetricsTable)
	if metrics == "" {
		return nil, errors.New("metrics table is required")
	}
	runs := strings.TrimSpace(cfg.RunsTable)
	if runs == "" {
		return nil, errors.New("runs table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}
	if logg == nil {
		logg = logger.Nop()
	}

	return &Exporter{
		client:       client,
		metricsTable: metrics,
		runsTable:    runs,
		batchSize:    batchSize,
		retry:        retry,
		logg:         logg,
	}, nil
}

// ExportMetrics appends every metric of a run, tagged with runID.
func (e *Exporter) ExportMetrics(ctx context.Context, runID string, metrics []transform.ProductMetric, processedAt time.Time) (int, error) {
	rows := make([]MetricRow, len(metrics))
	for i, m := range metrics {
		rows[i] = NewMetricRow(runID, m, processedAt)
	}

	sent := 0
	for start := 0; start < len(rows); start += e.batchSize {
		end := min(start+e.batchSize, len(rows))
		batch := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &rows[i])
		}
		if err := e.insertWithRetry(ctx, e.metricsTable, batch); err != nil {
			return sent, exportError(err)
		}
		sent += len(batch)
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{"table": e.metricsTable, "rows": sent}), "export.metrics.completed")
	return sent, nil
}

// RecordRun appends one row describing a run.
func (e *Exporter) RecordRun(ctx context.Context, row RunRow) error {
	if err := e.insertWithRetry(ctx, e.runsTable, []any{&row}); err != nil {
		return exportError(err)
	}
	return nil
}

func exportError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bigquery export failed").WithStage(stageExport)
}

func (e *Exporter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := e.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= e.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", table, err)
		}
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{"table": table, "attempt": attempts, "backoff_ms": backoff.Milliseconds()}), "export.insert.retry")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, e.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	// Put returns both error lists as values.
	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.Error
	if errors.As(err, &rowErr) && rowErr != nil {
		return isRetryableReason(rowErr.Reason)
	}
	var rowErrValue cbigquery.Error
	if errors.As(err, &rowErrValue) {
		return isRetryableReason(rowErrValue.Reason)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

// isRetryableReason matches the per-row reasons BigQuery documents as
// transient.
func isRetryableReason(reason string) bool {
	switch reason {
	case "backendError", "internalError", "rateLimitExceeded", "timeout":
		return true
	default:
		return false
	}
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
