package bqexport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	pkgbigquery "github.com/angelmondragon/salesmetrics-etl/pkg/bigquery"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

func TestNewExporterValidation(t *testing.T) {
	if _, err := New(nil, Config{}, nil); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{MetricsTable: " ", RunsTable: "runs"}, nil); err == nil {
		t.Fatal("expected error when metrics table missing")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{MetricsTable: "metrics", RunsTable: " "}, nil); err == nil {
		t.Fatal("expected error when runs table missing")
	}
}

func TestExportMetricsBatches(t *testing.T) {
	exporter, fake := newExporterWithFakeInserter(t)
	exporter.batchSize = 2

	sent, err := exporter.ExportMetrics(context.Background(), "run-1", sampleMetrics(5), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}
	if sent != 5 {
		t.Fatalf("expected 5 rows sent, got %d", sent)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected 3 insert calls, got %d", len(fake.calls))
	}
	if fake.calls[2].rowCount != 1 || fake.calls[0].table != "product_sales_metrics" {
		t.Fatalf("unexpected calls %+v", fake.calls)
	}
}

func TestExportRetriesOnTransientError(t *testing.T) {
	exporter, fake := newExporterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	if _, err := exporter.ExportMetrics(context.Background(), "run-1", sampleMetrics(1), time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
}

func TestExportStopsOnPermanentError(t *testing.T) {
	exporter, fake := newExporterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	_, err := exporter.ExportMetrics(context.Background(), "run-1", sampleMetrics(1), time.Now().UTC())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.StageOf(err) != "export" {
		t.Fatalf("expected dependency error tagged export, got %v", err)
	}
}

func TestExportGivesUpAfterMaxAttempts(t *testing.T) {
	exporter, fake := newExporterWithFakeInserter(t)
	transient := &googleapi.Error{Code: http.StatusTooManyRequests}
	fake.responses = []error{transient, transient, transient, nil}

	if err := exporter.RecordRun(context.Background(), RunRow{RunID: "run-1", Status: "succeeded"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(fake.calls) != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, len(fake.calls))
	}
	if fake.calls[0].table != "pipeline_runs" {
		t.Fatalf("expected runs table, got %s", fake.calls[0].table)
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":         {nil, false},
		"503":         {&googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		"400":         {&googleapi.Error{Code: http.StatusBadRequest}, false},
		"unavailable": {status.Error(codes.Unavailable, "down"), true},
		"invalid":     {status.Error(codes.InvalidArgument, "bad"), false},
		"plain":       {errors.New("boom"), false},
		"row errors transient": {cbigquery.PutMultiError{
			{RowIndex: 0, Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}},
			{RowIndex: 1, Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "backendError"}}},
		}, true},
		"row errors mixed": {cbigquery.PutMultiError{
			{RowIndex: 0, Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "rateLimitExceeded"}}},
			{RowIndex: 1, Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "invalid"}}},
		}, false},
		"wrapped row errors": {fmt.Errorf("insert: %w", cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusTooManyRequests}}},
		}), true},
		"multi transient":   {cbigquery.MultiError{status.Error(codes.Unavailable, "down")}, true},
		"multi empty":       {cbigquery.MultiError{}, false},
		"reason timeout":    {&cbigquery.Error{Reason: "timeout"}, true},
		"reason stopped":    {&cbigquery.Error{Reason: "stopped"}, false},
	}
	for name, tc := range cases {
		if got := isRetryableBigQueryError(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}

func TestNewMetricRow(t *testing.T) {
	name := "Road-150 Red, 62"
	processed := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
	row := NewMetricRow("run-9", transform.ProductMetric{
		ProductID:   749,
		ProductName: &name,
		TotalSales:  10,
		Performance: enums.PerformanceTierA,
	}, processed)

	if row.RunID != "run-9" || row.ProductID != 749 || row.Performance != "A" {
		t.Fatalf("unexpected row %+v", row)
	}
	if !row.ProductName.Valid || row.ProductName.StringVal != name {
		t.Fatalf("expected product name, got %+v", row.ProductName)
	}
	if row.GrossMargin.Valid || row.ListPrice.Valid {
		t.Fatal("missing catalog values must export as NULL")
	}
	if !row.ProcessedAt.Equal(processed) {
		t.Fatalf("unexpected processed at %v", row.ProcessedAt)
	}
}

func TestTableSpecs(t *testing.T) {
	specs, err := TableSpecs(Config{MetricsTable: "m", RunsTable: "r"})
	if err != nil {
		t.Fatalf("infer schemas: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "m" || specs[1].Name != "r" {
		t.Fatalf("unexpected specs %+v", specs)
	}
	found := false
	for _, field := range specs[0].Schema {
		if field.Name == "gross_margin" {
			found = true
			if field.Required {
				t.Fatal("gross_margin must be nullable")
			}
		}
	}
	if !found {
		t.Fatal("expected gross_margin in metric schema")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"products": 3})
	if err != nil {
		t.Fatalf("unexpected error encoding json: %v", err)
	}
	if !nj.Valid || nj.JSONVal != `{"products":3}` {
		t.Fatalf("unexpected json %+v", nj)
	}

	nj, err = EncodeJSON(nil)
	if err != nil || nj.Valid {
		t.Fatalf("expected nil json to be invalid, got %+v, %v", nj, err)
	}

	raw := json.RawMessage(`{"foo":"baz"}`)
	nj, err = EncodeJSON(raw)
	if err != nil || nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %+v, %v", nj, err)
	}

	passthrough := cbigquery.NullJSON{Valid: true, JSONVal: "[]"}
	if nj, _ = EncodeJSON(passthrough); nj != passthrough {
		t.Fatalf("expected NullJSON passed through, got %+v", nj)
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
	index     int
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newExporterWithFakeInserter(t *testing.T) (*Exporter, *fakeInserter) {
	t.Helper()
	exporter, err := New(&pkgbigquery.Client{}, Config{
		MetricsTable: "product_sales_metrics",
		RunsTable:    "pipeline_runs",
		RetryPolicy:  RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond},
	}, nil)
	if err != nil {
		t.Fatalf("construct exporter: %v", err)
	}

	fake := &fakeInserter{}
	exporter.client = fake
	return exporter, fake
}

func sampleMetrics(n int) []transform.ProductMetric {
	out := make([]transform.ProductMetric, n)
	for i := range out {
		out[i] = transform.ProductMetric{ProductID: int64(700 + i), TotalSales: float64(100 * (n - i)), NumOrders: 1, Performance: enums.PerformanceTierC}
	}
	return out
}
