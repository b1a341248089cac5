package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Namespace prefixes every metric this service exports.
const Namespace = "salesmetrics"

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Row kinds reported through SetRows.
const (
	RowsExtracted      = "extracted"
	RowsOrphanLines    = "orphan_lines"
	RowsWithoutCatalog = "lines_without_catalog"
	RowsWindowed       = "windowed"
	RowsProducts       = "products"
	RowsLoaded         = "loaded"
	RowsExported       = "exported"
)

// PipelineMetrics describes one ETL run: stage timings, row counts, tier
// sizes and the final outcome.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	rows          *prometheus.GaugeVec
	tiers         *prometheus.GaugeVec
	thresholds    *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
}

// NewPipelineMetrics registers the pipeline metrics on reg. A nil registerer
// yields a no-op recorder.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	m := &PipelineMetrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"status"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rows",
			Help:      "Row counts of the most recent run by kind.",
		}, []string{"kind"}),
		tiers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "products_per_tier",
			Help:      "Products per performance tier in the most recent run.",
		}, []string{"tier"}),
		thresholds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tier_threshold_total_sales",
			Help:      "Total sales boundary of each tier in the most recent run.",
		}, []string{"tier"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	reg.MustRegister(m.stageDuration, m.runs, m.rows, m.tiers, m.thresholds, m.lastSuccess)
	return m
}

// ObserveStage records how long a stage took and whether it failed.
func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration, failed bool) {
	if m == nil || m.stageDuration == nil {
		return
	}
	status := StatusSucceeded
	if failed {
		status = StatusFailed
	}
	m.stageDuration.WithLabelValues(normalizeLabel(stage), status).Observe(duration.Seconds())
}

// SetRows sets the row gauge for kind.
func (m *PipelineMetrics) SetRows(kind string, n int64) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(kind)).Set(float64(n))
}

// SetTier records the product count and lower boundary of a tier.
func (m *PipelineMetrics) SetTier(tier string, products int, threshold float64) {
	if m == nil || m.tiers == nil {
		return
	}
	m.tiers.WithLabelValues(normalizeLabel(tier)).Set(float64(products))
	m.thresholds.WithLabelValues(normalizeLabel(tier)).Set(threshold)
}

// RunFinished counts the run and stamps the last success time.
func (m *PipelineMetrics) RunFinished(at time.Time, err error) {
	if m == nil || m.runs == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues(StatusFailed).Inc()
		return
	}
	m.runs.WithLabelValues(StatusSucceeded).Inc()
	m.lastSuccess.Set(float64(at.Unix()))
}

// Push sends everything gathered by g to a Prometheus Pushgateway, replacing
// the metrics previously pushed under job.
func Push(ctx context.Context, gatewayURL, job string, g prometheus.Gatherer) error {
	if gatewayURL == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if job == "" {
		job = Namespace
	}
	if err := push.New(gatewayURL, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
