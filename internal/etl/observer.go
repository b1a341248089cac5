package etl

import (
	"context"

	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	"github.com/angelmondragon/salesmetrics-etl/pkg/metrics"
)

// stageMetrics feeds transform stage timings into the pipeline histogram.
type stageMetrics struct {
	m *metrics.PipelineMetrics
}

func (s stageMetrics) StageCompleted(_ context.Context, event transform.StageEvent) {
	s.m.ObserveStage(event.Stage.String(), event.Duration, event.Err != nil)
}
