package transform

import (
	"context"
	"time"

	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

// Stage names a step of the transform.
type Stage string

const (
	StageJoin      Stage = "join"
	StageWindow    Stage = "window"
	StageAggregate Stage = "aggregate"
	StageDerive    Stage = "derive"
	StageClassify  Stage = "classify"
	StageOrder     Stage = "order"
)

// Stages lists the steps in execution order.
var Stages = []Stage{StageJoin, StageWindow, StageAggregate, StageDerive, StageClassify, StageOrder}

func (s Stage) String() string {
	return string(s)
}

// StageEvent is emitted once per stage, whether it succeeded or failed.
type StageEvent struct {
	Stage    Stage
	RowsIn   int
	RowsOut  int
	Duration time.Duration
	Warnings map[string]int
	Err      error
}

// Observer receives stage completions. Implementations must not retain the
// Warnings map past the call.
type Observer interface {
	StageCompleted(ctx context.Context, event StageEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event StageEvent)

func (f ObserverFunc) StageCompleted(ctx context.Context, event StageEvent) {
	f(ctx, event)
}

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) StageCompleted(ctx context.Context, event StageEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.StageCompleted(ctx, event)
		}
	}
}

// LogObserver writes one structured log line per stage.
type LogObserver struct {
	logg *logger.Logger
}

func NewLogObserver(logg *logger.Logger) *LogObserver {
	return &LogObserver{logg: logg}
}

func (o *LogObserver) StageCompleted(ctx context.Context, event StageEvent) {
	if o == nil || o.logg == nil {
		return
	}
	fields := map[string]any{
		"stage":       event.Stage.String(),
		"rows_in":     event.RowsIn,
		"rows_out":    event.RowsOut,
		"duration_ms": event.Duration.Milliseconds(),
	}
	for k, v := range event.Warnings {
		fields[k] = v
	}
	ctx = o.logg.WithFields(ctx, fields)
	if event.Err != nil {
		o.logg.Error(ctx, "transform.stage.failed", event.Err)
		return
	}
	o.logg.Info(ctx, "transform.stage.completed")
	for k, v := range event.Warnings {
		if v > 0 {
			o.logg.Warn(o.logg.WithField(ctx, "warning", k), "transform.stage.warning")
		}
	}
}
