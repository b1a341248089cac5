package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/salesmetrics-etl/api/responses"
	"github.com/angelmondragon/salesmetrics-etl/internal/etl"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

// RunTracker exposes the most recent pipeline run.
type RunTracker interface {
	Latest() *etl.RunResult
}

// RunTrigger starts an out-of-schedule cycle unless one is already running.
type RunTrigger interface {
	Trigger(ctx context.Context) (bool, error)
}

// TriggerRun answers 202 when a cycle was started and 409 when the scheduled
// or a previously triggered cycle still holds the lock.
func TriggerRun(trigger RunTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started, err := trigger.Trigger(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "starting pipeline run"))
			return
		}
		if !started {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a pipeline run is already in progress"))
			return
		}
		logg.Info(r.Context(), "pipeline run triggered")
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]bool{"started": true})
	}
}

// LatestRun returns the last run, successful or failed.
func LatestRun(tracker RunTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var latest *etl.RunResult
		if tracker != nil {
			latest = tracker.Latest()
		}
		if latest == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no pipeline run has completed yet"))
			return
		}
		responses.WriteSuccess(w, latest)
	}
}
