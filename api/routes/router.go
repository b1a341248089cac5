package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/salesmetrics-etl/api/controllers"
	"github.com/angelmondragon/salesmetrics-etl/api/middleware"
	"github.com/angelmondragon/salesmetrics-etl/pkg/config"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

// Deps are the collaborators the worker endpoints read from.
type Deps struct {
	Readiness map[string]controllers.Pinger
	Runs      controllers.RunTracker
	Trigger   controllers.RunTrigger
	Gatherer  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Get("/latest", controllers.LatestRun(deps.Runs, logg))
		if deps.Trigger != nil {
			r.Post("/", controllers.TriggerRun(deps.Trigger, logg))
		}
	})

	return r
}
