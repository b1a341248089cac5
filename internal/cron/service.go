package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
	"github.com/angelmondragon/salesmetrics-etl/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

var errLockRequired = errors.New("lock required")

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service executes registered cron jobs on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration

	mu       sync.Mutex
	base     context.Context
	inflight sync.WaitGroup
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, errLockRequired
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Interval returns the configured cadence.
func (s *Service) Interval() time.Duration {
	return s.interval
}

// Run starts the cron loop until the context is canceled. The first cycle
// runs immediately. Triggered cycles share ctx and are awaited on return.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = s.logg.WithField(ctx, "interval", s.interval.String())
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	defer s.inflight.Wait()

	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// RunOnce executes a single cycle. Job failures are logged and counted, they
// do not stop the remaining jobs. The joined job errors are returned.
func (s *Service) RunOnce(ctx context.Context) error {
	locked, err := s.acquire(ctx)
	if err != nil || !locked {
		return err
	}
	defer s.release(ctx)
	return s.runJobs(ctx)
}

// Trigger starts an out-of-schedule cycle in the background and reports
// whether it started. While another cycle holds the lock the request is
// skipped and counted like an overlapping scheduled cycle.
func (s *Service) Trigger(ctx context.Context) (bool, error) {
	locked, err := s.acquire(ctx)
	if err != nil || !locked {
		return false, err
	}

	s.mu.Lock()
	runCtx := s.base
	s.mu.Unlock()
	if runCtx == nil {
		runCtx = context.WithoutCancel(ctx)
	}
	runCtx = s.logg.WithField(runCtx, "trigger", "manual")

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.release(runCtx)
		if err := s.runJobs(runCtx); err != nil {
			s.logg.Error(runCtx, "triggered run failed", err)
		}
	}()
	return true, nil
}

func (s *Service) acquire(ctx context.Context) (bool, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron cycle is running; skipping this cycle")
		for _, job := range s.registry.Jobs() {
			s.metrics.IncSkipped(job.Name())
		}
	}
	return locked, nil
}

func (s *Service) release(ctx context.Context) {
	if err := s.lock.Release(ctx); err != nil {
		s.logg.Error(ctx, "failed to release cron lock", err)
	}
}

func (s *Service) runJobs(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "scheduled run starting")
	var errs error
	for _, job := range s.registry.Jobs() {
		if err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	s.logg.Info(ctx, "scheduled run complete")
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			s.finish(jobCtx, job.Name(), time.Since(start), err)
		}
	}()
	err = job.Run(jobCtx)
	s.finish(jobCtx, job.Name(), time.Since(start), err)
	return err
}

func (s *Service) finish(ctx context.Context, job string, duration time.Duration, err error) {
	s.metrics.ObserveDuration(job, duration)
	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.metrics.IncFailure(job)
		return
	}
	s.logg.Info(ctx, "job completed")
	s.metrics.IncSuccess(job)
}
