package etl

import "context"

// JobName identifies the pipeline in the scheduler and in job metrics.
const JobName = "product-sales-metrics"

// Job adapts a Runner to the scheduler's job interface.
type Job struct {
	runner *Runner
}

func NewJob(runner *Runner) *Job {
	return &Job{runner: runner}
}

func (j *Job) Name() string {
	return JobName
}

func (j *Job) Run(ctx context.Context) error {
	_, err := j.runner.Run(ctx)
	return err
}
