package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/gigisung0503/eios/internal/ports"
)

// Runner wires the interval scheduler driver with the ingestion pipeline.
type Runner struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewRunner returns a helper to start/stop recurring ingestion cycles.
func NewRunner(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the scheduler. Any error escaping a
// full cycle is logged; partial results already committed stay committed.
func (r *Runner) Start(ctx context.Context) error {
	if r.driver == nil || r.pipeline == nil {
		return nil
	}

	job := func(time.Time) {
		if err := r.pipeline.RunCycle(ctx); err != nil {
			r.logger.Error("ingestion cycle failed", "error", err)
		}
	}

	return r.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (r *Runner) Stop(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Stop(ctx)
}
