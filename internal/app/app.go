package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigisung0503/eios/internal/config"
	"github.com/gigisung0503/eios/internal/infrastructure/eios"
	"github.com/gigisung0503/eios/internal/infrastructure/llm"
	"github.com/gigisung0503/eios/internal/infrastructure/scheduler"
	"github.com/gigisung0503/eios/internal/infrastructure/storage"
	"github.com/gigisung0503/eios/internal/logging"
	"github.com/gigisung0503/eios/internal/usecase"
)

// Application wires configuration to adapters, the pipeline, and the
// scheduler lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Store
	pipeline *usecase.Pipeline
	runner   *usecase.Runner
}

// New opens the store, applies stored configuration overrides, and builds
// a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	overrides, err := store.Overrides(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load stored overrides: %w", err)
	}
	cfg.ApplyStoredOverrides(overrides)

	eiosClient := eios.NewClient(cfg.EIOS, nil, baseLogger.With("component", "eios"))
	chatClient := llm.NewClient(cfg.AI)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Boards:       eiosClient,
		Source:       eiosClient,
		Repository:   store,
		Ledger:       store,
		Chat:         chatClient,
		Prompt:       cfg.AI.Prompt,
		Tags:         cfg.EIOS.Tags,
		FetchWindow:  time.Duration(cfg.EIOS.FetchWindowHours) * time.Hour,
		RateInterval: time.Duration(cfg.AI.RateLimitSeconds) * time.Second,
		Logger:       baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.New(time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute)
	runner := usecase.NewRunner(driver, pipeline, baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		pipeline: pipeline,
		runner:   runner,
	}, nil
}

// RunOnce executes a single ingestion cycle.
func (a *Application) RunOnce(ctx context.Context) error {
	return a.pipeline.RunCycle(ctx)
}

// Serve schedules recurring cycles until the context is canceled, then
// stops cooperatively: an in-flight cycle runs to completion.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "interval_minutes", a.cfg.Scheduler.IntervalMinutes)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.runner.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

// Close releases the application's resources.
func (a *Application) Close() error {
	return a.store.Close()
}
