package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gigisung0503/eios/internal/app"
	"github.com/gigisung0503/eios/internal/config"
	"github.com/gigisung0503/eios/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eios",
		Short:         "Public-health signal ingestion from the EIOS content service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newServeCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute a single ingestion cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, logger, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.RunOnce(ctx); err != nil {
				logger.Error("ingestion cycle failed", "error", err)
				return err
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion cycles on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, logger, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Serve(ctx); err != nil {
				logger.Error("scheduler stopped with error", "error", err)
				return err
			}
			return nil
		},
	}
}

func buildApp(ctx context.Context) (*app.Application, *slog.Logger, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application startup failed", "error", err)
		return nil, nil, err
	}
	return application, logger, nil
}
