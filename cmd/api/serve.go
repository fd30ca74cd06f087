package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fileforge/fileforge/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	r := setupRouter(newRoutes(a), cfg, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first so it closes last.
	srv.OnShutdown("database", func(ctx context.Context) error {
		a.repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return a.cache.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"storage", cfg.StorageDriver,
		"providers", a.auth.Providers(),
		"metrics", cfg.MetricsEnabled,
	)

	return srv.Run(ctx)
}
