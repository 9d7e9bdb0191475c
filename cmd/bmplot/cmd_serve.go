package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidfague/bmtool/internal/api"
	"github.com/davidfague/bmtool/internal/cache"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/render"
	"github.com/davidfague/bmtool/internal/service"
	"github.com/davidfague/bmtool/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve connectivity matrices and figures over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				cfg.Server.Port = port
			}
			logger := a.logger

			logger.Info("starting bmplot server", "port", cfg.Server.Port, "version", version)

			src, err := network.LoadSimConfig(cfg.Data.SimConfig, logger.With("component", "network"))
			if err != nil {
				return err
			}
			if preload, _ := cmd.Flags().GetBool("preload"); preload {
				start := time.Now()
				if err := src.LoadAll(cmd.Context()); err != nil {
					return fmt.Errorf("failed to preload network tables: %w", err)
				}
				logger.Info("network tables loaded", "networks", len(src.Networks()), "elapsed", time.Since(start))
			}

			// Initialize cache manager
			cacheManager, err := cache.NewManager(cache.Config{
				FigureCacheSizeMB: cfg.Cache.FigureSizeMB,
				FigureTTL:         time.Duration(cfg.Cache.FigureTTLMinutes) * time.Minute,
				ResultEntries:     cfg.Cache.ResultEntries,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize cache: %w", err)
			}
			defer cacheManager.Close()

			metrics := telemetry.NewMetrics()

			// The server never opens a viewer.
			svc := service.NewPlotService(service.Config{
				Source: src,
				Renderer: render.NewRenderer(render.Config{
					Width:           cfg.Render.Width,
					Height:          cfg.Render.Height,
					DefaultColormap: cfg.Render.DefaultColormap,
				}),
				Cache:   cacheManager,
				Metrics: metrics,
				Tracer:  a.tracing.Tracer,
				Logger:  logger,
			})

			// Initialize job manager for render jobs (SQLite persistence)
			if dir := filepath.Dir(cfg.Reports.DBPath); dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create report directory: %w", err)
				}
			}
			jobManager, err := api.NewJobManager(api.JobManagerConfig{
				MaxConcurrent: cfg.Reports.MaxConcurrent,
				SQLitePath:    cfg.Reports.DBPath,
				RetentionDays: cfg.Reports.RetentionDays,
				CleanupPeriod: 1 * time.Hour,
				Metrics:       metrics,
				Logger:        logger,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize job manager: %w", err)
			}
			logger.Info("render job manager ready",
				"max_concurrent", cfg.Reports.MaxConcurrent,
				"retention_days", cfg.Reports.RetentionDays,
				"sqlite", cfg.Reports.DBPath)

			jobManager.Executor = svc.ExecuteJob
			jobManager.Start()
			defer jobManager.Stop()

			// Set up HTTP router
			router := api.NewRouter(api.RouterConfig{
				Service:     svc,
				JobManager:  jobManager,
				Metrics:     metrics,
				CORSOrigins: cfg.Server.CORSOrigins,
				RateLimit: api.RateLimitConfig{
					RPS:   cfg.Server.RateLimit.RPS,
					Burst: cfg.Server.RateLimit.Burst,
				},
				Logger: logger,
			})

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// Wait for interrupt signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			logger.Info("shutting down server")

			// Graceful shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server forced to shutdown", "error", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	cmd.Flags().Bool("preload", false, "Load every network table before serving")
	return cmd
}
