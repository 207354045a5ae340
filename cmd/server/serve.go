package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuomag9/meshwatch/internal/api"
	"github.com/fuomag9/meshwatch/internal/config"
	"github.com/fuomag9/meshwatch/internal/database"
	"github.com/fuomag9/meshwatch/internal/jobs"
	"github.com/fuomag9/meshwatch/internal/logging"
	"github.com/fuomag9/meshwatch/internal/monitor"
	"github.com/fuomag9/meshwatch/internal/notification"
	"github.com/fuomag9/meshwatch/internal/websocket"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Log.Dir, cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			for _, warning := range cfg.Warnings {
				logger.Warn("config_warning", zap.String("warning", warning))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("server_failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(db, cfg.Database); err != nil {
		return err
	}
	store := database.NewStore(db)

	hub := websocket.NewHub(logger, cfg.JWTSecret, cfg.CORSOrigins)
	go hub.Run(ctx)

	dispatcher := notification.NewDispatcher(store, logger)

	monitor.RegisterMonitorType(monitor.NewTailscalePingMonitor(cfg.Checks.TailscaleBinary))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	executor, err := monitor.NewExecutor(logger, store, monitor.ExecutorOptions{
		Notifier:            dispatcher,
		Hub:                 hub,
		Metrics:             monitor.NewMetrics(reg),
		MaxConcurrentChecks: cfg.Checks.MaxConcurrentChecks,
	})
	if err != nil {
		return err
	}
	if err := executor.Start(ctx); err != nil {
		return err
	}
	defer executor.Stop()

	scheduler := jobs.NewScheduler(logger, store, executor, cfg.Checks.HeartbeatRetentionDays)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	limiter := api.NewRateLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.RateBurst)
	limiter.CleanupOldLimiters(ctx)

	router := api.NewRouter(cfg, api.Deps{
		Logger:      logger,
		Store:       store,
		Health:      api.NewHealth(sqlDB, cfg.Checks.TailscaleBinary),
		Gatherer:    reg,
		RateLimiter: limiter,
		WebSocket:   hub.HandleWebSocket,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", zap.Int("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server_exited")
	return nil
}
