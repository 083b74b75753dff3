package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/gadfly/adapter/api"
	"github.com/felixgeelhaar/gadfly/internal/app"
	"github.com/felixgeelhaar/gadfly/pkg/config"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

const statsInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       observability.LogLevel(cfg.LogLevel),
		Format:      observability.LogFormat(cfg.LogFormat),
		ServiceName: "gadfly-worker",
	})
	logger.Info("starting gadfly worker", "store", cfg.Store, "env", cfg.AppEnv)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	handler := api.NewHandler(api.HandlerConfig{
		Engine:     container.Engine,
		TaskEvents: container.TaskEvents,
		Metrics:    container.Metrics,
		Logger:     logger,
	})
	srvCfg := api.DefaultServerConfig()
	srvCfg.Addr = cfg.HTTPAddr
	server := api.NewServer(srvCfg, handler, container.Health, logger)

	worker, err := app.NewWorker(container, server.Handler())
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	go logStats(ctx, container, logger)

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func logStats(ctx context.Context, c *app.Container, logger *slog.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.OutboxProcessor.GetStats()
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
				"lag_seconds", stats.LagSeconds,
			)
		}
	}
}
