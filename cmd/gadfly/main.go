package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/gadfly/adapter/cli"
	"github.com/felixgeelhaar/gadfly/adapter/cli/ledger"
	"github.com/felixgeelhaar/gadfly/adapter/cli/nag"
	"github.com/felixgeelhaar/gadfly/adapter/cli/redemption"
	"github.com/felixgeelhaar/gadfly/internal/app"
	"github.com/felixgeelhaar/gadfly/pkg/config"
	"github.com/felixgeelhaar/gadfly/pkg/observability"
)

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
		ServiceName: "gadfly",
	})
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	cli.SetApp(cli.NewApp(container))

	cli.AddCommand(nag.Cmd)
	cli.AddCommand(ledger.Cmd)
	cli.AddCommand(redemption.Cmd)

	cli.Execute(ctx)
}
