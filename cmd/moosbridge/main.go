package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/moosbridge/adapter/cli"
	"github.com/felixgeelhaar/moosbridge/pkg/config"
	"github.com/felixgeelhaar/moosbridge/pkg/observability"
)

func main() {
	// Cancelled on SIGINT/SIGTERM, which stops a running app loop.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFromEnv().Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logCfg := observability.LogConfigFor(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	logCfg.Version = cli.Version
	logger := observability.NewLogger(logCfg)
	cli.SetLogger(logger)
	cli.SetConfig(cfg)

	cli.Execute(ctx)
}
