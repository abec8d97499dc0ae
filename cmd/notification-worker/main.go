package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/junaidookay/mu-online-hub/internal/app/notificationworker"
	"github.com/junaidookay/mu-online-hub/internal/config"
	"github.com/junaidookay/mu-online-hub/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting notification-worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := notificationworker.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize notification-worker", sl.Err(err))
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		logger.Error("notification-worker stopped with error", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("notification-worker stopped gracefully")
}
