// Command auth-service serves the college-discovery auth API: signup, login,
// refresh-cookie sessions, profile and admin user management.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mukulsharnagat01/Collegedunia/internal/app"
	"github.com/Mukulsharnagat01/Collegedunia/internal/config"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("auth service exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("auth service starting",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("user_store", cfg.UserStore),
		slog.String("session_store", cfg.SessionStore),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info("auth service stopped")
	return nil
}
