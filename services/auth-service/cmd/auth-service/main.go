package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/app"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/config"
	"github.com/vasapolrittideah/credential-authority/shared/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log := logger.New("auth-service", "info", false)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start auth service")
	}

	if err := a.Run(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("auth service stopped with error")
	}
}
