// cmd/signald is the live signal daemon: it polls 1m candles from Angel One,
// evaluates the multi-timeframe pullback strategy on every poll and
// publishes decisions to SQLite, Redis, Kafka, WebSocket clients and alerts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"trading-signalv1/config"
	"trading-signalv1/internal/logger"
	"trading-signalv1/internal/sigengine"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	l := logger.Init("signald", cfg.LogLevel)
	if err := cfg.RequireBroker(); err != nil {
		l.Fatal().Err(err).Msg("broker credentials")
	}

	svc, err := sigengine.NewService(cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("init failed")
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		l.Error().Err(err).Msg("fatal")
		svc.Close()
		os.Exit(1)
	}
	l.Info().Msg("stopped")
}
