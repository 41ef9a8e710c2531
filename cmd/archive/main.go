// cmd/archive downloads 1m candles from SmartConnect for a date range and
// stores them in the SQLite candle archive, so backtests and warm-up can
// run without broker access.
//
// Usage:
//
//	go run ./cmd/archive --from=2026-03-02 --to=2026-03-27
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"trading-signalv1/config"
	"trading-signalv1/internal/logger"
	"trading-signalv1/internal/marketdata/poller"
	"trading-signalv1/internal/markethours"
	sqlitestore "trading-signalv1/internal/store/sqlite"
	"trading-signalv1/pkg/smartconnect"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	token := flag.String("token", cfg.Token, "Instrument token")
	exchange := flag.String("exchange", cfg.Exchange, "Exchange")
	fromStr := flag.String("from", "", "First day, YYYY-MM-DD (required)")
	toStr := flag.String("to", "", "Last day, YYYY-MM-DD (default: today)")
	flag.Parse()

	l := logger.Init("archive", cfg.LogLevel)
	if err := cfg.RequireBroker(); err != nil {
		l.Fatal().Err(err).Msg("broker credentials")
	}
	if *fromStr == "" {
		l.Fatal().Msg("--from is required")
	}
	from, err := time.ParseInLocation("2006-01-02", *fromStr, markethours.IST)
	if err != nil {
		l.Fatal().Err(err).Msg("bad --from")
	}
	to := time.Now().In(markethours.IST)
	if *toStr != "" {
		day, err := time.ParseInLocation("2006-01-02", *toStr, markethours.IST)
		if err != nil {
			l.Fatal().Err(err).Msg("bad --to")
		}
		to = markethours.TodayClose(day)
	}
	from = markethours.SessionOpen(from)

	inst := cfg.Instrument()
	inst.Token, inst.Exchange = *token, *exchange

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		l.Fatal().Err(err).Msg("data dir")
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath, Logger: l})
	if err != nil {
		l.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer w.Close()

	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: cfg.AngelAPIKey, Logger: l})
	src := poller.NewBrokerSource(sc, poller.Credentials{
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	}, l)
	if err := src.Connect(ctx); err != nil {
		l.Fatal().Err(err).Msg("broker login failed")
	}

	// One request per day keeps each call well inside the broker's 1m span limit
	// and lets an interrupted run resume from the last stored day.
	total := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			break
		}
		if !markethours.IsTradingDay(day) {
			continue
		}
		end := markethours.TodayClose(day)
		if end.After(to) {
			end = to
		}
		candles, err := src.FetchCandles(ctx, inst, day, end)
		if err != nil {
			l.Error().Err(err).Str("day", markethours.SessionKey(day)).Msg("fetch failed")
			continue
		}
		if err := w.WriteCandles(inst, candles); err != nil {
			l.Fatal().Err(err).Msg("archive write failed")
		}
		total += len(candles)
		l.Info().Str("day", markethours.SessionKey(day)).Int("candles", len(candles)).Msg("archived")
	}
	l.Info().Int("candles", total).Str("db", *dbPath).Msg("archive complete")
}
