// cmd/backtest replays archived 1m candles from SQLite through the same
// pipeline the live daemon runs, with a paper executor, and prints a
// summary of decisions and simulated trades.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/signals.db --from=2026-03-02 --to=2026-03-27 --speed=0
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"trading-signalv1/config"
	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/logger"
	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/sigengine"
	sqlitestore "trading-signalv1/internal/store/sqlite"
)

const dateLayout = "2006-01-02"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	token := flag.String("token", cfg.Token, "Instrument token")
	exchange := flag.String("exchange", cfg.Exchange, "Exchange")
	fromStr := flag.String("from", "", "First session to replay, YYYY-MM-DD (required)")
	toStr := flag.String("to", "", "Last session to replay, YYYY-MM-DD (default: from)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	warmup := flag.Int("warmup", 7, "Calendar days of history loaded before --from")
	record := flag.Bool("record", false, "Write decisions and paper fills to the database")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	l := logger.Init("backtest", level)

	from, to, err := parseRange(*fromStr, *toStr)
	if err != nil {
		l.Fatal().Err(err).Msg("bad date range")
	}
	params, err := cfg.StrategyParams()
	if err != nil {
		l.Fatal().Err(err).Msg("strategy params")
	}
	sigengine.LogParams(l, params)
	gateCfg, err := cfg.GateConfig()
	if err != nil {
		l.Fatal().Err(err).Msg("session windows")
	}

	inst := cfg.Instrument()
	inst.Token, inst.Exchange = *token, *exchange

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		l.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer reader.Close()

	bc := sigengine.BacktestConfig{
		Instrument: inst,
		Params:     params,
		Gate:       gateCfg,
		Book:       book.Config{Keep: cfg.KeepBars, Settle: cfg.SettleDelay},
		Paper:      cfg.PaperConfig(),
		From:       from,
		To:         to,
		WarmupDays: *warmup,
		Speed:      *speed,
		Equity:     cfg.InitialEquity,
	}
	bc.Paper.Instrument = inst
	if limits := cfg.RiskLimits(); limits != (execution.RiskLimits{}) {
		bc.Risk = &limits
	}
	if *record {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath, Logger: l})
		if err != nil {
			l.Fatal().Err(err).Msg("sqlite writer")
		}
		defer w.Close()
		j, err := execution.NewJournal(*dbPath, "mtf_pullback_backtest", l)
		if err != nil {
			l.Fatal().Err(err).Msg("trade journal")
		}
		defer j.Close()
		bc.Sinks = []model.DecisionSink{w}
		bc.Journal = j
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	start := time.Now()
	rep, err := sigengine.Backtest(ctx, reader, bc, l)
	if err != nil {
		l.Fatal().Err(err).Msg("backtest failed")
	}
	printReport(inst, from, to, rep, time.Since(start))
}

// parseRange turns YYYY-MM-DD bounds into [from open, to close] in IST.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from is required")
	}
	if toStr == "" {
		toStr = fromStr
	}
	from, err := time.ParseInLocation(dateLayout, fromStr, markethours.IST)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
	}
	to, err := time.ParseInLocation(dateLayout, toStr, markethours.IST)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return markethours.SessionOpen(from), markethours.TodayClose(to), nil
}

func printReport(inst model.Instrument, from, to time.Time, rep sigengine.Report, took time.Duration) {
	s := rep.Summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║            BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Instrument:      %-22s ║\n", inst.Key())
	fmt.Printf("║  Range:           %-22s ║\n", from.Format(dateLayout)+" .. "+to.Format(dateLayout))
	fmt.Printf("║  Sessions:        %-22d ║\n", rep.Replay.Sessions)
	fmt.Printf("║  Candles:         %-22d ║\n", rep.Replay.Candles)
	fmt.Printf("║  Rejected:        %-22d ║\n", rep.Replay.Rejected)
	fmt.Printf("║  Warm-up candles: %-22d ║\n", rep.Warmup)
	fmt.Printf("║  Decisions:       %-22d ║\n", rep.Decisions)
	fmt.Printf("║  BUY / SELL:      %-22s ║\n", fmt.Sprintf("%d / %d", rep.Actions[model.ActionBuy], rep.Actions[model.ActionSell]))
	fmt.Printf("║  Trades:          %-22d ║\n", s.Trades)
	fmt.Printf("║  Win rate:        %-22s ║\n", fmt.Sprintf("%.1f%%", s.WinRate()*100))
	fmt.Printf("║  Gross P&L:       %-22.2f ║\n", s.Gross)
	fmt.Printf("║  Costs:           %-22.2f ║\n", s.Costs)
	fmt.Printf("║  Net P&L:         %-22.2f ║\n", s.Net)
	fmt.Printf("║  Took:            %-22s ║\n", took.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════════╝")

	if len(rep.Holds) > 0 {
		fmt.Println("\nHOLD reasons:")
		for _, r := range []model.HoldReason{
			model.ReasonOutsideWindow, model.ReasonInsufficientData, model.ReasonNeutralBias,
			model.ReasonVWAPFilter, model.ReasonRSIFilter, model.ReasonNoSetup, model.ReasonDuplicate,
		} {
			if n := rep.Holds[r]; n > 0 {
				fmt.Printf("  %-18s %d\n", r, n)
			}
		}
	}
	if len(rep.Trades) > 0 {
		fmt.Println("\nTrades:")
		for _, t := range rep.Trades {
			fmt.Printf("  %s %-5s %8.2f -> %8.2f  %-11s net %9.2f\n",
				t.EntryTime.In(markethours.IST).Format("2006-01-02 15:04"), t.Side,
				t.EntryPrice, t.ExitPrice, t.ExitReason, t.Net)
		}
	}
}
