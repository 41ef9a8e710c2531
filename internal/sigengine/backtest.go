package sigengine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/marketdata/replay"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/metrics"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/strategy"
)

// BacktestConfig describes one replay of archived candles.
type BacktestConfig struct {
	Instrument model.Instrument
	Params     strategy.Params
	Gate       markethours.GateConfig
	Book       book.Config
	Paper      execution.PaperConfig

	From, To time.Time
	// WarmupDays of candles before From are loaded into the book without
	// evaluating, so indicators are warm on the first replayed bar.
	WarmupDays int
	Speed      float64 // 0 = as fast as possible

	Risk    *execution.RiskLimits  // optional
	Equity  float64                // starting equity for the risk guard
	Journal execution.FillRecorder // optional
	Sinks   []model.DecisionSink   // optional extra sinks, e.g. the SQLite journal
	Metrics *metrics.Metrics       // optional
}

// Report is the outcome of a backtest.
type Report struct {
	Replay    replay.Stats
	Warmup    int
	Decisions int
	Actions   map[model.Action]int
	Holds     map[model.HoldReason]int
	Trades    []execution.Trade
	Summary   execution.Summary
}

// tally counts decisions as a sink.
type tally struct {
	n       int
	actions map[model.Action]int
	holds   map[model.HoldReason]int
}

func (t *tally) Name() string { return "tally" }

func (t *tally) Publish(_ context.Context, d model.Decision) error {
	t.n++
	t.actions[d.Action]++
	if d.Action == model.ActionHold {
		t.holds[d.Reason]++
	}
	return nil
}

// Backtest replays src through a fresh pipeline with a paper executor.
func Backtest(ctx context.Context, src replay.Source, cfg BacktestConfig, l zerolog.Logger) (Report, error) {
	var rep Report
	if cfg.To.Before(cfg.From) {
		return rep, errors.New("backtest: to is before from")
	}
	gate, err := markethours.NewGate(cfg.Gate)
	if err != nil {
		return rep, err
	}
	eng, err := strategy.NewEngine(cfg.Params, gate, strategy.NewMemoryDeduper())
	if err != nil {
		return rep, err
	}
	bk := book.New(cfg.Instrument, cfg.Book)

	if cfg.Paper.Instrument.Token == "" {
		cfg.Paper.Instrument = cfg.Instrument
	}
	paper := execution.NewPaperExecutor(cfg.Paper, gate, cfg.Journal, l)
	if cfg.Risk != nil {
		paper.Risk = execution.NewRiskGuard(*cfg.Risk, cfg.Equity)
	}
	t := &tally{actions: make(map[model.Action]int), holds: make(map[model.HoldReason]int)}
	p := New(bk, eng, Options{
		Sinks:    append(append([]model.DecisionSink{}, cfg.Sinks...), t),
		Executor: paper,
		Metrics:  cfg.Metrics,
		Logger:   l,
	})

	if cfg.WarmupDays > 0 {
		from := markethours.SessionOpen(cfg.From).AddDate(0, 0, -cfg.WarmupDays)
		history, err := src.ReadCandles(cfg.Instrument, from, cfg.From.Add(-time.Nanosecond))
		if err != nil {
			return rep, err
		}
		for _, c := range history {
			if bk.Ingest(c) == nil {
				rep.Warmup++
			}
		}
	}

	rep.Replay, err = replay.New(src, l).Run(ctx, cfg.Instrument, cfg.From, cfg.To, cfg.Speed, p.Ingest)
	if err != nil {
		return rep, err
	}
	// Close anything still open at the end of the tape.
	if c, ok := bk.LastCandle(); ok {
		paper.OnClock(ctx, markethours.SessionOpen(c.TS).AddDate(0, 0, 1), c.Close)
	}

	rep.Decisions = t.n
	rep.Actions = t.actions
	rep.Holds = t.holds
	rep.Trades = paper.Trades()
	rep.Summary = paper.Summary()
	return rep, nil
}
