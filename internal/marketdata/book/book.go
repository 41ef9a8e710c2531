// Package book is the data layer for one instrument: it validates incoming
// 1m candles, resamples them into the fast and slow timeframes, keeps the
// session VWAP and hands immutable snapshots to the signal engine.
package book

import (
	"sync"
	"time"

	"trading-signalv1/internal/indicator"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/marketdata/tfbuilder"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/strategy"
)

// Config sizes the book.
type Config struct {
	Fast model.Timeframe // default 5m
	Slow model.Timeframe // default 15m
	Keep int             // closed bars kept per timeframe, default 150
	// Settle is passed to the resampler; see tfbuilder.DefaultSettle.
	Settle time.Duration
}

// DefaultConfig keeps 150 bars of 5m and 15m.
func DefaultConfig() Config {
	return Config{Fast: model.TF5m, Slow: model.TF15m, Keep: 150, Settle: tfbuilder.DefaultSettle}
}

// Book is the single writer of the candle series. All methods are safe for
// concurrent use; readers get copies.
type Book struct {
	mu      sync.RWMutex
	inst    model.Instrument
	cfg     Config
	builder *tfbuilder.Builder
	vwap    *indicator.VWAP
	lastTS  time.Time
	last    model.Candle
	base    int // 1m candles ingested this session

	// OnClosed is called for each frozen fast or slow candle (optional).
	// It runs under the book lock and must not call back into the Book.
	OnClosed func(tf model.Timeframe, c model.Candle)
}

// New creates an empty book for inst.
func New(inst model.Instrument, cfg Config) *Book {
	if cfg.Fast == 0 {
		cfg.Fast = model.TF5m
	}
	if cfg.Slow == 0 {
		cfg.Slow = model.TF15m
	}
	b := &Book{
		inst:    inst,
		cfg:     cfg,
		builder: tfbuilder.New(model.TF1m, []model.Timeframe{cfg.Fast, cfg.Slow}, cfg.Keep),
		vwap:    indicator.NewVWAP(markethours.IST),
	}
	b.builder.Settle = cfg.Settle
	b.builder.OnClosed = func(tf model.Timeframe, c model.Candle) {
		if b.OnClosed != nil {
			b.OnClosed(tf, c)
		}
	}
	return b
}

// Instrument returns the instrument this book tracks.
func (b *Book) Instrument() model.Instrument { return b.inst }

// Ingest validates and adds one closed 1m candle. Rejected candles return
// *model.InvalidCandleError and leave the book unchanged.
func (b *Book) Ingest(c model.Candle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.lastTS.IsZero() && !c.TS.After(b.lastTS) {
		return &model.InvalidCandleError{TS: c.TS, Reason: "timestamp not after " + b.lastTS.Format(time.RFC3339)}
	}
	if err := b.builder.Add(c); err != nil {
		return err
	}
	if markethours.SessionKey(c.TS) != b.vwap.Session() {
		b.base = 0
	}
	b.vwap.Update(c)
	b.lastTS = c.TS
	b.last = c
	b.base++
	return nil
}

// Advance freezes buckets whose end has passed (plus the settle delay).
func (b *Book) Advance(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builder.Advance(now)
}

// LastTS is the timestamp of the last ingested 1m candle.
func (b *Book) LastTS() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTS
}

// LastCandle is the last ingested 1m candle.
func (b *Book) LastCandle() (model.Candle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, !b.lastTS.IsZero()
}

// VWAP is the session VWAP as of the last ingested candle. It is invalid
// once now has moved into a session with no candles yet.
func (b *Book) VWAP(now time.Time) model.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vwapAt(now)
}

func (b *Book) vwapAt(now time.Time) model.Value {
	if b.vwap.Session() != markethours.SessionKey(now) {
		return model.None()
	}
	return b.vwap.Value()
}

// Snapshot returns a copy of the closed series for tf.
func (b *Book) Snapshot(tf model.Timeframe) *model.Series {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s := b.builder.Series(tf); s != nil {
		return s.Clone()
	}
	return model.NewSeries(tf, 0)
}

// SessionCandles is the number of 1m candles ingested in the current session.
func (b *Book) SessionCandles() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.base
}

// Input builds an engine input from the closed series as of now.
func (b *Book) Input(now time.Time, p strategy.Params) (strategy.Input, error) {
	b.mu.RLock()
	slow := b.builder.Series(b.cfg.Slow).Clone()
	fast := b.builder.Series(b.cfg.Fast).Clone()
	vwap := b.vwapAt(now)
	b.mu.RUnlock()

	in, err := strategy.BuildInput(now, slow, fast, vwap, p)
	if err != nil {
		return strategy.Input{}, err
	}
	in.Token = b.inst.Token
	in.Exchange = b.inst.Exchange
	return in, nil
}

// Reset drops every candle and the VWAP state.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builder.Reset()
	b.vwap.Reset()
	b.lastTS = time.Time{}
	b.last = model.Candle{}
	b.base = 0
}
