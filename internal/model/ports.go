package model

import (
	"context"
	"time"
)

// ── Ports ──
// These interfaces keep the pipeline independent of the broker and of the
// concrete stores (SQLite, Redis, Kafka).

// CandleSource fetches 1m candles for an instrument, typically from the broker.
type CandleSource interface {
	// FetchCandles returns bars with from <= TS <= to, oldest first.
	FetchCandles(ctx context.Context, inst Instrument, from, to time.Time) ([]Candle, error)
}

// CandleArchive persists and reloads 1m candles for replay.
type CandleArchive interface {
	WriteCandles(inst Instrument, candles []Candle) error
	ReadCandles(inst Instrument, from, to time.Time) ([]Candle, error)
}

// DecisionSink receives every decision the pipeline produces. Sinks filter
// for themselves (most only care about actionable decisions).
type DecisionSink interface {
	Name() string
	Publish(ctx context.Context, d Decision) error
}
