// Package replay drives archived 1m candles through a sink in timestamp
// order, simulating the live clock so that a backtest takes the same path
// as the daemon.
package replay

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

// maxGap caps the simulated wait between two candles when throttling.
const maxGap = 5 * time.Second

// Source reads archived 1m candles. The SQLite reader and writer implement it.
type Source interface {
	ReadCandles(inst model.Instrument, from, to time.Time) ([]model.Candle, error)
}

// Sink receives each candle with the simulated wall clock: the instant the
// candle's minute closed.
type Sink func(ctx context.Context, c model.Candle, now time.Time) error

// Stats summarizes a replay run.
type Stats struct {
	Candles  int
	Rejected int
	Sessions int
}

// Replayer replays archived candles at a configurable speed multiplier.
type Replayer struct {
	src Source
	log zerolog.Logger
}

// New creates a Replayer backed by src.
func New(src Source, l zerolog.Logger) *Replayer {
	return &Replayer{src: src, log: l.With().Str("component", "replay").Logger()}
}

// Run replays candles for inst with from <= TS <= to. speed controls the
// playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// Candles the sink rejects with *model.InvalidCandleError are counted and
// skipped; any other sink error stops the run.
func (r *Replayer) Run(ctx context.Context, inst model.Instrument, from, to time.Time, speed float64, sink Sink) (Stats, error) {
	var st Stats
	candles, err := r.src.ReadCandles(inst, from, to)
	if err != nil {
		return st, err
	}
	if len(candles) == 0 {
		r.log.Warn().Time("from", from).Time("to", to).Msg("no candles found")
		return st, nil
	}

	slices.SortStableFunc(candles, func(a, b model.Candle) int { return a.TS.Compare(b.TS) })
	r.log.Info().Int("candles", len(candles)).Float64("speed", speed).Msg("loaded candles")

	var prevTS time.Time
	session := ""
	for _, c := range candles {
		select {
		case <-ctx.Done():
			r.log.Info().Int("emitted", st.Candles).Msg("cancelled")
			return st, ctx.Err()
		default:
		}

		// Simulate time gaps between candles
		if speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return st, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = c.TS

		if key := markethours.SessionKey(c.TS); key != session {
			session = key
			st.Sessions++
		}

		err := sink(ctx, c, c.TS.Add(time.Minute))
		var invalid *model.InvalidCandleError
		switch {
		case err == nil:
			st.Candles++
		case errors.As(err, &invalid):
			st.Rejected++
			r.log.Warn().Err(err).Msg("rejected candle")
		default:
			return st, err
		}
	}

	r.log.Info().Int("candles", st.Candles).Int("rejected", st.Rejected).Int("sessions", st.Sessions).Msg("completed")
	return st, nil
}
