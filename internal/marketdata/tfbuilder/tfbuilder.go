// Package tfbuilder resamples closed base candles (1m from the broker) into
// higher timeframes. Each timeframe keeps one forming candle and a series of
// closed ones; a bucket is frozen when its last constituent minute arrives,
// when a candle for a later bucket arrives, or when Advance sees the bucket
// end plus the settle delay pass.
package tfbuilder

import (
	"time"

	"trading-signalv1/internal/model"
)

// DefaultSettle is how long after a bucket end Advance waits for a missing
// constituent candle before freezing the bucket anyway.
const DefaultSettle = 90 * time.Second

// tfState holds the forming candle and closed series for one timeframe.
type tfState struct {
	tf      model.Timeframe
	forming *model.FormingCandle
	lastTS  time.Time // last constituent merged into forming
	series  *model.Series
}

// Builder resamples base candles into multiple timeframes.
// Not goroutine-safe: the owning Book serializes access.
type Builder struct {
	base   model.Timeframe
	states []*tfState

	// Settle delays time-based freezing in Advance. Zero freezes at the
	// bucket end.
	Settle time.Duration

	// OnClosed is called for every frozen candle (optional).
	OnClosed func(tf model.Timeframe, c model.Candle)
}

// New creates a builder for the given timeframes. Each closed series keeps
// at most keep candles (0 = unbounded).
func New(base model.Timeframe, tfs []model.Timeframe, keep int) *Builder {
	states := make([]*tfState, len(tfs))
	for i, tf := range tfs {
		states[i] = &tfState{tf: tf, series: model.NewSeries(tf, keep)}
	}
	return &Builder{base: base, states: states, Settle: DefaultSettle}
}

// Add merges one closed base candle into every timeframe. A candle that
// belongs to a bucket older than the current forming one, or that does not
// advance past the last merged candle, is rejected and nothing changes.
func (b *Builder) Add(c model.Candle) error {
	for _, st := range b.states {
		bucket := st.tf.Bucket(c.TS)
		if st.forming != nil && !c.TS.After(st.lastTS) {
			return &model.InvalidCandleError{TS: c.TS, Reason: "not after last " + st.tf.String() + " constituent"}
		}
		if last, ok := st.series.Last(); ok && !bucket.After(last.TS) {
			return &model.InvalidCandleError{TS: c.TS, Reason: st.tf.String() + " bucket already closed"}
		}
	}

	for _, st := range b.states {
		bucket := st.tf.Bucket(c.TS)
		if st.forming != nil && bucket.After(st.forming.TS) {
			b.freeze(st)
		}
		if st.forming == nil {
			st.forming = model.NewForming(st.tf, bucket, c)
		} else {
			st.forming.Merge(c)
		}
		st.lastTS = c.TS

		// The last minute of the bucket completes it.
		if !c.TS.Add(b.base.Duration()).Before(st.forming.End()) {
			b.freeze(st)
		}
	}
	return nil
}

// Advance freezes forming buckets whose end plus Settle is at or before now.
// Returns the number of candles frozen.
func (b *Builder) Advance(now time.Time) int {
	n := 0
	for _, st := range b.states {
		if st.forming != nil && !now.Before(st.forming.End().Add(b.Settle)) {
			b.freeze(st)
			n++
		}
	}
	return n
}

func (b *Builder) freeze(st *tfState) {
	c := st.forming.Freeze()
	st.forming = nil
	// Buckets only move forward, so Append cannot fail here.
	if err := st.series.Append(c); err != nil {
		return
	}
	if b.OnClosed != nil {
		b.OnClosed(st.tf, c)
	}
}

func (b *Builder) state(tf model.Timeframe) *tfState {
	for _, st := range b.states {
		if st.tf == tf {
			return st
		}
	}
	return nil
}

// Series returns the live closed series for tf, or nil if tf is not built.
// Callers that hand it to another goroutine must Clone it.
func (b *Builder) Series(tf model.Timeframe) *model.Series {
	if st := b.state(tf); st != nil {
		return st.series
	}
	return nil
}

// Forming returns a copy of the forming candle for tf.
func (b *Builder) Forming(tf model.Timeframe) (model.FormingCandle, bool) {
	st := b.state(tf)
	if st == nil || st.forming == nil {
		return model.FormingCandle{}, false
	}
	return *st.forming, true
}

// TFs returns the enabled timeframes.
func (b *Builder) TFs() []model.Timeframe {
	out := make([]model.Timeframe, len(b.states))
	for i, st := range b.states {
		out[i] = st.tf
	}
	return out
}

// Reset drops all forming and closed candles.
func (b *Builder) Reset() {
	for _, st := range b.states {
		st.forming = nil
		st.lastTS = time.Time{}
		st.series.Reset()
	}
}
