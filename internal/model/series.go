package model

import (
	"fmt"
	"time"
)

// InvalidCandleError is returned when a candle cannot be appended to a
// series: malformed values or a timestamp that does not strictly advance.
type InvalidCandleError struct {
	TS     time.Time
	Reason string
}

func (e *InvalidCandleError) Error() string {
	return fmt.Sprintf("invalid candle at %s: %s", e.TS.Format(time.RFC3339), e.Reason)
}

// Series is an append-only run of closed candles for one instrument and
// timeframe, ordered by strictly increasing TS.
type Series struct {
	TF      Timeframe
	candles []Candle
	limit   int
}

// NewSeries creates an empty series. A positive limit keeps only the most
// recent limit candles.
func NewSeries(tf Timeframe, limit int) *Series {
	return &Series{TF: tf, limit: limit}
}

// Append validates c and adds it. On error the series is unchanged.
func (s *Series) Append(c Candle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if n := len(s.candles); n > 0 && !c.TS.After(s.candles[n-1].TS) {
		return &InvalidCandleError{
			TS:     c.TS,
			Reason: "timestamp not after " + s.candles[n-1].TS.Format(time.RFC3339),
		}
	}
	s.candles = append(s.candles, c)
	if s.limit > 0 && len(s.candles) > s.limit {
		drop := len(s.candles) - s.limit
		s.candles = append(s.candles[:0:0], s.candles[drop:]...)
	}
	return nil
}

// Len returns the number of closed candles.
func (s *Series) Len() int { return len(s.candles) }

// At returns the i-th candle.
func (s *Series) At(i int) Candle { return s.candles[i] }

// Last returns the most recent candle.
func (s *Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Candles returns a copy of the stored candles.
func (s *Series) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Closes returns the close prices in order.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Volumes returns the volumes in order.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Volume
	}
	return out
}

// Clone returns an independent copy, safe to hand to another goroutine.
func (s *Series) Clone() *Series {
	return &Series{TF: s.TF, candles: s.Candles(), limit: s.limit}
}

// Reset drops all candles.
func (s *Series) Reset() { s.candles = s.candles[:0] }
