package book

import (
	"time"

	"trading-signalv1/internal/indicator"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/strategy"
)

// FormingPreview is what the indicators would read if the forming bucket
// closed at its current price. Display only.
type FormingPreview struct {
	Timeframe string                 `json:"timeframe"`
	Start     time.Time              `json:"start"`
	Minutes   int                    `json:"minutes"`
	Close     float64                `json:"close"`
	Values    map[string]model.Value `json:"values"`
}

// Status is the live view of the book served to dashboards.
type Status struct {
	LastCandle     *model.Candle    `json:"last_candle,omitempty"`
	SessionCandles int              `json:"session_candles"`
	Forming        []FormingPreview `json:"forming,omitempty"`
}

// Preview runs the strategy's indicators over each timeframe's closed bars
// plus its forming bucket. Timeframes with no forming bucket are skipped.
func (b *Book) Preview(p strategy.Params) []FormingPreview {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []FormingPreview
	for _, tf := range b.builder.TFs() {
		f, ok := b.builder.Forming(tf)
		if !ok {
			continue
		}
		specs := p.FastSpecs()
		if tf == b.cfg.Slow {
			specs = p.SlowSpecs()
		}
		eng, err := indicator.NewEngine(specs)
		if err != nil {
			continue
		}
		out = append(out, FormingPreview{
			Timeframe: tf.String(),
			Start:     f.TS,
			Minutes:   f.Count(),
			Close:     f.LastClose(),
			Values:    eng.Preview(b.builder.Series(tf).Candles(), f.Freeze()),
		})
	}
	return out
}

// Status returns the last candle, the session count and the forming previews.
func (b *Book) Status(p strategy.Params) Status {
	st := Status{Forming: b.Preview(p)}
	if c, ok := b.LastCandle(); ok {
		st.LastCandle = &c
	}
	st.SessionCandles = b.SessionCandles()
	return st
}
