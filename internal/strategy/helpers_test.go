package strategy

import (
	"testing"
	"time"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

var sessionDay = time.Date(2026, 3, 2, 0, 0, 0, 0, markethours.IST)

func at(h, m, s int) time.Time {
	return sessionDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func ohlcv(o, h, l, c, v float64) model.Candle {
	return model.Candle{Open: o, High: h, Low: l, Close: c, Volume: v}
}

// setup is a hand-built evaluation: the last two fast candles, the latest
// indicator readings and the slow-timeframe trend inputs.
type setup struct {
	now time.Time

	ema20, ema20Prev, ema50, ema50Prev float64
	slowClose                          float64
	vwap                               model.Value

	ema9, ema21 float64
	rsi, atr    model.Value
	prev, cur   model.Candle
	priorVolume float64
	fastBars    int
}

// bullish is a textbook long: rising EMA20 above EMA50 on 15m, close above
// VWAP, bullish breakout bar after a dip to EMA9 on 5m with a volume surge.
func bullish() setup {
	return setup{
		now:   at(10, 30, 5),
		ema20: 22010, ema20Prev: 22005, ema50: 21990, ema50Prev: 21988,
		slowClose: 22030,
		vwap:      model.Some(22000),
		ema9:      22015, ema21: 22005,
		rsi:         model.Some(60),
		atr:         model.Some(12),
		prev:        ohlcv(22020, 22025, 22012, 22018, 1000),
		cur:         ohlcv(22016, 22035, 22014, 22030, 1500),
		priorVolume: 1000,
		fastBars:    25,
	}
}

// bearish mirrors bullish.
func bearish() setup {
	return setup{
		now:   at(14, 0, 5),
		ema20: 21990, ema20Prev: 21995, ema50: 22010, ema50Prev: 22000,
		slowClose: 21970,
		vwap:      model.Some(22000),
		ema9:      21985, ema21: 21995,
		rsi:         model.Some(40),
		atr:         model.Some(12),
		prev:        ohlcv(21980, 21988, 21975, 21982, 1000),
		cur:         ohlcv(21984, 21986, 21965, 21970, 1500),
		priorVolume: 1000,
		fastBars:    25,
	}
}

func (s setup) input(t *testing.T) Input {
	t.Helper()
	n := s.fastBars
	fast := model.NewSeries(model.TF5m, 0)
	last := model.TF5m.Bucket(s.now).Add(-5 * time.Minute)
	for i := 0; i < n; i++ {
		var c model.Candle
		switch i {
		case n - 1:
			c = s.cur
		case n - 2:
			c = s.prev
		default:
			c = ohlcv(22000, 22001, 21999, 22000, s.priorVolume)
		}
		c.TS = last.Add(-time.Duration(n-1-i) * 5 * time.Minute)
		if err := fast.Append(c); err != nil {
			t.Fatalf("fast append %d: %v", i, err)
		}
	}

	slow := model.NewSeries(model.TF15m, 0)
	for i := 0; i < 3; i++ {
		c := ohlcv(s.slowClose, s.slowClose+1, s.slowClose-1, s.slowClose, 3000)
		c.TS = last.Add(-time.Duration(3-i) * 15 * time.Minute)
		if err := slow.Append(c); err != nil {
			t.Fatalf("slow append %d: %v", i, err)
		}
	}

	fastSeries := func(v model.Value) []model.Value {
		out := make([]model.Value, n)
		out[n-1] = v
		return out
	}
	return Input{
		Now:  s.now,
		Slow: slow,
		Fast: fast,
		VWAP: s.vwap,
		Ind: Indicators{
			TrendFast: []model.Value{model.None(), model.Some(s.ema20Prev), model.Some(s.ema20)},
			TrendSlow: []model.Value{model.None(), model.Some(s.ema50Prev), model.Some(s.ema50)},
			EntryFast: fastSeries(model.Some(s.ema9)),
			EntrySlow: fastSeries(model.Some(s.ema21)),
			RSI:       fastSeries(s.rsi),
			ATR:       fastSeries(s.atr),
		},
		Token:    "99926000",
		Exchange: "NSE",
	}
}

func newTestEngine(t *testing.T, p Params, d Deduper) *Engine {
	t.Helper()
	gate, err := markethours.NewGate(markethours.DefaultGateConfig())
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(p, gate, d)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}
