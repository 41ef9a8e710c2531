package indicator

import (
	"math"

	"trading-signalv1/internal/model"
)

// ATR is Wilder's Average True Range. True range starts at the second
// candle, so the first value appears after period+1 candles.
type ATR struct {
	period    int
	tr        *SMMA
	prevClose float64
	seen      bool
}

// NewATR creates an ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, tr: NewSMMA(period)}
}

func (a *ATR) Name() string { return name("ATR", a.period) }

func (a *ATR) Update(c model.Candle) {
	if a.seen {
		a.tr.Add(TrueRange(c, a.prevClose))
	}
	a.prevClose = c.Close
	a.seen = true
}

func (a *ATR) Value() model.Value { return a.tr.Value() }
func (a *ATR) Ready() bool        { return a.tr.Ready() }

// Peek computes what Value() would be with an additional candle without mutating state.
func (a *ATR) Peek(c model.Candle) model.Value {
	if !a.seen {
		return model.None()
	}
	return a.tr.peekRaw(TrueRange(c, a.prevClose))
}

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.tr.Reset()
	a.prevClose = 0
	a.seen = false
}

// TrueRange is max(high-low, |high-prevClose|, |prevClose-low|).
func TrueRange(c model.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(prevClose-c.Low)))
}
