package indicator

import (
	"time"

	"trading-signalv1/internal/model"
)

// VWAP is the session volume-weighted average of typical price, reset when
// the session date (in loc) changes. With zero cumulative volume it falls
// back to the mean of the closes seen this session.
type VWAP struct {
	loc      *time.Location
	session  string
	pv       float64
	vol      float64
	closeSum float64
	n        int
}

// NewVWAP creates a session VWAP. loc decides where the session day rolls.
func NewVWAP(loc *time.Location) *VWAP {
	if loc == nil {
		loc = time.UTC
	}
	return &VWAP{loc: loc}
}

func (v *VWAP) Name() string { return "VWAP" }

func (v *VWAP) Update(c model.Candle) {
	day := c.TS.In(v.loc).Format("2006-01-02")
	if day != v.session {
		v.Reset()
		v.session = day
	}
	v.pv += c.TypicalPrice() * c.Volume
	v.vol += c.Volume
	v.closeSum += c.Close
	v.n++
}

func (v *VWAP) Value() model.Value {
	return vwapOf(v.pv, v.vol, v.closeSum, v.n)
}

func (v *VWAP) Ready() bool { return v.n > 0 }

// Session returns the date key of the current session.
func (v *VWAP) Session() string { return v.session }

// Reset clears the running sums.
func (v *VWAP) Reset() {
	v.session = ""
	v.pv, v.vol, v.closeSum, v.n = 0, 0, 0, 0
}

func vwapOf(pv, vol, closeSum float64, n int) model.Value {
	switch {
	case n == 0:
		return model.None()
	case vol == 0:
		return model.Some(closeSum / float64(n))
	}
	return model.Some(pv / vol)
}
