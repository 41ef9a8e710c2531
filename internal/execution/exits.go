package execution

import (
	"math"

	"trading-signalv1/internal/model"
)

// ExitRules manage an open paper position between entry and the end-of-day
// exits. R is the initial stop distance. Zero values disable a rule.
type ExitRules struct {
	StopLossPct     float64 // initial stop, % of the entry fill
	PartialFraction float64 // share closed at 1R, rounded down to whole lots
	TrailPct        float64 // after 1R the stop trails this % behind price
	TargetR         float64 // final target in multiples of R
	VWAPRecross     bool    // exit when the fast close crosses VWAP before 1R
}

// DefaultExitRules are a 1% stop, half out at 1R with the stop moved to
// break-even, a 0.5% trail and a 2R final target.
func DefaultExitRules() ExitRules {
	return ExitRules{
		StopLossPct:     1,
		PartialFraction: 0.5,
		TrailPct:        0.5,
		TargetR:         2,
		VWAPRecross:     true,
	}
}

// Exit reasons recorded on fills and trades.
const (
	ExitEntry        = "entry"
	ExitReverse      = "reverse"
	ExitStopLoss     = "stop_loss"
	ExitTrailingStop = "trailing_stop"
	ExitVWAPRecross  = "vwap_recross"
	ExitPartial      = "partial_1r"
	ExitTarget       = "target"
	ExitFlatten      = "flatten"
	ExitHardExit     = "hard_exit"
	ExitSessionEnd   = "session_end"
)

// management is the per-position exit state.
type management struct {
	stop        float64 // 0 = no stop
	risk        float64 // R per unit, 0 = no R-based rules
	partialDone bool
	trailing    bool
	// latest fast close and session VWAP seen since entry
	close float64
	vwap  model.Value
}

func newManagement(r ExitRules, side model.Side, entry float64, d model.Decision) management {
	m := management{close: d.Close, vwap: d.VWAP}
	if r.StopLossPct > 0 {
		m.risk = entry * r.StopLossPct / 100
		m.stop = entry - m.risk
		if side == model.SideShort {
			m.stop = entry + m.risk
		}
	}
	return m
}

// beyond reports whether price has reached level in the position's
// favour (favour=true) or against it.
func beyond(side model.Side, price, level float64, favour bool) bool {
	if (side == model.SideLong) == favour {
		return price >= level
	}
	return price <= level
}

// trail tightens the stop toward price; it never loosens.
func (m *management) trail(side model.Side, price, pct float64) {
	if !m.trailing || pct <= 0 {
		return
	}
	if side == model.SideLong {
		m.stop = math.Max(m.stop, price*(1-pct/100))
		return
	}
	if s := price * (1 + pct/100); m.stop == 0 || s < m.stop {
		m.stop = s
	}
}

// recrossed reports a fast close on the wrong side of VWAP.
func (m *management) recrossed(side model.Side) bool {
	v, ok := m.vwap.Get()
	if !ok || m.close <= 0 {
		return false
	}
	if side == model.SideLong {
		return m.close < v
	}
	return m.close > v
}

// partialQty is the 1R scale-out size: fraction of qty in whole lots, at
// least one lot, and never the whole position.
func partialQty(qty, lot int64, fraction float64) int64 {
	if lot <= 0 {
		lot = 1
	}
	if fraction <= 0 || qty < 2*lot {
		return 0
	}
	q := int64(math.Floor(float64(qty)*fraction)) / lot * lot
	if q <= 0 {
		q = lot
	}
	if q >= qty {
		return 0
	}
	return q
}
