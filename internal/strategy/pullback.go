package strategy

import (
	"math"

	"trading-signalv1/internal/model"
)

// PullbackCheck identifies one step of the pullback validation.
type PullbackCheck int

const (
	CheckNone PullbackCheck = iota
	CheckInsufficientData
	CheckTrendAlignment
	CheckCandleDirection
	CheckCloseVsEMA
	CheckBreakout
	CheckPullbackTouch
	CheckVolumeSurge
)

func (c PullbackCheck) String() string {
	switch c {
	case CheckInsufficientData:
		return "insufficient_data"
	case CheckTrendAlignment:
		return "trend_alignment"
	case CheckCandleDirection:
		return "candle_direction"
	case CheckCloseVsEMA:
		return "close_vs_ema"
	case CheckBreakout:
		return "breakout"
	case CheckPullbackTouch:
		return "pullback_touch"
	case CheckVolumeSurge:
		return "volume_surge"
	default:
		return ""
	}
}

// PullbackInput is everything the validator looks at.
type PullbackInput struct {
	Side      model.Side
	EMAFast   model.Value // EMA9 on the fast timeframe
	EMASlow   model.Value // EMA21
	Candles   []model.Candle
	Tolerance float64
	Surge     bool
}

// PullbackResult is pass/fail plus the first failing check.
type PullbackResult struct {
	Pass   bool
	Failed PullbackCheck
}

func fail(c PullbackCheck) PullbackResult { return PullbackResult{Failed: c} }

// ValidatePullback runs the ordered checks for a pullback-and-breakout entry
// on the last two closed candles, stopping at the first failure.
//
// Long:  ema9 >= ema21, bullish bar, close > ema9, close > prev high,
// current or previous low within tolerance of ema9, volume surge.
// Short: the mirror, using highs and prev low.
func ValidatePullback(in PullbackInput) PullbackResult {
	fast, ok1 := in.EMAFast.Get()
	slow, ok2 := in.EMASlow.Get()
	if !ok1 || !ok2 || len(in.Candles) < 2 {
		return fail(CheckInsufficientData)
	}
	cur := in.Candles[len(in.Candles)-1]
	prev := in.Candles[len(in.Candles)-2]
	tol := in.Tolerance

	switch in.Side {
	case model.SideLong:
		if fast < slow {
			return fail(CheckTrendAlignment)
		}
		if !cur.Bullish() {
			return fail(CheckCandleDirection)
		}
		if cur.Close <= fast {
			return fail(CheckCloseVsEMA)
		}
		if cur.Close <= prev.High {
			return fail(CheckBreakout)
		}
		if !(cur.Low <= fast+tol || prev.Low <= fast+tol) {
			return fail(CheckPullbackTouch)
		}
	case model.SideShort:
		if fast > slow {
			return fail(CheckTrendAlignment)
		}
		if !cur.Bearish() {
			return fail(CheckCandleDirection)
		}
		if cur.Close >= fast {
			return fail(CheckCloseVsEMA)
		}
		if cur.Close >= prev.Low {
			return fail(CheckBreakout)
		}
		if !(cur.High >= fast-tol || prev.High >= fast-tol) {
			return fail(CheckPullbackTouch)
		}
	default:
		return fail(CheckTrendAlignment)
	}

	if !in.Surge {
		return fail(CheckVolumeSurge)
	}
	return PullbackResult{Pass: true}
}

// Tolerance returns the pullback touch tolerance in points for the given ATR.
// In ATR mode an invalid ATR falls back to the base points.
func (p Params) Tolerance(atr model.Value) float64 {
	if p.ToleranceMode == ToleranceFixed {
		return p.PullbackTolerancePoints
	}
	a, ok := atr.Get()
	if !ok {
		return p.PullbackTolerancePoints
	}
	return math.Max(p.PullbackTolerancePoints, a*p.PullbackATRFactor)
}
