package strategy

import "trading-signalv1/internal/model"

// BiasReading is the trend classification plus the inputs that produced it.
type BiasReading struct {
	Bias        model.Bias  `json:"bias"`
	EMAFast     model.Value `json:"ema_fast"`
	EMASlow     model.Value `json:"ema_slow"`
	EMAFastPrev model.Value `json:"ema_fast_prev"`
	EMASlowPrev model.Value `json:"ema_slow_prev"`
	Close       model.Value `json:"close"`
	VWAP        model.Value `json:"vwap"`
}

// EvaluateBias classifies the slow-timeframe trend.
//
// Bullish requires the fast EMA above the slow one and not falling against
// its own previous value, with close at or above VWAP. Bearish mirrors it but
// compares the fast EMA against the previous slow EMA. Any invalid input
// yields neutral. Previous values are the last valid entries before the
// latest index.
func EvaluateBias(emaFast, emaSlow []model.Value, lastClose, vwap model.Value) BiasReading {
	r := BiasReading{
		EMAFast:     model.LastValue(emaFast),
		EMASlow:     model.LastValue(emaSlow),
		EMAFastPrev: model.PrevValid(emaFast),
		EMASlowPrev: model.PrevValid(emaSlow),
		Close:       lastClose,
		VWAP:        vwap,
	}

	fast, ok1 := r.EMAFast.Get()
	slow, ok2 := r.EMASlow.Get()
	fastPrev, ok3 := r.EMAFastPrev.Get()
	slowPrev, ok4 := r.EMASlowPrev.Get()
	c, ok5 := lastClose.Get()
	vw, ok6 := vwap.Get()
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		r.Bias = model.BiasNeutral
		return r
	}

	switch {
	case fast > slow && fast >= fastPrev && c >= vw:
		r.Bias = model.BiasBullish
	case fast < slow && fast <= slowPrev && c <= vw:
		r.Bias = model.BiasBearish
	default:
		r.Bias = model.BiasNeutral
	}
	return r
}
