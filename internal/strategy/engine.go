// Package strategy is the signal decision kernel: trend bias on the slow
// timeframe, pullback confirmation on the fast one, an RSI filter, session
// window gating and per-bar deduplication.
//
// The engine never fetches data, places orders or logs. It is invoked the
// same way by the live loop and by replay, so equal inputs give equal
// decisions.
package strategy

import (
	"trading-signalv1/internal/indicator"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

// Engine evaluates Inputs into Decisions.
type Engine struct {
	params Params
	gate   *markethours.Gate
	dedup  Deduper
}

// NewEngine validates params and wires the gate and deduper. A nil deduper
// means NoopDeduper.
func NewEngine(params Params, gate *markethours.Gate, dedup Deduper) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, &ConfigError{Field: "gate", Reason: "required"}
	}
	if dedup == nil {
		dedup = NoopDeduper{}
	}
	return &Engine{params: params, gate: gate, dedup: dedup}, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// Gate returns the session window gate.
func (e *Engine) Gate() *markethours.Gate { return e.gate }

// ResetSession clears the dedup marker. Call at session start.
func (e *Engine) ResetSession() { e.dedup.Reset() }

// Evaluate runs the decision pipeline without touching dedup state.
// Repeated calls with the same input return the same decision.
func (e *Engine) Evaluate(in Input) model.Decision {
	d := model.Decision{
		Action:   model.ActionHold,
		BarID:    in.BarID(),
		TS:       in.Now,
		VWAP:     in.VWAP,
		Token:    in.Token,
		Exchange: in.Exchange,
	}

	if !e.gate.AllowsEntry(in.Now) {
		d.Reason = model.ReasonOutsideWindow
		return d
	}
	if !in.aligned() || in.Fast.Len() < e.params.MinFastBars || in.Fast.Len() < 2 || in.Slow.Len() == 0 {
		d.Reason = model.ReasonInsufficientData
		return d
	}

	slowLast, _ := in.Slow.Last()
	fastLast, _ := in.Fast.Last()
	d.Close = fastLast.Close
	d.RSI = model.LastValue(in.Ind.RSI)
	d.Tolerance = e.params.Tolerance(model.LastValue(in.Ind.ATR))

	reading := EvaluateBias(in.Ind.TrendFast, in.Ind.TrendSlow, model.Some(slowLast.Close), in.VWAP)
	d.Bias = reading.Bias

	var side model.Side
	switch reading.Bias {
	case model.BiasBullish:
		side = model.SideLong
		if vw, ok := in.VWAP.Get(); !ok || fastLast.Close < vw {
			d.Reason = model.ReasonVWAPFilter
			return d
		}
		if rsi, ok := d.RSI.Get(); !ok || rsi < e.params.RSIBullThreshold {
			d.Reason = model.ReasonRSIFilter
			return d
		}
	case model.BiasBearish:
		side = model.SideShort
		if vw, ok := in.VWAP.Get(); !ok || fastLast.Close > vw {
			d.Reason = model.ReasonVWAPFilter
			return d
		}
		if rsi, ok := d.RSI.Get(); !ok || rsi > e.params.RSIBearThreshold {
			d.Reason = model.ReasonRSIFilter
			return d
		}
	default:
		d.Reason = model.ReasonNeutralBias
		return d
	}

	candles := in.Fast.Candles()
	volumes := in.Fast.Volumes()
	n := len(volumes)
	res := ValidatePullback(PullbackInput{
		Side:      side,
		EMAFast:   model.LastValue(in.Ind.EntryFast),
		EMASlow:   model.LastValue(in.Ind.EntrySlow),
		Candles:   candles[n-2:],
		Tolerance: d.Tolerance,
		Surge: indicator.VolumeSurge(volumes[:n-1], volumes[n-1],
			e.params.VolumeSurgeMultiplier, e.params.VolumeLookback),
	})
	if !res.Pass {
		d.Reason = model.ReasonNoSetup
		d.FailedCheck = res.Failed.String()
		return d
	}

	if side == model.SideLong {
		d.Action = model.ActionBuy
	} else {
		d.Action = model.ActionSell
	}
	return d
}

// Generate is Evaluate followed by dedup: an actionable decision equal to the
// one already emitted for the same bar becomes HOLD.
func (e *Engine) Generate(in Input) model.Decision {
	d := e.Evaluate(in)
	if !d.Action.Actionable() {
		return d
	}
	if last, ok := e.dedup.LastDecisionFor(d.BarID); ok && last == d.Action {
		d.Reason = model.ReasonDuplicate
		d.Action = model.ActionHold
		return d
	}
	e.dedup.Observe(d.Action, d.BarID)
	return d
}
