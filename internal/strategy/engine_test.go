package strategy

import (
	"errors"
	"testing"
	"time"

	"trading-signalv1/internal/model"
)

func TestEngine_ScenarioA_Buy(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NewMemoryDeduper())
	in := bullish().input(t)
	d := e.Generate(in)
	if d.Action != model.ActionBuy {
		t.Fatalf("action=%s reason=%s failed=%s, want BUY", d.Action, d.Reason, d.FailedCheck)
	}
	if d.Bias != model.BiasBullish {
		t.Errorf("bias=%s", d.Bias)
	}
	if rsi, _ := d.RSI.Get(); rsi != 60 {
		t.Errorf("rsi=%v", d.RSI)
	}
	// max(5, 12*0.25)
	if d.Tolerance != 5 {
		t.Errorf("tolerance=%v, want 5", d.Tolerance)
	}
	if d.BarID != in.BarID() || d.BarID == 0 {
		t.Errorf("bar id=%d, want %d", d.BarID, in.BarID())
	}
	if d.Token != "99926000" || d.Close != 22030 {
		t.Errorf("metadata token=%s close=%v", d.Token, d.Close)
	}
}

func TestEngine_ScenarioB_Sell(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NewMemoryDeduper())
	d := e.Generate(bearish().input(t))
	if d.Action != model.ActionSell {
		t.Fatalf("action=%s reason=%s failed=%s, want SELL", d.Action, d.Reason, d.FailedCheck)
	}
	if d.Bias != model.BiasBearish {
		t.Errorf("bias=%s", d.Bias)
	}
}

func TestEngine_ScenarioC_WindowBoundary(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), nil)

	s := bullish()
	s.now = at(11, 30, 0)
	if d := e.Evaluate(s.input(t)); d.Action != model.ActionHold || d.Reason != model.ReasonOutsideWindow {
		t.Errorf("11:30:00: action=%s reason=%s, want HOLD outside_window", d.Action, d.Reason)
	}

	s.now = at(11, 29, 59)
	if d := e.Evaluate(s.input(t)); d.Action != model.ActionBuy {
		t.Errorf("11:29:59: action=%s reason=%s, want BUY", d.Action, d.Reason)
	}
}

func TestEngine_ScenarioD_WarmupIsNeutral(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), nil)

	slow := model.NewSeries(model.TF15m, 0)
	fast := model.NewSeries(model.TF5m, 0)
	start := at(9, 15, 0).Add(-24 * time.Hour)
	for i := 0; i < 40; i++ {
		p := 22000 + float64(i)
		c := model.Candle{TS: start.Add(time.Duration(i) * 15 * time.Minute), Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: 1000}
		if err := slow.Append(c); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 30; i++ {
		p := 22000 + float64(i)
		c := model.Candle{TS: at(9, 15, 0).Add(time.Duration(i) * 5 * time.Minute), Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: 1000}
		if err := fast.Append(c); err != nil {
			t.Fatal(err)
		}
	}
	in, err := BuildInput(at(11, 45, 5).Add(2*time.Hour), slow, fast, model.Some(21900), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if model.LastValue(in.Ind.TrendSlow).Valid() {
		t.Fatal("EMA50 must be invalid with 40 slow bars")
	}
	d := e.Evaluate(in)
	if d.Action != model.ActionHold || d.Bias != model.BiasNeutral || d.Reason != model.ReasonNeutralBias {
		t.Errorf("action=%s bias=%s reason=%s, want HOLD NEUTRAL neutral_bias", d.Action, d.Bias, d.Reason)
	}
}

func TestEngine_EvaluateIsIdempotent(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NewMemoryDeduper())
	in := bullish().input(t)
	a, b := e.Evaluate(in), e.Evaluate(in)
	if a != b {
		t.Errorf("Evaluate differs across calls:\n%+v\n%+v", a, b)
	}
}

func TestEngine_DedupSameBar(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NewMemoryDeduper())
	in := bullish().input(t)

	if d := e.Generate(in); d.Action != model.ActionBuy {
		t.Fatalf("first: %s", d.Action)
	}
	d := e.Generate(in)
	if d.Action != model.ActionHold || d.Reason != model.ReasonDuplicate {
		t.Fatalf("second: action=%s reason=%s, want HOLD duplicate", d.Action, d.Reason)
	}
	if d.Bias != model.BiasBullish {
		t.Errorf("duplicate should keep diagnostics, bias=%s", d.Bias)
	}

	e.ResetSession()
	if d := e.Generate(in); d.Action != model.ActionBuy {
		t.Errorf("after reset: %s, want BUY", d.Action)
	}
}

func TestEngine_DedupNewBarEmitsAgain(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NewMemoryDeduper())
	s := bullish()
	if d := e.Generate(s.input(t)); d.Action != model.ActionBuy {
		t.Fatalf("first: %s", d.Action)
	}
	s.now = s.now.Add(5 * time.Minute)
	if d := e.Generate(s.input(t)); d.Action != model.ActionBuy {
		t.Errorf("next bar: %s, want BUY", d.Action)
	}
}

func TestEngine_NoopDedupNeverSuppresses(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NoopDeduper{})
	in := bullish().input(t)
	for i := 0; i < 3; i++ {
		if d := e.Generate(in); d.Action != model.ActionBuy {
			t.Fatalf("call %d: %s", i, d.Action)
		}
	}
}

func TestEngine_RSIThresholds(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), nil)
	cases := []struct {
		name string
		s    func() setup
		rsi  float64
		want model.Action
	}{
		{"bull at threshold", bullish, 55, model.ActionBuy},
		{"bull below", bullish, 54.99, model.ActionHold},
		{"bear at threshold", bearish, 45, model.ActionSell},
		{"bear above", bearish, 45.01, model.ActionHold},
		{"bull rsi 60", bullish, 60, model.ActionBuy},
		{"bear rsi 40", bearish, 40, model.ActionSell},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.s()
			s.rsi = model.Some(tc.rsi)
			d := e.Evaluate(s.input(t))
			if d.Action != tc.want {
				t.Fatalf("action=%s reason=%s, want %s", d.Action, d.Reason, tc.want)
			}
			if tc.want == model.ActionHold && d.Reason != model.ReasonRSIFilter {
				t.Errorf("reason=%s, want rsi_filter", d.Reason)
			}
		})
	}
}

func TestEngine_InvalidRSIHolds(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), nil)
	s := bullish()
	s.rsi = model.None()
	if d := e.Evaluate(s.input(t)); d.Action != model.ActionHold || d.Reason != model.ReasonRSIFilter {
		t.Errorf("action=%s reason=%s", d.Action, d.Reason)
	}
}

func TestEngine_VWAPFilter(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), nil)
	s := bullish()
	// 15m close stays above VWAP, 5m close 22030 dips below it.
	s.vwap = model.Some(22031)
	s.slowClose = 22040
	d := e.Evaluate(s.input(t))
	if d.Bias != model.BiasBullish {
		t.Fatalf("bias=%s", d.Bias)
	}
	if d.Action != model.ActionHold || d.Reason != model.ReasonVWAPFilter {
		t.Errorf("action=%s reason=%s, want HOLD vwap_filter", d.Action, d.Reason)
	}
}

func TestEngine_PullbackFailureReported(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), nil)
	s := bullish()
	s.cur.Volume = 1100
	d := e.Evaluate(s.input(t))
	if d.Action != model.ActionHold || d.Reason != model.ReasonNoSetup || d.FailedCheck != "volume_surge" {
		t.Errorf("action=%s reason=%s failed=%s", d.Action, d.Reason, d.FailedCheck)
	}
}

func TestEngine_InsufficientDataHolds(t *testing.T) {
	e := newTestEngine(t, DefaultParams(), NewMemoryDeduper())
	if d := e.Generate(Input{Now: at(10, 0, 0)}); d.Action != model.ActionHold || d.Reason != model.ReasonInsufficientData {
		t.Errorf("empty input: action=%s reason=%s", d.Action, d.Reason)
	}

	s := bullish()
	s.fastBars = 24
	if d := e.Evaluate(s.input(t)); d.Reason != model.ReasonInsufficientData {
		t.Errorf("24 fast bars: reason=%s", d.Reason)
	}

	in := bullish().input(t)
	in.Ind.RSI = in.Ind.RSI[1:]
	if d := e.Evaluate(in); d.Reason != model.ReasonInsufficientData {
		t.Errorf("misaligned indicators: reason=%s", d.Reason)
	}
}

func TestEngine_ATRScaledTolerance(t *testing.T) {
	s := bullish()
	s.atr = model.Some(40)
	// Previous and current lows sit 8 points above EMA9: only the ATR
	// scaled tolerance (10) reaches them.
	s.prev = ohlcv(22024, 22025, 22023, 22024, 1000)
	s.cur = ohlcv(22024, 22035, 22023, 22030, 1500)

	e := newTestEngine(t, DefaultParams(), nil)
	d := e.Evaluate(s.input(t))
	if d.Tolerance != 10 || d.Action != model.ActionBuy {
		t.Errorf("atr mode: tolerance=%v action=%s failed=%s", d.Tolerance, d.Action, d.FailedCheck)
	}

	p := DefaultParams()
	p.ToleranceMode = ToleranceFixed
	fixed := newTestEngine(t, p, nil)
	d = fixed.Evaluate(s.input(t))
	if d.Tolerance != 5 || d.Action != model.ActionHold || d.FailedCheck != "pullback_touch" {
		t.Errorf("fixed mode: tolerance=%v action=%s failed=%s", d.Tolerance, d.Action, d.FailedCheck)
	}
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	cases := map[string]func(*Params){
		"bear equals bull":   func(p *Params) { p.RSIBearThreshold = 55 },
		"bear above bull":    func(p *Params) { p.RSIBearThreshold = 60 },
		"zero period":        func(p *Params) { p.RSIPeriod = 0 },
		"fast not faster":    func(p *Params) { p.TrendFastPeriod = 50 },
		"entry inverted":     func(p *Params) { p.EntryFastPeriod = 30 },
		"negative tolerance": func(p *Params) { p.PullbackTolerancePoints = -1 },
		"negative factor":    func(p *Params) { p.PullbackATRFactor = -0.1 },
		"unknown mode":       func(p *Params) { p.ToleranceMode = "percent" },
		"zero multiplier":    func(p *Params) { p.VolumeSurgeMultiplier = 0 },
		"rsi out of range":   func(p *Params) { p.RSIBullThreshold = 120 },
	}
	gate := newTestEngine(t, DefaultParams(), nil).Gate()
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mod(&p)
			_, err := NewEngine(p, gate, nil)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
	if _, err := NewEngine(DefaultParams(), nil, nil); err == nil {
		t.Error("missing gate should fail")
	}
}
