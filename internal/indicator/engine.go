package indicator

import (
	"fmt"

	"trading-signalv1/internal/model"
)

// Spec names a single indicator to compute.
type Spec struct {
	Type   string // "SMA", "EMA", "SMMA", "RSI", "ATR"
	Period int
}

// Name returns the result key, e.g. "EMA_20".
func (s Spec) Name() string { return name(s.Type, s.Period) }

// New creates a fresh incremental indicator for a spec.
func New(s Spec) (Indicator, error) {
	if s.Period <= 0 {
		return nil, fmt.Errorf("indicator %s: period must be positive", s.Name())
	}
	switch s.Type {
	case "SMA":
		return NewSMA(s.Period), nil
	case "EMA":
		return NewEMA(s.Period), nil
	case "SMMA":
		return NewSMMA(s.Period), nil
	case "RSI":
		return NewRSI(s.Period), nil
	case "ATR":
		return NewATR(s.Period), nil
	}
	return nil, fmt.Errorf("indicator %s: unknown type", s.Name())
}

// Frame holds index-aligned indicator series keyed by Spec.Name.
type Frame map[string][]model.Value

// Get returns the series for a spec, or nil if it was not computed.
func (f Frame) Get(s Spec) []model.Value { return f[s.Name()] }

// Engine computes a fixed set of indicators over a closed candle series.
// It holds no per-series state, so a single Engine may serve every timeframe.
type Engine struct {
	specs []Spec
}

// NewEngine validates the specs and returns an engine for them.
func NewEngine(specs []Spec) (*Engine, error) {
	for _, s := range specs {
		if _, err := New(s); err != nil {
			return nil, err
		}
	}
	cp := make([]Spec, len(specs))
	copy(cp, specs)
	return &Engine{specs: cp}, nil
}

// Specs returns the configured indicator specs.
func (e *Engine) Specs() []Spec {
	cp := make([]Spec, len(e.specs))
	copy(cp, e.specs)
	return cp
}

// Compute replays every candle through fresh indicator instances in one pass.
// Each output series has len(candles) entries.
func (e *Engine) Compute(candles []model.Candle) Frame {
	inds := make([]Indicator, len(e.specs))
	frame := make(Frame, len(e.specs))
	for i, s := range e.specs {
		inds[i], _ = New(s)
		frame[s.Name()] = make([]model.Value, len(candles))
	}
	for j, c := range candles {
		for i, ind := range inds {
			ind.Update(c)
			frame[e.specs[i].Name()][j] = ind.Value()
		}
	}
	return frame
}

// Preview computes what each indicator would read if forming were the next
// closed candle. Used for live dashboards; never fed to the signal engine.
func (e *Engine) Preview(candles []model.Candle, forming model.Candle) map[string]model.Value {
	out := make(map[string]model.Value, len(e.specs))
	for _, s := range e.specs {
		ind, _ := New(s)
		for _, c := range candles {
			ind.Update(c)
		}
		out[s.Name()] = ind.Peek(forming)
	}
	return out
}
