package strategy

import (
	"time"

	"trading-signalv1/internal/indicator"
	"trading-signalv1/internal/model"
)

// Indicators are the index-aligned series the engine reads. Trend* run on the
// slow timeframe, the rest on the fast one.
type Indicators struct {
	TrendFast []model.Value // EMA20, 15m
	TrendSlow []model.Value // EMA50, 15m
	EntryFast []model.Value // EMA9, 5m
	EntrySlow []model.Value // EMA21, 5m
	RSI       []model.Value // RSI14, 5m
	ATR       []model.Value // ATR14, 5m
}

// Input is one evaluation request. Series hold closed candles only.
type Input struct {
	Now  time.Time
	Slow *model.Series // 15m
	Fast *model.Series // 5m
	VWAP model.Value
	Ind  Indicators

	Token    string
	Exchange string
}

// BarID is the identity of the latest closed fast bar, 0 if there is none.
func (in Input) BarID() model.BarID {
	if in.Fast == nil {
		return 0
	}
	c, ok := in.Fast.Last()
	if !ok {
		return 0
	}
	return model.BarIDOf(c)
}

// aligned reports whether every indicator series matches its source length.
func (in Input) aligned() bool {
	if in.Slow == nil || in.Fast == nil {
		return false
	}
	ns, nf := in.Slow.Len(), in.Fast.Len()
	return len(in.Ind.TrendFast) == ns && len(in.Ind.TrendSlow) == ns &&
		len(in.Ind.EntryFast) == nf && len(in.Ind.EntrySlow) == nf &&
		len(in.Ind.RSI) == nf && len(in.Ind.ATR) == nf
}

// FastSpecs and SlowSpecs name the indicators BuildInput computes.
func (p Params) FastSpecs() []indicator.Spec {
	return []indicator.Spec{
		{Type: "EMA", Period: p.EntryFastPeriod},
		{Type: "EMA", Period: p.EntrySlowPeriod},
		{Type: "RSI", Period: p.RSIPeriod},
		{Type: "ATR", Period: p.ATRPeriod},
	}
}

func (p Params) SlowSpecs() []indicator.Spec {
	return []indicator.Spec{
		{Type: "EMA", Period: p.TrendFastPeriod},
		{Type: "EMA", Period: p.TrendSlowPeriod},
	}
}

// BuildInput computes the indicator series for the given closed series.
// slow and fast are cloned so the caller may keep appending.
func BuildInput(now time.Time, slow, fast *model.Series, vwap model.Value, p Params) (Input, error) {
	slowEng, err := indicator.NewEngine(p.SlowSpecs())
	if err != nil {
		return Input{}, err
	}
	fastEng, err := indicator.NewEngine(p.FastSpecs())
	if err != nil {
		return Input{}, err
	}
	slow, fast = slow.Clone(), fast.Clone()
	sf := slowEng.Compute(slow.Candles())
	ff := fastEng.Compute(fast.Candles())
	fs := p.FastSpecs()
	ss := p.SlowSpecs()
	return Input{
		Now:  now,
		Slow: slow,
		Fast: fast,
		VWAP: vwap,
		Ind: Indicators{
			TrendFast: sf.Get(ss[0]),
			TrendSlow: sf.Get(ss[1]),
			EntryFast: ff.Get(fs[0]),
			EntrySlow: ff.Get(fs[1]),
			RSI:       ff.Get(fs[2]),
			ATR:       ff.Get(fs[3]),
		},
	}, nil
}
