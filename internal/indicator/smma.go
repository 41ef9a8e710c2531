package indicator

import "trading-signalv1/internal/model"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + x) / period.
// ATR uses it over true ranges; as an Indicator it smooths closes.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return name("SMMA", s.period) }

func (s *SMMA) Update(candle model.Candle) { s.Add(candle.Close) }

// Add feeds one raw observation.
func (s *SMMA) Add(x float64) {
	s.count++

	if s.count <= s.period {
		s.sum += x
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = s.next(x)
}

func (s *SMMA) next(x float64) float64 {
	return (s.current*float64(s.period-1) + x) / float64(s.period)
}

func (s *SMMA) Value() model.Value {
	if !s.Ready() {
		return model.None()
	}
	return model.Some(s.current)
}

func (s *SMMA) Ready() bool { return s.period > 0 && s.count >= s.period }

// Peek computes what Value() would be with an additional candle without mutating state.
func (s *SMMA) Peek(c model.Candle) model.Value { return s.peekRaw(c.Close) }

func (s *SMMA) peekRaw(x float64) model.Value {
	switch {
	case s.period <= 0 || s.count+1 < s.period:
		return model.None()
	case s.count+1 == s.period:
		return model.Some((s.sum + x) / float64(s.period))
	}
	return model.Some(s.next(x))
}

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
