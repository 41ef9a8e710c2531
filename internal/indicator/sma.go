package indicator

import "trading-signalv1/internal/model"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
// As an Indicator it averages closes; Add feeds any raw series (volumes).
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	if period < 0 {
		period = 0
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return name("SMA", s.period) }

func (s *SMA) Update(candle model.Candle) { s.Add(candle.Close) }

// Add pushes one raw observation into the window.
func (s *SMA) Add(x float64) {
	if s.period == 0 {
		return
	}
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = x
	s.sum += x
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() model.Value {
	if !s.Ready() {
		return model.None()
	}
	return model.Some(s.current)
}

func (s *SMA) Ready() bool { return s.period > 0 && s.count >= s.period }

// Peek computes what Value() would be with an additional candle without mutating state.
func (s *SMA) Peek(c model.Candle) model.Value {
	if s.period == 0 || s.count+1 < s.period {
		return model.None()
	}
	if s.count < s.period {
		return model.Some((s.sum + c.Close) / float64(s.period))
	}
	// Preview: replace the oldest value (at idx) with new price
	return model.Some((s.sum - s.buf[s.idx] + c.Close) / float64(s.period))
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
