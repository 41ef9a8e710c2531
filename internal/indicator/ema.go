package indicator

import "trading-signalv1/internal/model"

// EMA calculates Exponential Moving Average of closes.
// Seeded with the SMA of the first period closes; O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return name("EMA", e.period) }

func (e *EMA) Update(candle model.Candle) { e.add(candle.Close) }

func (e *EMA) add(price float64) {
	e.count++

	if e.count <= e.period {
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() model.Value {
	if !e.Ready() {
		return model.None()
	}
	return model.Some(e.current)
}

func (e *EMA) Ready() bool { return e.period > 0 && e.count >= e.period }

// Peek computes what Value() would be with an additional candle without mutating state.
func (e *EMA) Peek(c model.Candle) model.Value {
	switch {
	case e.period <= 0 || e.count+1 < e.period:
		return model.None()
	case e.count+1 == e.period:
		return model.Some((e.sum + c.Close) / float64(e.period))
	}
	return model.Some((c.Close * e.multiplier) + (e.current * (1 - e.multiplier)))
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
