package indicator

import "trading-signalv1/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// The first value appears after period+1 closes. A window with no losses is 100.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return name("RSI", r.period) }

func (r *RSI) Update(candle model.Candle) {
	price := candle.Close
	r.count++

	if r.count == 1 {
		r.prevClose = price
		return
	}

	gain, loss := split(price - r.prevClose)
	r.prevClose = price

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiOf(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiOf(r.avgGain, r.avgLoss)
}

func (r *RSI) Value() model.Value {
	if !r.Ready() {
		return model.None()
	}
	return model.Some(r.current)
}

func (r *RSI) Ready() bool { return r.period > 0 && r.count > r.period }

// Peek computes what RSI would be with an additional candle without mutating state.
func (r *RSI) Peek(c model.Candle) model.Value {
	if r.period <= 0 || r.count < r.period {
		return model.None()
	}
	gain, loss := split(c.Close - r.prevClose)
	p := float64(r.period)
	if r.count == r.period {
		return model.Some(rsiOf((r.avgGain+gain)/p, (r.avgLoss+loss)/p))
	}
	return model.Some(rsiOf((r.avgGain*(p-1)+gain)/p, (r.avgLoss*(p-1)+loss)/p))
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiOf(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
