package indicator

import "trading-signalv1/internal/model"

// EMASeries returns EMA(period) of closes, index-aligned. Entries before
// index period-1 are invalid.
func EMASeries(closes []float64, period int) []model.Value {
	e := NewEMA(period)
	out := make([]model.Value, len(closes))
	for i, c := range closes {
		e.add(c)
		out[i] = e.Value()
	}
	return out
}

// RSISeries returns Wilder RSI(period) of closes, index-aligned. The first
// valid entry is at index period.
func RSISeries(closes []float64, period int) []model.Value {
	r := NewRSI(period)
	out := make([]model.Value, len(closes))
	for i, c := range closes {
		r.Update(model.Candle{Close: c})
		out[i] = r.Value()
	}
	return out
}

// ATRSeries returns Wilder ATR(period), index-aligned to candles. The first
// valid entry is at index period.
func ATRSeries(candles []model.Candle, period int) []model.Value {
	a := NewATR(period)
	out := make([]model.Value, len(candles))
	for i, c := range candles {
		a.Update(c)
		out[i] = a.Value()
	}
	return out
}
