// Package indicator provides technical indicator calculations over candle data.
//
// Each indicator exists in two shapes: an incremental calculator that is fed
// one closed candle at a time, and a series builder that returns a slice of
// model.Value index-aligned to its input. Series builders are implemented on
// top of the incremental calculators so both paths agree exactly.
package indicator

import "trading-signalv1/internal/model"

// Indicator is the interface for all incremental indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_20", "RSI_14").
	Name() string

	// Update feeds a new closed candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current value, invalid until warm-up completes.
	Value() model.Value

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if c were the next closed candle,
	// WITHOUT mutating internal state. Used for previews of a forming bar.
	Peek(c model.Candle) model.Value
}

func name(kind string, period int) string {
	return kind + "_" + itoa(period)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
