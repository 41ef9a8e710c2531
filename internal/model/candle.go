package model

import (
	"encoding/json"
	"math"
	"time"
)

// Candle is a closed OHLCV bar. Prices are in rupees.
// TS is the bucket start; a Candle never changes once appended to a Series.
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate reports the first structural problem with the candle, if any.
func (c Candle) Validate() error {
	if c.TS.IsZero() {
		return &InvalidCandleError{TS: c.TS, Reason: "zero timestamp"}
	}
	for _, f := range [...]struct {
		name string
		v    float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}, {"volume", c.Volume}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &InvalidCandleError{TS: c.TS, Reason: f.name + " is not finite"}
		}
		if f.v < 0 {
			return &InvalidCandleError{TS: c.TS, Reason: f.name + " is negative"}
		}
	}
	if c.High < c.Low {
		return &InvalidCandleError{TS: c.TS, Reason: "high below low"}
	}
	return nil
}

// TypicalPrice is (H+L+C)/3, the VWAP price input.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Bullish reports close > open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports close < open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
