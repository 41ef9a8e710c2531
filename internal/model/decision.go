package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the engine's output signal.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Actionable reports whether the action asks for an entry.
func (a Action) Actionable() bool { return a == ActionBuy || a == ActionSell }

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case "BUY":
		*a = ActionBuy
	case "SELL":
		*a = ActionSell
	case "HOLD":
		*a = ActionHold
	default:
		return fmt.Errorf("unknown action %q", b)
	}
	return nil
}

// Bias is the slow-timeframe trend classification.
type Bias int

const (
	BiasNeutral Bias = iota
	BiasBullish
	BiasBearish
)

func (b Bias) String() string {
	switch b {
	case BiasBullish:
		return "BULLISH"
	case BiasBearish:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

func (b Bias) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Bias) UnmarshalText(t []byte) error {
	switch string(t) {
	case "BULLISH":
		*b = BiasBullish
	case "BEARISH":
		*b = BiasBearish
	case "NEUTRAL":
		*b = BiasNeutral
	default:
		return fmt.Errorf("unknown bias %q", t)
	}
	return nil
}

// HoldReason says which stage of the pipeline produced a HOLD.
type HoldReason string

const (
	ReasonNone             HoldReason = ""
	ReasonOutsideWindow    HoldReason = "outside_window"
	ReasonInsufficientData HoldReason = "insufficient_data"
	ReasonNeutralBias      HoldReason = "neutral_bias"
	ReasonVWAPFilter       HoldReason = "vwap_filter"
	ReasonRSIFilter        HoldReason = "rsi_filter"
	ReasonNoSetup          HoldReason = "no_setup"
	ReasonDuplicate        HoldReason = "duplicate"
)

// BarID identifies a closed fast-timeframe bar: Unix seconds of its start.
type BarID int64

// BarIDOf returns the identity of a candle.
func BarIDOf(c Candle) BarID { return BarID(c.TS.Unix()) }

// Decision is one evaluation result plus the diagnostics that produced it.
type Decision struct {
	Action      Action     `json:"action"`
	Bias        Bias       `json:"bias"`
	RSI         Value      `json:"rsi_value"`
	Tolerance   float64    `json:"tolerance_used"`
	BarID       BarID      `json:"bar_id"`
	TS          time.Time  `json:"ts"`
	Reason      HoldReason `json:"reason,omitempty"`
	FailedCheck string     `json:"failed_check,omitempty"`
	Close       float64    `json:"close"`
	VWAP        Value      `json:"vwap"`
	Token       string     `json:"token"`
	Exchange    string     `json:"exchange"`
	TraceID     string     `json:"trace_id,omitempty"`
}

// Key returns "exchange:token".
func (d *Decision) Key() string { return d.Exchange + ":" + d.Token }

// JSON returns the JSON-encoded decision.
func (d *Decision) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}
