// Package execution simulates the order collaborator that consumes the
// engine's decisions: entries at the bar close with slippage, end-of-day
// flatten and hard exit, and round-trip transaction costs.
//
// The signal engine never depends on this package.
package execution

import (
	"context"
	"time"

	"trading-signalv1/internal/model"
)

// Executor consumes decisions and session clock ticks.
type Executor interface {
	model.DecisionSink
	// OnClock marks open positions at lastPrice and applies the exit rules
	// and the session's flatten and hard-exit times at now.
	OnClock(ctx context.Context, now time.Time, lastPrice float64)
}

// Costs are Indian equity-derivative charges applied per round trip.
type Costs struct {
	BrokeragePerOrder float64 // rupees per order
	STTSellPct        float64 // on the sell-side turnover
	ExchangePct       float64 // on both sides' turnover
	GSTPct            float64 // on brokerage
}

// DefaultCosts are the discount-broker rates used for backtests.
func DefaultCosts() Costs {
	return Costs{
		BrokeragePerOrder: 20,
		STTSellPct:        0.0005,
		ExchangePct:       0.00035,
		GSTPct:            0.18,
	}
}

// RoundTrip returns the total charges for entering at entry and exiting at
// exit with qty units. STT applies to the sell leg, whichever side it is.
func (c Costs) RoundTrip(side model.Side, entry, exit float64, qty int64) float64 {
	q := float64(qty)
	entryValue, exitValue := entry*q, exit*q
	sellValue := exitValue
	if side == model.SideShort {
		sellValue = entryValue
	}
	brokerage := c.BrokeragePerOrder * 2
	return brokerage +
		sellValue*c.STTSellPct +
		(entryValue+exitValue)*c.ExchangePct +
		brokerage*c.GSTPct
}

// Fill represents a simulated order fill.
type Fill struct {
	OrderID  string       `json:"order_id"`
	Action   model.Action `json:"action"` // BUY or SELL
	Token    string       `json:"token"`
	Exchange string       `json:"exchange"`
	Qty      int64        `json:"qty"`
	Price    float64      `json:"price"`    // after slippage
	Slippage float64      `json:"slippage"` // rupees per unit
	Reason   string       `json:"reason"`   // one of the Exit* reasons
	BarID    model.BarID  `json:"bar_id"`
	FilledAt time.Time    `json:"filled_at"`
}

// Trade is a closed round trip.
type Trade struct {
	Side       model.Side `json:"side"`
	Qty        int64      `json:"qty"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitReason string     `json:"exit_reason"`
	Gross      float64    `json:"gross"`
	Costs      float64    `json:"costs"`
	Net        float64    `json:"net"`
}

// Summary aggregates closed trades.
type Summary struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	Gross  float64 `json:"gross"`
	Costs  float64 `json:"costs"`
	Net    float64 `json:"net"`
}

// WinRate is Wins/Trades, 0 without trades.
func (s Summary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// Summarize folds trades into a Summary.
func Summarize(trades []Trade) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		if t.Net > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		s.Gross += t.Gross
		s.Costs += t.Costs
		s.Net += t.Net
	}
	return s
}
