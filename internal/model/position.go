package model

import "time"

// Side of an open position.
type Side int

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Position is a simulated intraday position on the underlying.
type Position struct {
	Token      string    `json:"token"`
	Exchange   string    `json:"exchange"`
	Side       Side      `json:"side"`
	Qty        int64     `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	LastPrice  float64   `json:"last_price"`
}

// UnrealizedPnL in rupees, before costs.
func (p *Position) UnrealizedPnL() float64 {
	diff := p.LastPrice - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	return diff * float64(p.Qty)
}

// Key returns a unique key for this position: "exchange:token".
func (p *Position) Key() string {
	return p.Exchange + ":" + p.Token
}
