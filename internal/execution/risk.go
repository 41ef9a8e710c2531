package execution

import (
	"sync"
	"time"

	"trading-signalv1/internal/markethours"
)

// RiskLimits defines the paper account's stop-trading thresholds. Zero
// disables a limit.
type RiskLimits struct {
	MaxDailyLoss    float64 `json:"max_daily_loss"`     // rupees, net of costs
	MaxTradesPerDay int     `json:"max_trades_per_day"` // closed round trips
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`   // of peak equity, 0-100
}

// RiskStatus is a snapshot of the guard's counters.
type RiskStatus struct {
	Session     string     `json:"session"`
	DailyPnL    float64    `json:"daily_pnl"`
	DailyTrades int        `json:"daily_trades"`
	Equity      float64    `json:"equity"`
	PeakEquity  float64    `json:"peak_equity"`
	DrawdownPct float64    `json:"drawdown_pct"`
	Limits      RiskLimits `json:"limits"`
}

// RiskGuard blocks new entries once a limit is hit. Daily counters reset on
// the first check of a new session. Safe for concurrent use.
type RiskGuard struct {
	mu     sync.RWMutex
	limits RiskLimits

	session     string
	dailyPnL    float64
	dailyTrades int
	equity      float64
	peakEquity  float64
}

// NewRiskGuard creates a guard starting at initialEquity.
func NewRiskGuard(limits RiskLimits, initialEquity float64) *RiskGuard {
	return &RiskGuard{
		limits:     limits,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanEnter reports whether a new position may be opened at ts, and the
// blocking reason if not.
func (g *RiskGuard) CanEnter(ts time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked(ts)

	if g.limits.MaxDailyLoss > 0 && g.dailyPnL <= -g.limits.MaxDailyLoss {
		return false, "max daily loss reached"
	}
	if g.limits.MaxTradesPerDay > 0 && g.dailyTrades >= g.limits.MaxTradesPerDay {
		return false, "max trades per day reached"
	}
	if g.limits.MaxDrawdownPct > 0 && g.drawdownLocked() >= g.limits.MaxDrawdownPct {
		return false, "max drawdown exceeded"
	}
	return true, ""
}

// Record books a closed trade against the session it exited in.
func (g *RiskGuard) Record(t Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked(t.ExitTime)

	g.dailyPnL += t.Net
	g.dailyTrades++
	g.equity += t.Net
	if g.equity > g.peakEquity {
		g.peakEquity = g.equity
	}
}

// Status returns the current counters.
func (g *RiskGuard) Status() RiskStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return RiskStatus{
		Session:     g.session,
		DailyPnL:    g.dailyPnL,
		DailyTrades: g.dailyTrades,
		Equity:      g.equity,
		PeakEquity:  g.peakEquity,
		DrawdownPct: g.drawdownLocked(),
		Limits:      g.limits,
	}
}

func (g *RiskGuard) rollLocked(ts time.Time) {
	if key := markethours.SessionKey(ts); key != g.session {
		g.session = key
		g.dailyPnL = 0
		g.dailyTrades = 0
	}
}

func (g *RiskGuard) drawdownLocked() float64 {
	if g.peakEquity <= 0 {
		return 0
	}
	return (g.peakEquity - g.equity) / g.peakEquity * 100
}
