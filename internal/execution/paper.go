package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

// FillRecorder persists fills. *Journal implements it.
type FillRecorder interface {
	RecordFill(fill Fill) error
}

// PaperConfig configures the paper executor.
type PaperConfig struct {
	Instrument  model.Instrument
	Qty         int64   // units per entry (lots * lot size)
	SlippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	Costs       Costs
	LotSize     int64 // partial exits are whole lots of this size

	// Reverse flips an open position on an opposite signal. When false,
	// signals are ignored while a position is open.
	Reverse bool
	Exits   ExitRules
}

// PaperExecutor simulates order execution without real broker calls. It
// holds at most one position and enters on BUY/SELL at the decision's close.
// Between entry and the session's flatten and hard-exit times the position
// is managed by ExitRules.
type PaperExecutor struct {
	mu       sync.RWMutex
	cfg      PaperConfig
	gate     *markethours.Gate
	journal  FillRecorder
	log      zerolog.Logger
	pos      *model.Position
	mgmt     management
	fills    []Fill
	trades   []Trade
	orderSeq int64

	// OnTrade, if set, is called with every closed round trip.
	OnTrade func(Trade)
	// Risk, if set, can veto new entries. Exits are never blocked.
	Risk *RiskGuard
}

// NewPaperExecutor creates a paper trading executor. journal may be nil.
func NewPaperExecutor(cfg PaperConfig, gate *markethours.Gate, journal FillRecorder, l zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		cfg:     cfg,
		gate:    gate,
		journal: journal,
		log:     l.With().Str("component", "paper").Logger(),
		fills:   make([]Fill, 0, 64),
	}
}

// Name implements model.DecisionSink.
func (p *PaperExecutor) Name() string { return "paper" }

// Publish implements model.DecisionSink: BUY opens long, SELL opens short.
// Every decision, HOLD included, updates the close and VWAP the exit rules
// watch.
func (p *PaperExecutor) Publish(ctx context.Context, d model.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos != nil && d.Close > 0 {
		p.mgmt.close, p.mgmt.vwap = d.Close, d.VWAP
	}
	if !d.Action.Actionable() || d.Close <= 0 {
		return nil
	}
	want := model.SideLong
	if d.Action == model.ActionSell {
		want = model.SideShort
	}

	var errs []error
	reason := ExitEntry
	if p.pos != nil {
		if p.pos.Side == want || !p.cfg.Reverse {
			return nil
		}
		reason = ExitReverse
		if err := p.closeLocked(d.TS, d.Close, reason, d.BarID); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Risk != nil {
		if ok, why := p.Risk.CanEnter(d.TS); !ok {
			p.log.Warn().Str("action", d.Action.String()).Str("reason", why).Msg("entry blocked by risk guard")
			return errors.Join(errs...)
		}
	}
	if err := p.openLocked(want, d, reason); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// OnClock implements Executor.
func (p *PaperExecutor) OnClock(ctx context.Context, now time.Time, lastPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos == nil || lastPrice <= 0 {
		return
	}
	p.pos.LastPrice = lastPrice

	var reason string
	switch {
	case markethours.SessionKey(now) != markethours.SessionKey(p.pos.EntryTime):
		reason = ExitSessionEnd
	case p.gate.MustHardExit(now):
		reason = ExitHardExit
	case p.gate.MustFlatten(now):
		reason = ExitFlatten
	default:
		reason = p.manageLocked(now, lastPrice)
	}
	if reason == "" {
		return
	}
	if err := p.closeLocked(now, lastPrice, reason, 0); err != nil {
		p.log.Error().Err(err).Msg("journal exit fill")
	}
}

// manageLocked applies ExitRules at price in order: trail, stop, VWAP
// recross, 1R scale-out, final target. It returns the reason to close the
// rest of the position, or "".
func (p *PaperExecutor) manageLocked(now time.Time, price float64) string {
	r, m, side := p.cfg.Exits, &p.mgmt, p.pos.Side

	m.trail(side, price, r.TrailPct)
	if m.stop > 0 && beyond(side, price, m.stop, false) {
		if m.trailing {
			return ExitTrailingStop
		}
		return ExitStopLoss
	}
	if r.VWAPRecross && !m.partialDone && m.recrossed(side) {
		return ExitVWAPRecross
	}
	if m.risk <= 0 {
		return ""
	}
	entry := p.pos.EntryPrice
	oneR := entry + m.risk
	if side == model.SideShort {
		oneR = entry - m.risk
	}
	if !m.partialDone {
		if !beyond(side, price, oneR, true) {
			return ""
		}
		m.partialDone = true
		m.trailing = true
		m.stop = entry
		if qty := partialQty(p.pos.Qty, p.cfg.LotSize, r.PartialFraction); qty > 0 {
			if err := p.scaleOutLocked(now, price, qty); err != nil {
				p.log.Error().Err(err).Msg("journal partial fill")
			}
		}
		p.log.Info().Float64("price", price).Float64("stop", m.stop).Int64("qty", p.pos.Qty).Msg("1R reached, stop at break-even")
		return ""
	}
	if r.TargetR > 0 {
		target := entry + r.TargetR*m.risk
		if side == model.SideShort {
			target = entry - r.TargetR*m.risk
		}
		if beyond(side, price, target, true) {
			return ExitTarget
		}
	}
	return ""
}

func (p *PaperExecutor) openLocked(side model.Side, d model.Decision, reason string) error {
	action := model.ActionBuy
	if side == model.SideShort {
		action = model.ActionSell
	}
	fill := p.fillLocked(action, p.cfg.Qty, d.Close, reason, d.BarID, d.TS)
	p.mgmt = newManagement(p.cfg.Exits, side, fill.Price, d)
	p.pos = &model.Position{
		Token:      p.cfg.Instrument.Token,
		Exchange:   p.cfg.Instrument.Exchange,
		Side:       side,
		Qty:        p.cfg.Qty,
		EntryPrice: fill.Price,
		EntryTime:  d.TS,
		LastPrice:  d.Close,
	}
	return p.record(fill)
}

func (p *PaperExecutor) closeLocked(ts time.Time, price float64, reason string, bar model.BarID) error {
	err := p.exitLocked(ts, price, p.pos.Qty, reason, bar)
	p.pos = nil
	p.mgmt = management{}
	return err
}

// scaleOutLocked closes qty units and keeps the rest open.
func (p *PaperExecutor) scaleOutLocked(ts time.Time, price float64, qty int64) error {
	err := p.exitLocked(ts, price, qty, ExitPartial, 0)
	p.pos.Qty -= qty
	return err
}

// exitLocked fills qty units against the open position and books the
// round trip.
func (p *PaperExecutor) exitLocked(ts time.Time, price float64, qty int64, reason string, bar model.BarID) error {
	pos := p.pos
	action := model.ActionSell
	if pos.Side == model.SideShort {
		action = model.ActionBuy
	}
	fill := p.fillLocked(action, qty, price, reason, bar, ts)

	pos.LastPrice = fill.Price
	leg := *pos
	leg.Qty = qty
	gross := leg.UnrealizedPnL()
	costs := p.cfg.Costs.RoundTrip(pos.Side, pos.EntryPrice, fill.Price, qty)
	t := Trade{
		Side:       pos.Side,
		Qty:        qty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		ExitReason: reason,
		Gross:      gross,
		Costs:      costs,
		Net:        gross - costs,
	}
	p.trades = append(p.trades, t)

	p.log.Info().Str("side", t.Side.String()).Float64("entry", t.EntryPrice).Float64("exit", t.ExitPrice).
		Float64("net", t.Net).Str("reason", reason).Msg("closed paper trade")
	if p.Risk != nil {
		p.Risk.Record(t)
	}
	if p.OnTrade != nil {
		p.OnTrade(t)
	}
	return p.record(fill)
}

// fillLocked applies slippage against the order: buys fill higher, sells lower.
func (p *PaperExecutor) fillLocked(action model.Action, qty int64, price float64, reason string, bar model.BarID, ts time.Time) Fill {
	p.orderSeq++
	slip := price * p.cfg.SlippageBps / 10000
	fillPrice := price + slip
	if action == model.ActionSell {
		fillPrice = price - slip
	}
	fill := Fill{
		OrderID:  fmt.Sprintf("PAPER-%d", p.orderSeq),
		Action:   action,
		Token:    p.cfg.Instrument.Token,
		Exchange: p.cfg.Instrument.Exchange,
		Qty:      qty,
		Price:    fillPrice,
		Slippage: slip,
		Reason:   reason,
		BarID:    bar,
		FilledAt: ts,
	}
	p.fills = append(p.fills, fill)
	p.log.Debug().Str("order", fill.OrderID).Str("action", action.String()).Float64("price", fillPrice).
		Float64("slip", slip).Str("reason", reason).Msg("paper fill")
	return fill
}

func (p *PaperExecutor) record(fill Fill) error {
	if p.journal == nil {
		return nil
	}
	return p.journal.RecordFill(fill)
}

// Position returns a copy of the open position, if any.
func (p *PaperExecutor) Position() (model.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pos == nil {
		return model.Position{}, false
	}
	return *p.pos, true
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Trades returns a snapshot of closed round trips.
func (p *PaperExecutor) Trades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// RiskStatus reports the risk guard's state when one is set.
func (p *PaperExecutor) RiskStatus() (RiskStatus, bool) {
	if p.Risk == nil {
		return RiskStatus{}, false
	}
	return p.Risk.Status(), true
}

// Summary aggregates the closed trades.
func (p *PaperExecutor) Summary() Summary {
	return Summarize(p.Trades())
}
