package execution

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %.6f, want %.6f", name, got, want)
	}
}

// at returns h:m IST on Monday 2026-03-02.
func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, markethours.IST)
}

func newPaper(t *testing.T, journal FillRecorder) *PaperExecutor {
	t.Helper()
	return newPaperWith(t, PaperConfig{Qty: 75, Costs: DefaultCosts()}, journal)
}

func newPaperWith(t *testing.T, cfg PaperConfig, journal FillRecorder) *PaperExecutor {
	t.Helper()
	gate, err := markethours.NewGate(markethours.DefaultGateConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg.Instrument = model.Nifty50
	return NewPaperExecutor(cfg, gate, journal, zerolog.Nop())
}

func decision(a model.Action, ts time.Time, closePrice float64) model.Decision {
	return model.Decision{Action: a, TS: ts, Close: closePrice, BarID: model.BarID(ts.Unix()),
		Token: model.Nifty50.Token, Exchange: model.Nifty50.Exchange}
}

func TestCosts_RoundTrip(t *testing.T) {
	c := DefaultCosts()
	// long 100 -> 110, qty 10: brokerage 40, STT 1100*0.0005, exch 2100*0.00035, GST 7.2
	assertClose(t, "long", c.RoundTrip(model.SideLong, 100, 110, 10), 40+0.55+0.735+7.2)
	// short: STT on the entry (sell) leg
	assertClose(t, "short", c.RoundTrip(model.SideShort, 110, 100, 10), 40+0.55+0.735+7.2)
}

func TestPaper_EntryAndFlatten(t *testing.T) {
	p := newPaper(t, nil)
	ctx := context.Background()

	p.Publish(ctx, decision(model.ActionHold, at(10, 0), 100))
	if _, ok := p.Position(); ok {
		t.Fatal("HOLD must not open a position")
	}

	p.Publish(ctx, decision(model.ActionBuy, at(10, 5), 22000))
	pos, ok := p.Position()
	if !ok || pos.Side != model.SideLong || pos.Qty != 75 {
		t.Fatalf("position=%+v ok=%v", pos, ok)
	}

	// same-side signal is ignored
	p.Publish(ctx, decision(model.ActionBuy, at(10, 10), 22010))
	if len(p.GetFills()) != 1 {
		t.Errorf("fills=%d, want 1", len(p.GetFills()))
	}

	p.OnClock(ctx, at(14, 0), 22050)
	if _, ok := p.Position(); !ok {
		t.Fatal("position closed before flatten")
	}

	p.OnClock(ctx, at(15, 10), 22040)
	if _, ok := p.Position(); ok {
		t.Fatal("position must be flat at 15:10")
	}
	trades := p.Trades()
	if len(trades) != 1 || trades[0].ExitReason != "flatten" {
		t.Fatalf("trades=%+v", trades)
	}
	tr := trades[0]
	assertClose(t, "gross", tr.Gross, 40*75)
	assertClose(t, "net", tr.Net, tr.Gross-DefaultCosts().RoundTrip(model.SideLong, 22000, 22040, 75))

	s := p.Summary()
	if s.Trades != 1 || s.Wins != 1 || s.WinRate() != 1 {
		t.Errorf("summary=%+v", s)
	}
}

func TestPaper_ReverseAndHardExit(t *testing.T) {
	p := newPaper(t, nil)
	p.cfg.Reverse = true
	ctx := context.Background()
	var closed []Trade
	p.OnTrade = func(tr Trade) { closed = append(closed, tr) }

	p.Publish(ctx, decision(model.ActionBuy, at(10, 0), 100))
	p.Publish(ctx, decision(model.ActionSell, at(10, 30), 98))

	pos, _ := p.Position()
	if pos.Side != model.SideShort {
		t.Fatalf("side=%s, want SHORT", pos.Side)
	}
	if len(closed) != 1 || closed[0].ExitReason != "reverse" || closed[0].Gross >= 0 {
		t.Errorf("closed=%+v", closed)
	}
	fills := p.GetFills()
	if len(fills) != 3 || fills[2].Reason != "reverse" || fills[2].Action != model.ActionSell {
		t.Errorf("fills=%+v", fills)
	}

	// first tick after 15:20 is a hard exit
	p.OnClock(ctx, at(15, 21), 97)
	if len(closed) != 2 || closed[1].ExitReason != "hard_exit" {
		t.Fatalf("closed=%+v", closed)
	}
	assertClose(t, "short gross", closed[1].Gross, 1*75)
}

func TestPaper_SessionEnd(t *testing.T) {
	p := newPaper(t, nil)
	ctx := context.Background()
	p.Publish(ctx, decision(model.ActionSell, at(14, 0), 100))
	p.OnClock(ctx, at(9, 20).AddDate(0, 0, 1), 101)
	tr := p.Trades()
	if len(tr) != 1 || tr[0].ExitReason != "session_end" {
		t.Errorf("trades=%+v", tr)
	}
}

func TestPaper_Slippage(t *testing.T) {
	p := newPaper(t, nil)
	p.cfg.SlippageBps = 10
	ctx := context.Background()

	p.Publish(ctx, decision(model.ActionBuy, at(10, 0), 1000))
	p.OnClock(ctx, at(15, 10), 1000)

	fills := p.GetFills()
	assertClose(t, "buy fill", fills[0].Price, 1001)
	assertClose(t, "sell fill", fills[1].Price, 999)
	assertClose(t, "gross", p.Trades()[0].Gross, -2*75)
}

func TestJournal_RecordsFills(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"), "mtf_pullback", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	p := newPaper(t, j)
	ctx := context.Background()
	p.Publish(ctx, decision(model.ActionBuy, at(10, 0), 22000.5))
	p.OnClock(ctx, at(15, 10), 22010.25)

	rows, err := j.GetTrades(10)
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0].Action != "SELL" || rows[0].Reason != "flatten" || rows[0].Price != 22010.25 {
		t.Errorf("newest=%+v", rows[0])
	}
	if rows[1].Strategy != "mtf_pullback" || rows[1].Qty != 75 {
		t.Errorf("oldest=%+v", rows[1])
	}
}

func TestPaper_IgnoresSignalsWhileInPosition(t *testing.T) {
	p := newPaper(t, nil)
	ctx := context.Background()
	p.Publish(ctx, decision(model.ActionBuy, at(10, 0), 100))
	p.Publish(ctx, decision(model.ActionSell, at(10, 30), 98))

	pos, ok := p.Position()
	if !ok || pos.Side != model.SideLong {
		t.Fatalf("position=%+v ok=%v, want the original long", pos, ok)
	}
	if n := len(p.GetFills()); n != 1 {
		t.Errorf("fills=%d, want 1", n)
	}
}

func TestPaper_ExitRules(t *testing.T) {
	tests := []struct {
		name   string
		cfg    PaperConfig
		side   model.Action
		ticks  []float64 // OnClock prices from 10:01, one per minute
		reason []string  // exit reasons of the booked trades, in order
		gross  []float64
		open   int64 // qty left open, 0 if flat
	}{
		{
			name:   "long stop loss",
			cfg:    PaperConfig{Qty: 75, Exits: ExitRules{StopLossPct: 1}},
			side:   model.ActionBuy,
			ticks:  []float64{995, 990},
			reason: []string{ExitStopLoss},
			gross:  []float64{-10 * 75},
		},
		{
			name:   "short stop loss",
			cfg:    PaperConfig{Qty: 75, Exits: ExitRules{StopLossPct: 1}},
			side:   model.ActionSell,
			ticks:  []float64{1005, 1012},
			reason: []string{ExitStopLoss},
			gross:  []float64{-12 * 75},
		},
		{
			name: "half out at 1R then trailing stop",
			cfg: PaperConfig{Qty: 150, LotSize: 75,
				Exits: ExitRules{StopLossPct: 1, PartialFraction: 0.5, TrailPct: 0.5, TargetR: 3}},
			side:   model.ActionBuy,
			ticks:  []float64{1010, 1016, 1010},
			reason: []string{ExitPartial, ExitTrailingStop},
			gross:  []float64{10 * 75, 10 * 75},
		},
		{
			name:   "single lot moves stop to break-even and takes 2R",
			cfg:    PaperConfig{Qty: 75, LotSize: 75, Exits: ExitRules{StopLossPct: 1, PartialFraction: 0.5, TargetR: 2}},
			side:   model.ActionBuy,
			ticks:  []float64{1010, 1015, 1020},
			reason: []string{ExitTarget},
			gross:  []float64{20 * 75},
		},
		{
			name:   "short back to break-even after 1R",
			cfg:    PaperConfig{Qty: 75, LotSize: 75, Exits: ExitRules{StopLossPct: 1, TargetR: 2}},
			side:   model.ActionSell,
			ticks:  []float64{990, 995, 1000},
			reason: []string{ExitTrailingStop},
			gross:  []float64{0},
		},
		{
			name: "partial leaves the rest open below target",
			cfg: PaperConfig{Qty: 225, LotSize: 75,
				Exits: ExitRules{StopLossPct: 1, PartialFraction: 0.5, TargetR: 2}},
			side:   model.ActionBuy,
			ticks:  []float64{1010, 1015},
			reason: []string{ExitPartial},
			gross:  []float64{10 * 75},
			open:   150,
		},
		{
			name:  "no rules, no exits",
			cfg:   PaperConfig{Qty: 75},
			side:  model.ActionBuy,
			ticks: []float64{900, 1100},
			open:  75,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPaperWith(t, tt.cfg, nil)
			ctx := context.Background()
			p.Publish(ctx, decision(tt.side, at(10, 0), 1000))
			for i, px := range tt.ticks {
				p.OnClock(ctx, at(10, 1+i), px)
			}

			trades := p.Trades()
			if len(trades) != len(tt.reason) {
				t.Fatalf("trades=%+v, want reasons %v", trades, tt.reason)
			}
			for i, tr := range trades {
				if tr.ExitReason != tt.reason[i] {
					t.Errorf("trade %d reason=%s, want %s", i, tr.ExitReason, tt.reason[i])
				}
				assertClose(t, tr.ExitReason+" gross", tr.Gross, tt.gross[i])
			}
			pos, ok := p.Position()
			if tt.open == 0 && ok {
				t.Errorf("position still open: %+v", pos)
			}
			if tt.open > 0 && (!ok || pos.Qty != tt.open) {
				t.Errorf("open qty=%d ok=%v, want %d", pos.Qty, ok, tt.open)
			}
		})
	}
}

func TestPaper_VWAPRecrossBeforeOneR(t *testing.T) {
	p := newPaperWith(t, PaperConfig{Qty: 75, Exits: ExitRules{StopLossPct: 1, VWAPRecross: true}}, nil)
	ctx := context.Background()

	entry := decision(model.ActionBuy, at(10, 0), 1000)
	entry.VWAP = model.Some(995)
	p.Publish(ctx, entry)
	p.OnClock(ctx, at(10, 1), 998)
	if _, ok := p.Position(); !ok {
		t.Fatal("close above VWAP must keep the position")
	}

	hold := decision(model.ActionHold, at(10, 5), 994)
	hold.VWAP = model.Some(995)
	p.Publish(ctx, hold)
	p.OnClock(ctx, at(10, 6), 996)

	tr := p.Trades()
	if len(tr) != 1 || tr[0].ExitReason != ExitVWAPRecross {
		t.Fatalf("trades=%+v", tr)
	}
}

func TestPaper_VWAPRecrossIgnoredAfterOneR(t *testing.T) {
	p := newPaperWith(t, PaperConfig{Qty: 75, Exits: ExitRules{StopLossPct: 1, VWAPRecross: true}}, nil)
	ctx := context.Background()

	entry := decision(model.ActionBuy, at(10, 0), 1000)
	entry.VWAP = model.Some(995)
	p.Publish(ctx, entry)
	p.OnClock(ctx, at(10, 1), 1010)

	hold := decision(model.ActionHold, at(10, 5), 1005)
	hold.VWAP = model.Some(1006)
	p.Publish(ctx, hold)
	p.OnClock(ctx, at(10, 6), 1005)
	if _, ok := p.Position(); !ok {
		t.Fatalf("trades=%+v, want the position kept after 1R", p.Trades())
	}
}

func TestPartialQty(t *testing.T) {
	tests := []struct {
		qty, lot int64
		fraction float64
		want     int64
	}{
		{150, 75, 0.5, 75},
		{225, 75, 0.5, 75},
		{300, 75, 0.5, 150},
		{75, 75, 0.5, 0},   // single lot: no scale-out
		{150, 75, 0.1, 75}, // at least one lot
		{150, 75, 0, 0},
		{10, 0, 0.5, 5},
	}
	for _, tt := range tests {
		if got := partialQty(tt.qty, tt.lot, tt.fraction); got != tt.want {
			t.Errorf("partialQty(%d, %d, %.1f)=%d, want %d", tt.qty, tt.lot, tt.fraction, got, tt.want)
		}
	}
}
