package execution

import (
	"context"
	"testing"

	"trading-signalv1/internal/model"
)

func TestRiskGuard_DailyLossResetsNextSession(t *testing.T) {
	g := NewRiskGuard(RiskLimits{MaxDailyLoss: 500}, 0)
	if ok, _ := g.CanEnter(at(10, 0)); !ok {
		t.Fatal("fresh guard must allow entries")
	}
	g.Record(Trade{ExitTime: at(10, 30), Net: -520})
	if ok, why := g.CanEnter(at(11, 0)); ok || why != "max daily loss reached" {
		t.Fatalf("ok=%v why=%q", ok, why)
	}
	if ok, _ := g.CanEnter(at(10, 0).AddDate(0, 0, 1)); !ok {
		t.Error("daily loss must reset on the next session")
	}
	if s := g.Status(); s.DailyPnL != 0 || s.Equity != -520 {
		t.Errorf("status=%+v", s)
	}
}

func TestRiskGuard_DrawdownPersists(t *testing.T) {
	g := NewRiskGuard(RiskLimits{MaxDrawdownPct: 5}, 10000)
	g.Record(Trade{ExitTime: at(10, 0), Net: 1000})
	g.Record(Trade{ExitTime: at(11, 0), Net: -600})
	if ok, _ := g.CanEnter(at(11, 5)); ok {
		t.Fatalf("drawdown %.2f%% should block", g.Status().DrawdownPct)
	}
	if ok, _ := g.CanEnter(at(10, 0).AddDate(0, 0, 1)); ok {
		t.Error("drawdown is not a daily limit")
	}
}

func TestPaper_RiskGuardBlocksEntryNotExit(t *testing.T) {
	p := newPaper(t, nil)
	p.cfg.Reverse = true
	p.Risk = NewRiskGuard(RiskLimits{MaxTradesPerDay: 1}, 0)
	ctx := context.Background()

	p.Publish(ctx, decision(model.ActionBuy, at(10, 0), 100))
	// reverse: the long closes, the short entry is vetoed
	p.Publish(ctx, decision(model.ActionSell, at(10, 30), 99))
	if _, ok := p.Position(); ok {
		t.Fatal("entry after the trade cap must be blocked")
	}
	if tr := p.Trades(); len(tr) != 1 || tr[0].ExitReason != "reverse" {
		t.Fatalf("trades=%+v", tr)
	}

	p.Publish(ctx, decision(model.ActionBuy, at(10, 0).AddDate(0, 0, 1), 101))
	if pos, ok := p.Position(); !ok || pos.Side != model.SideLong {
		t.Error("next session must allow entries again")
	}
}
