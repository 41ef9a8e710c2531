package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/strategy"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token != "99926000" || cfg.Exchange != "NSE" {
		t.Errorf("instrument=%s/%s", cfg.Exchange, cfg.Token)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("poll=%s, want 30s", cfg.PollInterval)
	}

	p, err := cfg.StrategyParams()
	if err != nil {
		t.Fatalf("StrategyParams: %v", err)
	}
	if p != strategy.DefaultParams() {
		t.Errorf("params=%+v, want defaults", p)
	}

	g, err := cfg.GateConfig()
	if err != nil {
		t.Fatalf("GateConfig: %v", err)
	}
	if g != markethours.DefaultGateConfig() {
		t.Errorf("gate=%+v, want defaults", g)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RSI_BULL_THRESHOLD", "60")
	t.Setenv("TOLERANCE_MODE", "FIXED")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MIDDAY_START", "12:00")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers=%v", cfg.KafkaBrokers)
	}
	p, err := cfg.StrategyParams()
	if err != nil {
		t.Fatalf("StrategyParams: %v", err)
	}
	if p.RSIBullThreshold != 60 || p.ToleranceMode != strategy.ToleranceFixed {
		t.Errorf("params=%+v", p)
	}
	g, err := cfg.GateConfig()
	if err != nil {
		t.Fatalf("GateConfig: %v", err)
	}
	if g.MorningEnd != markethours.At(12, 0) {
		t.Errorf("morning end=%s", g.MorningEnd)
	}
}

func TestStrategyParams_Invalid(t *testing.T) {
	t.Setenv("RSI_BEAR_THRESHOLD", "70")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = cfg.StrategyParams()
	var ce *strategy.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v, want *strategy.ConfigError", err)
	}
}

func TestGateConfig_BadClock(t *testing.T) {
	t.Setenv("SESSION_CLOSE", "3pm")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.GateConfig(); err == nil || !strings.Contains(err.Error(), "SESSION_CLOSE") {
		t.Errorf("err=%v", err)
	}
}

func TestLoad_ExtraHolidays(t *testing.T) {
	t.Setenv("EXTRA_HOLIDAYS", "2026-07-01")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !markethours.IsHoliday(time.Date(2026, 7, 1, 10, 0, 0, 0, markethours.IST)) {
		t.Error("extra holiday not registered")
	}

	t.Setenv("EXTRA_HOLIDAYS", "2026-13-01")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid holiday")
	}
}

func TestRequireBroker(t *testing.T) {
	cfg := &Config{AngelAPIKey: "k", AngelClientCode: "c"}
	err := cfg.RequireBroker()
	if err == nil || !strings.Contains(err.Error(), "ANGEL_PASSWORD, ANGEL_TOTP_SECRET") {
		t.Errorf("err=%v", err)
	}
	cfg.AngelPassword, cfg.AngelTOTPSecret = "p", "s"
	if err := cfg.RequireBroker(); err != nil {
		t.Errorf("err=%v", err)
	}
}

func TestRiskLimits(t *testing.T) {
	t.Setenv("PAPER_MAX_DAILY_LOSS", "2500")
	t.Setenv("PAPER_MAX_TRADES_PER_DAY", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.RiskLimits()
	if got.MaxDailyLoss != 2500 || got.MaxTradesPerDay != 4 || got.MaxDrawdownPct != 0 {
		t.Errorf("limits=%+v", got)
	}
}

func TestPaperConfig(t *testing.T) {
	t.Setenv("PAPER_LOTS", "2")
	t.Setenv("PAPER_TARGET_R", "3")
	t.Setenv("PAPER_VWAP_RECROSS", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pc := cfg.PaperConfig()
	if pc.Qty != 150 || pc.LotSize != 75 || pc.Reverse {
		t.Errorf("paper=%+v", pc)
	}
	want := execution.DefaultExitRules()
	want.TargetR, want.VWAPRecross = 3, false
	if pc.Exits != want {
		t.Errorf("exits=%+v, want %+v", pc.Exits, want)
	}
}
