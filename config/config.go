// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/strategy"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials. Only the live daemon and the archiver need them.
	AngelAPIKey     string `envconfig:"ANGEL_API_KEY"`
	AngelClientCode string `envconfig:"ANGEL_CLIENT_CODE"`
	AngelPassword   string `envconfig:"ANGEL_PASSWORD"`
	AngelTOTPSecret string `envconfig:"ANGEL_TOTP_SECRET"`

	// Instrument
	Token         string `envconfig:"SIGNAL_TOKEN" default:"99926000"`
	Exchange      string `envconfig:"SIGNAL_EXCHANGE" default:"NSE"`
	TradingSymbol string `envconfig:"SIGNAL_SYMBOL" default:"Nifty 50"`
	LotSize       int    `envconfig:"LOT_SIZE" default:"75"`

	// Infrastructure
	LogLevel      string   `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr      string   `envconfig:"HTTP_ADDR" default:":8080"`
	SQLitePath    string   `envconfig:"SQLITE_PATH" default:"data/signals.db"`
	RedisEnabled  bool     `envconfig:"REDIS_ENABLED" default:"true"`
	RedisAddr     string   `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"nifty-signals"`

	// Alerts
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	WebhookURL       string `envconfig:"ALERT_WEBHOOK_URL"`

	// Data layer
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	SettleDelay  time.Duration `envconfig:"SETTLE_DELAY" default:"90s"`
	KeepBars     int           `envconfig:"KEEP_BARS" default:"150"`

	// Strategy
	EMAFast15m              int     `envconfig:"EMA_FAST_15M" default:"20"`
	EMASlow15m              int     `envconfig:"EMA_SLOW_15M" default:"50"`
	EMAFast5m               int     `envconfig:"EMA_FAST_5M" default:"9"`
	EMASlow5m               int     `envconfig:"EMA_SLOW_5M" default:"21"`
	RSIPeriod               int     `envconfig:"RSI_PERIOD" default:"14"`
	RSIBullThreshold        float64 `envconfig:"RSI_BULL_THRESHOLD" default:"55"`
	RSIBearThreshold        float64 `envconfig:"RSI_BEAR_THRESHOLD" default:"45"`
	ATRPeriod               int     `envconfig:"ATR_PERIOD" default:"14"`
	PullbackTolerancePoints float64 `envconfig:"PULLBACK_TOLERANCE_POINTS" default:"5"`
	PullbackATRFactor       float64 `envconfig:"PULLBACK_ATR_FACTOR" default:"0.25"`
	ToleranceMode           string  `envconfig:"TOLERANCE_MODE" default:"atr"`
	VolumeSurgeMultiplier   float64 `envconfig:"VOLUME_SURGE_MULTIPLIER" default:"1.2"`
	VolumeLookback          int     `envconfig:"VOLUME_LOOKBACK" default:"10"`
	MinFastBars             int     `envconfig:"MIN_FAST_BARS" default:"25"`

	// Session windows (IST, HH:MM)
	SessionOpen     string   `envconfig:"SESSION_OPEN" default:"09:15"`
	SessionClose    string   `envconfig:"SESSION_CLOSE" default:"15:30"`
	BufferMinutes   int      `envconfig:"SESSION_BUFFER_MINUTES" default:"20"`
	HardExitMinutes int      `envconfig:"HARD_EXIT_MINUTES" default:"10"`
	MiddayStart     string   `envconfig:"MIDDAY_START" default:"11:30"`
	MiddayEnd       string   `envconfig:"MIDDAY_END" default:"13:45"`
	ExtraHolidays   []string `envconfig:"EXTRA_HOLIDAYS"`

	// Paper execution
	PaperEnabled bool    `envconfig:"PAPER_ENABLED" default:"true"`
	PaperLots    int     `envconfig:"PAPER_LOTS" default:"1"`
	SlippageBps  float64 `envconfig:"SLIPPAGE_BPS" default:"2"`
	PaperReverse bool    `envconfig:"PAPER_REVERSE" default:"false"`

	// Paper exit rules, 0 disables
	StopLossPct     float64 `envconfig:"PAPER_STOP_LOSS_PCT" default:"1"`
	PartialFraction float64 `envconfig:"PAPER_PARTIAL_FRACTION" default:"0.5"`
	TrailPct        float64 `envconfig:"PAPER_TRAIL_PCT" default:"0.5"`
	TargetR         float64 `envconfig:"PAPER_TARGET_R" default:"2"`
	VWAPRecross     bool    `envconfig:"PAPER_VWAP_RECROSS" default:"true"`

	// Paper risk limits, 0 disables
	MaxDailyLoss    float64 `envconfig:"PAPER_MAX_DAILY_LOSS" default:"0"`
	MaxTradesPerDay int     `envconfig:"PAPER_MAX_TRADES_PER_DAY" default:"0"`
	MaxDrawdownPct  float64 `envconfig:"PAPER_MAX_DRAWDOWN_PCT" default:"0"`
	InitialEquity   float64 `envconfig:"PAPER_INITIAL_EQUITY" default:"500000"`
}

// Load reads configuration from environment variables with defaults and
// registers any extra holidays with the market calendar.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if bad := markethours.AddHolidays(cfg.ExtraHolidays...); len(bad) > 0 {
		return nil, fmt.Errorf("config: invalid EXTRA_HOLIDAYS %s", strings.Join(bad, ","))
	}
	return &cfg, nil
}

// Instrument returns the configured instrument.
func (c *Config) Instrument() model.Instrument {
	return model.Instrument{
		Token:         c.Token,
		Exchange:      c.Exchange,
		TradingSymbol: c.TradingSymbol,
		Name:          c.TradingSymbol,
		LotSize:       c.LotSize,
	}
}

// StrategyParams converts the strategy fields. The result is validated.
func (c *Config) StrategyParams() (strategy.Params, error) {
	p := strategy.Params{
		TrendFastPeriod:         c.EMAFast15m,
		TrendSlowPeriod:         c.EMASlow15m,
		EntryFastPeriod:         c.EMAFast5m,
		EntrySlowPeriod:         c.EMASlow5m,
		RSIPeriod:               c.RSIPeriod,
		RSIBullThreshold:        c.RSIBullThreshold,
		RSIBearThreshold:        c.RSIBearThreshold,
		ATRPeriod:               c.ATRPeriod,
		PullbackTolerancePoints: c.PullbackTolerancePoints,
		PullbackATRFactor:       c.PullbackATRFactor,
		ToleranceMode:           strategy.ToleranceMode(strings.ToLower(c.ToleranceMode)),
		VolumeSurgeMultiplier:   c.VolumeSurgeMultiplier,
		VolumeLookback:          c.VolumeLookback,
		MinFastBars:             c.MinFastBars,
	}
	if err := p.Validate(); err != nil {
		return strategy.Params{}, err
	}
	return p, nil
}

// GateConfig builds the session windows. The result is validated.
func (c *Config) GateConfig() (markethours.GateConfig, error) {
	var open, closeAt, midStart, midEnd markethours.Clock
	for _, f := range []struct {
		env string
		raw string
		dst *markethours.Clock
	}{
		{"SESSION_OPEN", c.SessionOpen, &open},
		{"SESSION_CLOSE", c.SessionClose, &closeAt},
		{"MIDDAY_START", c.MiddayStart, &midStart},
		{"MIDDAY_END", c.MiddayEnd, &midEnd},
	} {
		v, err := markethours.ParseClock(f.raw)
		if err != nil {
			return markethours.GateConfig{}, fmt.Errorf("config: %s: %w", f.env, err)
		}
		*f.dst = v
	}
	g := markethours.WindowsFromSession(open, closeAt, c.BufferMinutes, c.HardExitMinutes, midStart, midEnd)
	if err := g.Validate(); err != nil {
		return markethours.GateConfig{}, err
	}
	return g, nil
}

// RiskLimits returns the paper account limits.
func (c *Config) RiskLimits() execution.RiskLimits {
	return execution.RiskLimits{
		MaxDailyLoss:    c.MaxDailyLoss,
		MaxTradesPerDay: c.MaxTradesPerDay,
		MaxDrawdownPct:  c.MaxDrawdownPct,
	}
}

// PaperConfig returns the paper executor settings for the instrument.
func (c *Config) PaperConfig() execution.PaperConfig {
	return execution.PaperConfig{
		Instrument:  c.Instrument(),
		Qty:         int64(c.PaperLots * c.LotSize),
		SlippageBps: c.SlippageBps,
		Costs:       execution.DefaultCosts(),
		LotSize:     int64(c.LotSize),
		Reverse:     c.PaperReverse,
		Exits: execution.ExitRules{
			StopLossPct:     c.StopLossPct,
			PartialFraction: c.PartialFraction,
			TrailPct:        c.TrailPct,
			TargetR:         c.TargetR,
			VWAPRecross:     c.VWAPRecross,
		},
	}
}

// RequireBroker reports missing Angel One credentials.
func (c *Config) RequireBroker() error {
	var missing []string
	for name, v := range map[string]string{
		"ANGEL_API_KEY":     c.AngelAPIKey,
		"ANGEL_CLIENT_CODE": c.AngelClientCode,
		"ANGEL_PASSWORD":    c.AngelPassword,
		"ANGEL_TOTP_SECRET": c.AngelTOTPSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.New("config: required env vars not set: " + strings.Join(missing, ", "))
	}
	return nil
}
