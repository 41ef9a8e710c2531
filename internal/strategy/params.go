package strategy

import "fmt"

// ToleranceMode selects how the pullback touch tolerance is derived.
type ToleranceMode string

const (
	// ToleranceATR is max(base, ATR*factor). This is the canonical mode.
	ToleranceATR ToleranceMode = "atr"
	// ToleranceFixed always uses the base points. It approximates the ATR
	// mode and exists for harnesses that do not carry ATR.
	ToleranceFixed ToleranceMode = "fixed"
)

// Params configures the signal engine. It is copied into the Engine at
// construction and never mutated afterwards.
type Params struct {
	TrendFastPeriod int // EMA on the slow timeframe, default 20
	TrendSlowPeriod int // default 50
	EntryFastPeriod int // EMA on the fast timeframe, default 9
	EntrySlowPeriod int // default 21

	RSIPeriod        int
	RSIBullThreshold float64
	RSIBearThreshold float64

	ATRPeriod               int
	PullbackTolerancePoints float64
	PullbackATRFactor       float64
	ToleranceMode           ToleranceMode

	VolumeSurgeMultiplier float64
	VolumeLookback        int

	// MinFastBars is the minimum number of closed fast bars before any
	// evaluation is attempted.
	MinFastBars int
}

// DefaultParams returns the production configuration.
func DefaultParams() Params {
	return Params{
		TrendFastPeriod:         20,
		TrendSlowPeriod:         50,
		EntryFastPeriod:         9,
		EntrySlowPeriod:         21,
		RSIPeriod:               14,
		RSIBullThreshold:        55,
		RSIBearThreshold:        45,
		ATRPeriod:               14,
		PullbackTolerancePoints: 5.0,
		PullbackATRFactor:       0.25,
		ToleranceMode:           ToleranceATR,
		VolumeSurgeMultiplier:   1.2,
		VolumeLookback:          10,
		MinFastBars:             25,
	}
}

// ConfigError reports an invalid engine parameter. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("strategy: invalid %s: %s", e.Field, e.Reason)
}

// Validate returns a *ConfigError for the first invalid field.
func (p Params) Validate() error {
	periods := []struct {
		name string
		v    int
	}{
		{"trend_fast_period", p.TrendFastPeriod},
		{"trend_slow_period", p.TrendSlowPeriod},
		{"entry_fast_period", p.EntryFastPeriod},
		{"entry_slow_period", p.EntrySlowPeriod},
		{"rsi_period", p.RSIPeriod},
		{"atr_period", p.ATRPeriod},
		{"volume_lookback", p.VolumeLookback},
	}
	for _, f := range periods {
		if f.v <= 0 {
			return &ConfigError{Field: f.name, Reason: "must be positive"}
		}
	}
	if p.TrendFastPeriod >= p.TrendSlowPeriod {
		return &ConfigError{Field: "trend_fast_period", Reason: "must be shorter than trend_slow_period"}
	}
	if p.EntryFastPeriod >= p.EntrySlowPeriod {
		return &ConfigError{Field: "entry_fast_period", Reason: "must be shorter than entry_slow_period"}
	}
	if p.RSIBullThreshold < 0 || p.RSIBullThreshold > 100 || p.RSIBearThreshold < 0 || p.RSIBearThreshold > 100 {
		return &ConfigError{Field: "rsi_thresholds", Reason: "must be within [0, 100]"}
	}
	if p.RSIBearThreshold >= p.RSIBullThreshold {
		return &ConfigError{
			Field:  "rsi_bear_threshold",
			Reason: fmt.Sprintf("%.2f must be below rsi_bull_threshold %.2f", p.RSIBearThreshold, p.RSIBullThreshold),
		}
	}
	if p.PullbackTolerancePoints < 0 {
		return &ConfigError{Field: "pullback_tolerance_points", Reason: "must not be negative"}
	}
	if p.PullbackATRFactor < 0 {
		return &ConfigError{Field: "pullback_atr_factor", Reason: "must not be negative"}
	}
	switch p.ToleranceMode {
	case ToleranceATR, ToleranceFixed:
	default:
		return &ConfigError{Field: "tolerance_mode", Reason: fmt.Sprintf("unknown mode %q", p.ToleranceMode)}
	}
	if p.VolumeSurgeMultiplier <= 0 {
		return &ConfigError{Field: "volume_surge_multiplier", Reason: "must be positive"}
	}
	if p.MinFastBars < 0 {
		return &ConfigError{Field: "min_fast_bars", Reason: "must not be negative"}
	}
	return nil
}
