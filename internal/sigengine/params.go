package sigengine

import (
	"github.com/rs/zerolog"

	"trading-signalv1/internal/strategy"
)

// LogParams logs the strategy parameters at startup. The fixed-point
// tolerance is reported as a warning: it approximates the ATR-scaled one.
func LogParams(l zerolog.Logger, p strategy.Params) {
	l.Info().
		Int("ema_trend_fast", p.TrendFastPeriod).
		Int("ema_trend_slow", p.TrendSlowPeriod).
		Int("ema_entry_fast", p.EntryFastPeriod).
		Int("ema_entry_slow", p.EntrySlowPeriod).
		Float64("rsi_bull", p.RSIBullThreshold).
		Float64("rsi_bear", p.RSIBearThreshold).
		Str("tolerance_mode", string(p.ToleranceMode)).
		Msg("strategy parameters")
	if p.ToleranceMode == strategy.ToleranceFixed {
		l.Warn().
			Float64("tolerance_points", p.PullbackTolerancePoints).
			Float64("atr_factor", p.PullbackATRFactor).
			Msg("TOLERANCE_MODE=fixed approximates the ATR-scaled pullback tolerance; decisions may differ from atr mode")
	}
}
