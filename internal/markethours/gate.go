package markethours

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day in IST, in seconds since midnight.
type Clock int

// At builds a Clock from hours and minutes.
func At(hour, minute int) Clock { return Clock(hour*3600 + minute*60) }

// ParseClock parses "15:04" or "15:04:05".
func ParseClock(s string) (Clock, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
}

// ClockOf returns the IST time of day of t.
func ClockOf(t time.Time) Clock {
	ist := t.In(IST)
	return Clock(ist.Hour()*3600 + ist.Minute()*60 + ist.Second())
}

// Add shifts the clock by whole minutes.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes*60) }

// On returns the absolute time of c on t's IST calendar day.
func (c Clock) On(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST).Add(time.Duration(c) * time.Second)
}

func (c Clock) String() string {
	h, m, s := int(c)/3600, int(c)%3600/60, int(c)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Phase is the position of a timestamp within the trading day.
type Phase int

const (
	PhasePreOpen Phase = iota
	PhaseMorning
	PhaseMiddayBlackout
	PhaseAfternoon
	PhaseFlatten
	PhaseHardExit
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhasePreOpen:
		return "PRE_OPEN"
	case PhaseMorning:
		return "MORNING"
	case PhaseMiddayBlackout:
		return "MIDDAY_BLACKOUT"
	case PhaseAfternoon:
		return "AFTERNOON"
	case PhaseFlatten:
		return "FLATTEN"
	case PhaseHardExit:
		return "HARD_EXIT"
	default:
		return "CLOSED"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Defaults for the entry windows.
const (
	DefaultBufferMinutes   = 20
	DefaultHardExitMinutes = 10 // before the close
)

// GateConfig holds the entry windows. Morning is [MorningStart, MorningEnd),
// afternoon is [AfternoonStart, Flatten). Bounds already net out the buffer
// from the raw session open and close.
type GateConfig struct {
	MorningStart   Clock
	MorningEnd     Clock
	AfternoonStart Clock
	Flatten        Clock
	HardExit       Clock
	Close          Clock

	// SkipNonTradingDays makes weekends and NSE holidays PhaseClosed.
	SkipNonTradingDays bool
}

// WindowsFromSession derives a GateConfig from the raw session bounds: entries
// open buffer minutes after the open, flattening starts buffer minutes before
// the close and the hard exit hardExit minutes before it.
func WindowsFromSession(open, closeAt Clock, bufferMinutes, hardExitMinutes int, morningEnd, afternoonStart Clock) GateConfig {
	return GateConfig{
		MorningStart:       open.Add(bufferMinutes),
		MorningEnd:         morningEnd,
		AfternoonStart:     afternoonStart,
		Flatten:            closeAt.Add(-bufferMinutes),
		HardExit:           closeAt.Add(-hardExitMinutes),
		Close:              closeAt,
		SkipNonTradingDays: true,
	}
}

// DefaultGateConfig is 09:35-11:30 and 13:45-15:10, flatten 15:10, hard exit 15:20.
func DefaultGateConfig() GateConfig {
	return WindowsFromSession(At(OpenHour, OpenMinute), At(CloseHour, CloseMinute),
		DefaultBufferMinutes, DefaultHardExitMinutes, At(11, 30), At(13, 45))
}

// ConfigError reports an invalid window configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("markethours: invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that the bounds are ordered.
func (c GateConfig) Validate() error {
	order := []struct {
		name string
		v    Clock
	}{
		{"morning_start", c.MorningStart},
		{"morning_end", c.MorningEnd},
		{"afternoon_start", c.AfternoonStart},
		{"flatten", c.Flatten},
		{"hard_exit", c.HardExit},
		{"close", c.Close},
	}
	for _, b := range order {
		if b.v < 0 || b.v > At(24, 0) {
			return &ConfigError{Field: b.name, Reason: "outside the day"}
		}
	}
	if c.MorningStart >= c.MorningEnd {
		return &ConfigError{Field: "morning_end", Reason: "morning window is empty or inverted"}
	}
	if c.AfternoonStart >= c.Flatten {
		return &ConfigError{Field: "afternoon_start", Reason: "afternoon window is empty or inverted"}
	}
	for i := 1; i < len(order); i++ {
		if order[i].v < order[i-1].v {
			return &ConfigError{
				Field:  order[i].name,
				Reason: fmt.Sprintf("%s is before %s %s", order[i].v, order[i-1].name, order[i-1].v),
			}
		}
	}
	return nil
}

// Gate classifies timestamps against the configured windows. It only holds
// immutable config and is safe for concurrent use.
type Gate struct {
	cfg GateConfig
}

// NewGate validates cfg and returns a gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// Config returns the gate configuration.
func (g *Gate) Config() GateConfig { return g.cfg }

// Phase classifies ts.
func (g *Gate) Phase(ts time.Time) Phase {
	if g.cfg.SkipNonTradingDays && !IsTradingDay(ts) {
		return PhaseClosed
	}
	c := ClockOf(ts)
	switch {
	case c < g.cfg.MorningStart:
		return PhasePreOpen
	case c < g.cfg.MorningEnd:
		return PhaseMorning
	case c < g.cfg.AfternoonStart:
		return PhaseMiddayBlackout
	case c < g.cfg.Flatten:
		return PhaseAfternoon
	case c >= g.cfg.Close:
		return PhaseClosed
	case c >= g.cfg.HardExit:
		return PhaseHardExit
	default:
		return PhaseFlatten
	}
}

// AllowsEntry is true only inside the morning or afternoon window.
func (g *Gate) AllowsEntry(ts time.Time) bool {
	p := g.Phase(ts)
	return p == PhaseMorning || p == PhaseAfternoon
}

// MustFlatten is true from the flatten time onward.
func (g *Gate) MustFlatten(ts time.Time) bool {
	return ClockOf(ts) >= g.cfg.Flatten
}

// MustHardExit is true from the hard-exit time onward; it overrides flatten.
func (g *Gate) MustHardExit(ts time.Time) bool {
	return ClockOf(ts) >= g.cfg.HardExit
}
