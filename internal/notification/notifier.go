// Package notification delivers alerts to external channels (Telegram,
// webhooks) for actionable signals and end-of-day session events.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertKind tells receivers what raised the alert.
type AlertKind string

const (
	KindSignal  AlertKind = "signal"
	KindSession AlertKind = "session"
)

// Alert represents a notification to be sent. Decision is set for signal
// alerts so structured receivers get the full record.
type Alert struct {
	Kind     AlertKind       `json:"kind"`
	Level    AlertLevel      `json:"level"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	At       time.Time       `json:"at"`
	Decision *model.Decision `json:"decision,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log (development default).
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(l zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: l.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info().Str("level", string(alert.Level)).Str("title", alert.Title).Msg(alert.Message)
	return nil
}

// Multi fans an alert out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlerter turns decisions into alerts. It is a model.DecisionSink that
// only reacts to BUY/SELL.
type SignalAlerter struct {
	n Notifier
}

// NewSignalAlerter wraps a notifier.
func NewSignalAlerter(n Notifier) *SignalAlerter { return &SignalAlerter{n: n} }

// Name implements model.DecisionSink.
func (a *SignalAlerter) Name() string { return "alerts" }

// Publish implements model.DecisionSink.
func (a *SignalAlerter) Publish(ctx context.Context, d model.Decision) error {
	if !d.Action.Actionable() {
		return nil
	}
	return a.n.Send(ctx, SignalAlert(d))
}

// SessionEvent alerts on a flatten or hard-exit transition.
func (a *SignalAlerter) SessionEvent(ctx context.Context, phase markethours.Phase, inst model.Instrument) error {
	alert, ok := PhaseAlert(phase, inst)
	if !ok {
		return nil
	}
	return a.n.Send(ctx, alert)
}

// SignalAlert formats an actionable decision.
func SignalAlert(d model.Decision) Alert {
	return Alert{
		Kind:     KindSignal,
		Level:    AlertWarning,
		At:       d.TS,
		Decision: &d,
		Title:    fmt.Sprintf("%s %s:%s", d.Action, d.Exchange, d.Token),
		Message: fmt.Sprintf("bias=%s close=%.2f vwap=%s rsi=%s tolerance=%.2f bar=%s",
			d.Bias, d.Close, d.VWAP, d.RSI, d.Tolerance,
			d.TS.In(markethours.IST).Format("2006-01-02 15:04")),
	}
}

// PhaseAlert formats the end-of-day transitions. Other phases produce no alert.
func PhaseAlert(phase markethours.Phase, inst model.Instrument) (Alert, bool) {
	switch phase {
	case markethours.PhaseFlatten:
		return Alert{
			Kind:    KindSession,
			Level:   AlertWarning,
			Title:   "Flatten window " + inst.Key(),
			Message: "No new entries; close open positions before the hard exit.",
		}, true
	case markethours.PhaseHardExit:
		return Alert{
			Kind:    KindSession,
			Level:   AlertCritical,
			Title:   "Hard exit " + inst.Key(),
			Message: "Forced exit of all open positions.",
		}, true
	}
	return Alert{}, false
}
