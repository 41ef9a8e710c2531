// Package sigengine runs the signal pipeline for one instrument: it advances
// the book to the current time, evaluates the engine, and hands every
// decision to the sinks. The live daemon and the backtester drive the same
// Pipeline, so equal candle tapes give equal decisions.
package sigengine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/execution"
	"trading-signalv1/internal/logger"
	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/marketdata/bus"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/metrics"
	"trading-signalv1/internal/model"
	"trading-signalv1/internal/strategy"
)

// PhaseNotifier is told about end-of-day transitions, once per session.
type PhaseNotifier interface {
	SessionEvent(ctx context.Context, phase markethours.Phase, inst model.Instrument) error
}

// Options are the pipeline's optional collaborators.
type Options struct {
	// Sinks are published to in order on the calling goroutine. Keep them
	// fast; slow consumers belong on FanOut.
	Sinks    []model.DecisionSink
	FanOut   *bus.FanOut
	Executor execution.Executor
	Phases   PhaseNotifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Logger   zerolog.Logger
}

// Pipeline is book -> engine -> sinks. Step and Ingest are serialized.
type Pipeline struct {
	book   *book.Book
	engine *strategy.Engine
	gate   *markethours.Gate
	opts   Options
	log    zerolog.Logger

	mu      sync.Mutex
	session string
	phase   markethours.Phase
	alerted map[markethours.Phase]bool
	last    model.Decision
	steps   int
}

// New wires a pipeline around bk and eng.
func New(bk *book.Book, eng *strategy.Engine, opts Options) *Pipeline {
	return &Pipeline{
		book:    bk,
		engine:  eng,
		gate:    eng.Gate(),
		opts:    opts,
		log:     logger.Component(opts.Logger, "pipeline"),
		phase:   -1,
		alerted: make(map[markethours.Phase]bool),
	}
}

// Book returns the pipeline's data layer.
func (p *Pipeline) Book() *book.Book { return p.book }

// Last returns the most recent decision and whether any step has run.
func (p *Pipeline) Last() (model.Decision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.steps > 0
}

// Ingest adds one closed 1m candle and evaluates at now. It is the replay
// entry point; the live path ingests through the poller and calls Step.
func (p *Pipeline) Ingest(ctx context.Context, c model.Candle, now time.Time) error {
	if err := p.book.Ingest(c); err != nil {
		if p.opts.Metrics != nil {
			p.opts.Metrics.ObserveInvalidCandle()
		}
		return err
	}
	p.opts.Metrics.ObserveCandle(model.TF1m)
	p.Step(ctx, now)
	return nil
}

// Step evaluates the engine as of now and publishes the decision.
func (p *Pipeline) Step(ctx context.Context, now time.Time) model.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.book.Advance(now)
	p.rollSession(now)

	start := time.Now()
	d := p.evaluate(now)
	phase := p.gate.Phase(now)
	p.opts.Metrics.ObserveDecision(d, phase, time.Since(start))

	ctx = logger.WithTraceID(ctx, d.TraceID)
	l := logger.WithTrace(ctx, p.log)
	if d.Action.Actionable() {
		l.Info().Str("action", d.Action.String()).Str("bias", d.Bias.String()).
			Float64("close", d.Close).Str("vwap", d.VWAP.String()).Str("rsi", d.RSI.String()).
			Float64("tolerance", d.Tolerance).Int64("bar", int64(d.BarID)).Msg("signal")
	} else {
		l.Debug().Str("reason", string(d.Reason)).Str("failed_check", d.FailedCheck).
			Str("bias", d.Bias.String()).Int64("bar", int64(d.BarID)).Msg("hold")
	}

	for _, s := range p.opts.Sinks {
		p.publish(ctx, l, s, d)
	}
	if p.opts.FanOut != nil {
		p.opts.FanOut.Broadcast(d)
	}
	if ex := p.opts.Executor; ex != nil {
		p.publish(ctx, l, ex, d)
		if c, ok := p.book.LastCandle(); ok {
			ex.OnClock(ctx, now, c.Close)
		}
	}
	p.onPhase(ctx, l, phase)

	if p.opts.Health != nil {
		p.opts.Health.SetLastDecisionAt(now)
	}
	p.last = d
	p.steps++
	return d
}

func (p *Pipeline) evaluate(now time.Time) model.Decision {
	inst := p.book.Instrument()
	in, err := p.book.Input(now, p.engine.Params())
	if err != nil {
		// Only reachable with invalid params, which NewEngine rejects.
		p.log.Error().Err(err).Msg("build input")
		return model.Decision{
			Action:   model.ActionHold,
			Reason:   model.ReasonInsufficientData,
			TS:       now,
			Token:    inst.Token,
			Exchange: inst.Exchange,
			TraceID:  logger.GenerateTraceID(inst.Token, now),
		}
	}
	d := p.engine.Generate(in)
	d.TraceID = logger.GenerateTraceID(inst.Token, now)
	return d
}

func (p *Pipeline) publish(ctx context.Context, l zerolog.Logger, s model.DecisionSink, d model.Decision) {
	if err := s.Publish(ctx, d); err != nil {
		l.Error().Err(err).Str("sink", s.Name()).Msg("publish failed")
		p.opts.Metrics.ObserveSinkError(s.Name())
	}
}

// rollSession clears per-session state when now is on a new IST date.
func (p *Pipeline) rollSession(now time.Time) {
	key := markethours.SessionKey(now)
	if key == p.session {
		return
	}
	if p.session != "" {
		p.engine.ResetSession()
		if p.opts.Metrics != nil {
			p.opts.Metrics.SessionTransitions.WithLabelValues("session").Inc()
		}
		p.log.Info().Str("from", p.session).Str("to", key).Msg("new session")
	}
	p.session = key
	p.alerted = make(map[markethours.Phase]bool)
}

func (p *Pipeline) onPhase(ctx context.Context, l zerolog.Logger, phase markethours.Phase) {
	if phase == p.phase {
		return
	}
	p.phase = phase
	l.Info().Str("phase", phase.String()).Msg("phase change")
	if phase != markethours.PhaseFlatten && phase != markethours.PhaseHardExit {
		return
	}
	if p.alerted[phase] {
		return
	}
	p.alerted[phase] = true
	if p.opts.Metrics != nil {
		label := "flatten"
		if phase == markethours.PhaseHardExit {
			label = "hard_exit"
		}
		p.opts.Metrics.SessionTransitions.WithLabelValues(label).Inc()
	}
	if p.opts.Phases != nil {
		if err := p.opts.Phases.SessionEvent(ctx, phase, p.book.Instrument()); err != nil {
			l.Warn().Err(err).Str("phase", phase.String()).Msg("phase alert failed")
		}
	}
}
