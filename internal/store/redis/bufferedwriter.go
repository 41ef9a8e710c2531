package redis

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/model"
)

const flushTimeout = 10 * time.Second

// Publisher is the Redis decision sink. Writes go through a circuit breaker;
// while the circuit is open actionable decisions are buffered locally and
// flushed when it closes again. HOLDs are dropped since the next decision
// replaces them.
type Publisher struct {
	writer *Writer
	cb     *CircuitBreaker
	log    zerolog.Logger

	mu     sync.Mutex
	buffer []model.Decision
	maxBuf int // max buffered decisions before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when a decision is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered decisions
}

// NewPublisher creates a Publisher wrapping the given Writer.
func NewPublisher(w *Writer, cb *CircuitBreaker, maxBufferSize int) *Publisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	p := &Publisher{
		writer: w,
		cb:     cb,
		log:    w.log,
		buffer: make([]model.Decision, 0, 64),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go p.flush()
		}
	}

	return p
}

// Name implements model.DecisionSink.
func (p *Publisher) Name() string { return "redis" }

// Publish writes a decision through the circuit breaker.
// If the circuit is open, actionable decisions are buffered.
func (p *Publisher) Publish(ctx context.Context, d model.Decision) error {
	err := p.cb.Execute(func() error {
		return p.writer.WriteDecision(ctx, d)
	})
	if err == ErrCircuitOpen {
		if d.Action.Actionable() {
			p.bufferDecision(d)
		}
		return nil // buffered or superseded, not lost
	}
	return err
}

func (p *Publisher) bufferDecision(d model.Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, d)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays all buffered decisions through the underlying writer.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]model.Decision, 0, 64)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	flushed := 0
	for _, d := range toFlush {
		if err := p.writer.WriteDecision(ctx, d); err != nil {
			p.log.Warn().Err(err).Int64("bar_id", int64(d.BarID)).Msg("flush failed")
			continue
		}
		flushed++
	}

	p.log.Info().Int("flushed", flushed).Int("buffered", len(toFlush)).Msg("flushed buffered decisions")
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered decisions waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Underlying returns the Redis writer for direct access.
func (p *Publisher) Underlying() *Writer {
	return p.writer
}
