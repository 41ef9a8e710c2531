// Package poller feeds the book from the broker: it fetches the session's
// 1m candles on a fixed interval, keeps only newly closed ones, archives
// them and triggers an evaluation step.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/metrics"
	"trading-signalv1/internal/model"
)

// Config controls polling cadence and warm-up depth.
type Config struct {
	Interval time.Duration // default 30s
	// WarmupDays is how many calendar days of history are loaded before the
	// first live poll, default 7.
	WarmupDays int
}

// StepFunc is invoked after every poll with the poll time.
type StepFunc func(ctx context.Context, now time.Time)

// Poller drives one book from a CandleSource.
type Poller struct {
	cfg  Config
	src  model.CandleSource
	book *book.Book
	log  zerolog.Logger

	Archive model.CandleArchive   // optional
	Metrics *metrics.Metrics      // optional
	Health  *metrics.HealthStatus // optional
	Step    StepFunc              // optional
	// PreOpen runs once per session from markethours.NextPreOpen until the
	// open, e.g. a fresh broker login. A failure is retried next tick.
	PreOpen func(ctx context.Context) error
	Now     func() time.Time

	preOpened string // session key of the last successful PreOpen
}

// New creates a poller for the book's instrument.
func New(cfg Config, src model.CandleSource, bk *book.Book, l zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.WarmupDays <= 0 {
		cfg.WarmupDays = 7
	}
	return &Poller{
		cfg:  cfg,
		src:  src,
		book: bk,
		log:  l.With().Str("component", "poller").Logger(),
		Now:  time.Now,
	}
}

// Warmup loads history for the trailing WarmupDays: archived candles first,
// then whatever the broker has after the last archived one.
func (p *Poller) Warmup(ctx context.Context, now time.Time) (int, error) {
	inst := p.book.Instrument()
	from := markethours.SessionOpen(now).AddDate(0, 0, -p.cfg.WarmupDays)
	n := 0
	if p.Archive != nil {
		archived, err := p.Archive.ReadCandles(inst, from, now)
		if err != nil {
			p.log.Warn().Err(err).Msg("archive read failed, warming up from broker only")
		} else {
			n += p.ingest(closedAfter(archived, p.book.LastTS(), now))
		}
	}
	if last := p.book.LastTS(); !last.IsZero() {
		from = last.Add(time.Minute)
	}
	if from.After(now) {
		return n, nil
	}
	fetched, err := p.src.FetchCandles(ctx, inst, from, now)
	if err != nil {
		return n, err
	}
	fresh := closedAfter(fetched, p.book.LastTS(), now)
	p.archive(fresh)
	n += p.ingest(fresh)
	p.log.Info().Int("candles", n).Time("from", from).Msg("warm-up complete")
	return n, nil
}

// Poll fetches today's candles up to now and ingests the newly closed ones.
// It returns the number of candles added to the book.
func (p *Poller) Poll(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() {
		if p.Metrics != nil {
			p.Metrics.PollDur.Observe(time.Since(start).Seconds())
		}
	}()

	inst := p.book.Instrument()
	from := markethours.SessionOpen(now)
	if last := p.book.LastTS(); last.After(from) {
		from = last.Add(time.Minute)
	}
	if from.After(now) {
		return 0, nil
	}
	candles, err := p.src.FetchCandles(ctx, inst, from, now)
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.PollErrors.Inc()
		}
		return 0, err
	}
	fresh := closedAfter(candles, p.book.LastTS(), now)
	p.archive(fresh)
	n := p.ingest(fresh)
	if n > 0 && p.Health != nil {
		p.Health.SetLastCandleTime(p.book.LastTS())
	}
	return n, nil
}

// Run polls every Interval while the market is open and calls Step after
// each poll, even a failed one, so clock-driven exits still happen.
// Blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	open := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := p.Now()
		isOpen := markethours.IsMarketOpen(now)
		if isOpen != open {
			ev := p.log.Info().Bool("open", isOpen).Str("status", markethours.StatusString(now))
			if !isOpen {
				ev = ev.Time("next_login", markethours.NextPreOpen(now))
			}
			ev.Msg("market state")
			open = isOpen
		}
		if !isOpen {
			p.preOpen(ctx, now)
		}
		if isOpen {
			n, err := p.Poll(ctx, now)
			switch {
			case errors.Is(err, context.Canceled):
				return ctx.Err()
			case err != nil:
				p.log.Error().Err(err).Msg("poll failed")
			case n > 0:
				p.log.Debug().Int("candles", n).Time("last", p.book.LastTS()).Msg("polled")
			}
			if p.Step != nil {
				p.Step(ctx, now)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) preOpen(ctx context.Context, now time.Time) {
	if p.PreOpen == nil {
		return
	}
	next := markethours.NextOpen(now)
	key := markethours.SessionKey(next)
	if key == p.preOpened || now.Before(markethours.NextPreOpen(now)) {
		return
	}
	if err := p.PreOpen(ctx); err != nil {
		p.log.Error().Err(err).Time("open", next).Msg("pre-open failed")
		return
	}
	p.preOpened = key
	p.log.Info().Time("open", next).Msg("pre-open done")
}

func (p *Poller) ingest(candles []model.Candle) int {
	n := 0
	for _, c := range candles {
		if err := p.book.Ingest(c); err != nil {
			var invalid *model.InvalidCandleError
			if errors.As(err, &invalid) {
				if p.Metrics != nil {
					p.Metrics.ObserveInvalidCandle()
				}
				p.log.Warn().Err(err).Msg("candle rejected")
				continue
			}
			p.log.Error().Err(err).Msg("ingest failed")
			continue
		}
		if p.Metrics != nil {
			p.Metrics.ObserveCandle(model.TF1m)
		}
		n++
	}
	return n
}

func (p *Poller) archive(candles []model.Candle) {
	if p.Archive == nil || len(candles) == 0 {
		return
	}
	if err := p.Archive.WriteCandles(p.book.Instrument(), candles); err != nil {
		p.log.Error().Err(err).Int("candles", len(candles)).Msg("archive write failed")
		if p.Metrics != nil {
			p.Metrics.ObserveSinkError("sqlite")
		}
	}
}

// closedAfter keeps candles newer than last whose minute has fully elapsed
// by now. The broker returns the forming minute as its last row.
func closedAfter(candles []model.Candle, last, now time.Time) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if !last.IsZero() && !c.TS.After(last) {
			continue
		}
		if c.TS.Add(time.Minute).After(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}
