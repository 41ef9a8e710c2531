package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"trading-signalv1/internal/marketdata/book"
	"trading-signalv1/internal/markethours"
	"trading-signalv1/internal/metrics"
	"trading-signalv1/internal/model"
	"trading-signalv1/pkg/smartconnect"
)

var open = time.Date(2026, 3, 2, 9, 15, 0, 0, markethours.IST)

func bar(ts time.Time, p float64) model.Candle {
	return model.Candle{TS: ts, Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: 100}
}

func minutes(start time.Time, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = bar(start.Add(time.Duration(i)*time.Minute), 22000+float64(i))
	}
	return out
}

// fakeSource serves a fixed tape, filtered by the requested window.
type fakeSource struct {
	mu    sync.Mutex
	tape  []model.Candle
	calls [][2]time.Time
	err   error
}

func (f *fakeSource) FetchCandles(_ context.Context, _ model.Instrument, from, to time.Time) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]time.Time{from, to})
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Candle
	for _, c := range f.tape {
		if !c.TS.Before(from) && !c.TS.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memArchive struct {
	candles []model.Candle
}

func (a *memArchive) WriteCandles(_ model.Instrument, cs []model.Candle) error {
	a.candles = append(a.candles, cs...)
	return nil
}

func (a *memArchive) ReadCandles(_ model.Instrument, from, to time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range a.candles {
		if !c.TS.Before(from) && !c.TS.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestPoller(src model.CandleSource) (*Poller, *book.Book) {
	bk := book.New(model.Nifty50, book.DefaultConfig())
	return New(Config{}, src, bk, zerolog.Nop()), bk
}

func TestPoll_DropsFormingMinuteAndDedups(t *testing.T) {
	src := &fakeSource{tape: minutes(open, 10)}
	p, bk := newTestPoller(src)
	arch := &memArchive{}
	p.Archive = arch

	// At 09:20:30 the 09:20 bar is still forming.
	now := open.Add(5*time.Minute + 30*time.Second)
	n, err := p.Poll(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("ingested %d, want 5", n)
	}
	if want := open.Add(4 * time.Minute); !bk.LastTS().Equal(want) {
		t.Errorf("last=%v, want %v", bk.LastTS(), want)
	}

	n, err = p.Poll(context.Background(), open.Add(7*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("second poll ingested %d, want 2", n)
	}
	if got := src.calls[1][0]; !got.Equal(open.Add(5 * time.Minute)) {
		t.Errorf("second poll from=%v", got)
	}
	if len(arch.candles) != 7 {
		t.Errorf("archived %d, want 7", len(arch.candles))
	}
}

func TestPoll_CountsInvalidCandles(t *testing.T) {
	tape := minutes(open, 3)
	tape[1].High = tape[1].Low - 1
	p, bk := newTestPoller(&fakeSource{tape: tape})
	reg := prometheus.NewRegistry()
	p.Metrics = metrics.NewMetrics(reg)
	p.Health = metrics.NewHealthStatus(false)

	n, err := p.Poll(context.Background(), open.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ingested %d, want 2", n)
	}
	if v := testutil.ToFloat64(p.Metrics.InvalidCandles); v != 1 {
		t.Errorf("invalid=%v", v)
	}
	if v := testutil.ToFloat64(p.Metrics.CandlesTotal.WithLabelValues(model.TF1m.String())); v != 2 {
		t.Errorf("candles=%v", v)
	}
	if !p.Health.LastCandleTime.Equal(bk.LastTS()) {
		t.Errorf("health last candle=%v", p.Health.LastCandleTime)
	}
}

func TestPoll_SourceError(t *testing.T) {
	boom := errors.New("boom")
	p, _ := newTestPoller(&fakeSource{err: boom})
	p.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	if _, err := p.Poll(context.Background(), open.Add(time.Hour)); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if v := testutil.ToFloat64(p.Metrics.PollErrors); v != 1 {
		t.Errorf("poll errors=%v", v)
	}
}

func TestWarmup_ArchiveThenBroker(t *testing.T) {
	prev := time.Date(2026, 2, 27, 9, 15, 0, 0, markethours.IST)
	arch := &memArchive{candles: minutes(prev, 30)}
	src := &fakeSource{tape: append(minutes(prev, 60), minutes(open, 20)...)}
	p, bk := newTestPoller(src)
	p.Archive = arch

	now := open.Add(10 * time.Minute)
	n, err := p.Warmup(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 70 {
		t.Fatalf("warm-up ingested %d, want 70", n)
	}
	if got := src.calls[0][0]; !got.Equal(prev.Add(30 * time.Minute)) {
		t.Errorf("broker fetch from=%v", got)
	}
	if !bk.LastTS().Equal(open.Add(9 * time.Minute)) {
		t.Errorf("last=%v", bk.LastTS())
	}
	if len(arch.candles) != 70 {
		t.Errorf("archive=%d, want 70", len(arch.candles))
	}
}

func TestRun_StepsWhileOpen(t *testing.T) {
	p, _ := newTestPoller(&fakeSource{tape: minutes(open, 5)})
	p.cfg.Interval = time.Millisecond
	p.Now = func() time.Time { return open.Add(10 * time.Minute) }
	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	p.Step = func(context.Context, time.Time) {
		steps++
		if steps == 3 {
			cancel()
		}
	}
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if steps != 3 {
		t.Errorf("steps=%d", steps)
	}
}

func TestRun_IdleWhenClosed(t *testing.T) {
	src := &fakeSource{}
	p, _ := newTestPoller(src)
	p.cfg.Interval = time.Millisecond
	p.Now = func() time.Time { return time.Date(2026, 3, 1, 11, 0, 0, 0, markethours.IST) } // Sunday
	p.Step = func(context.Context, time.Time) { t.Error("step on a closed market") }
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Run(ctx)
	if len(src.calls) != 0 {
		t.Errorf("fetched %d times while closed", len(src.calls))
	}
}

func TestRun_PreOpenOncePerSession(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before login time", open.Add(-10 * time.Minute), 0},
		{"inside pre-open", open.Add(-4 * time.Minute), 1},
		{"after close, next open far", time.Date(2026, 3, 2, 16, 0, 0, 0, markethours.IST), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestPoller(&fakeSource{})
			p.cfg.Interval = time.Millisecond
			p.Now = func() time.Time { return tc.now }
			calls := 0
			p.PreOpen = func(context.Context) error {
				calls++
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			p.Run(ctx)
			if calls != tc.want {
				t.Errorf("PreOpen calls=%d, want %d", calls, tc.want)
			}
		})
	}
}

func TestRun_PreOpenRetriesAfterFailure(t *testing.T) {
	p, _ := newTestPoller(&fakeSource{})
	p.cfg.Interval = time.Millisecond
	p.Now = func() time.Time { return open.Add(-2 * time.Minute) }
	calls := 0
	p.PreOpen = func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("login refused")
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.Run(ctx)
	if calls != 2 {
		t.Errorf("PreOpen calls=%d, want a retry then stop", calls)
	}
}

// fakeClient is a scripted SmartAPI client.
type fakeClient struct {
	session bool
	logins  int
	fails   int // GetCandleData calls that fail with a token error
	bars    []smartconnect.Bar
}

func (f *fakeClient) Login(context.Context, string, string, string) error {
	f.logins++
	f.session = true
	return nil
}

func (f *fakeClient) HasSession() bool { return f.session }

func (f *fakeClient) GetCandleData(context.Context, smartconnect.CandleRequest) ([]smartconnect.Bar, error) {
	if f.fails > 0 {
		f.fails--
		return nil, &smartconnect.APIError{Status: 403, ErrorType: "TokenException", Message: "expired"}
	}
	return f.bars, nil
}

func TestBrokerSource_RelogsOnTokenError(t *testing.T) {
	fc := &fakeClient{fails: 1, bars: []smartconnect.Bar{
		{Time: open, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: open.Add(-time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5},
	}}
	src := newBrokerSource(fc, Credentials{ClientCode: "C1"}, zerolog.Nop())
	var states []bool
	src.OnConnected = func(ok bool) { states = append(states, ok) }

	got, err := src.FetchCandles(context.Background(), model.Nifty50, open, open.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if fc.logins != 2 {
		t.Errorf("logins=%d, want 2", fc.logins)
	}
	if len(got) != 1 || got[0].Close != 1.5 {
		t.Errorf("candles=%+v", got)
	}
	if len(states) != 2 || !states[1] {
		t.Errorf("states=%v", states)
	}
}

func TestBrokerSource_OtherErrorsPassThrough(t *testing.T) {
	fc := &fakeClient{session: true}
	src := newBrokerSource(fc, Credentials{}, zerolog.Nop())
	if sessionRejected(errors.New("timeout")) {
		t.Error("plain errors are not session errors")
	}
	if !sessionRejected(smartconnect.ErrNoSession) {
		t.Error("ErrNoSession is a session error")
	}
	if _, err := src.FetchCandles(context.Background(), model.Nifty50, open, open); err != nil {
		t.Fatal(err)
	}
	if fc.logins != 0 {
		t.Errorf("logins=%d with an existing session", fc.logins)
	}
}

func TestBrokerSource_Relogin(t *testing.T) {
	fc := &fakeClient{session: true}
	src := newBrokerSource(fc, Credentials{ClientCode: "C1"}, zerolog.Nop())
	if err := src.Connect(context.Background()); err != nil || fc.logins != 0 {
		t.Fatalf("Connect with a session: err=%v logins=%d", err, fc.logins)
	}
	if err := src.Relogin(context.Background()); err != nil || fc.logins != 1 {
		t.Errorf("Relogin: err=%v logins=%d", err, fc.logins)
	}
}
