package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-signalv1/internal/model"
	"trading-signalv1/pkg/smartconnect"
)

// Credentials are the SmartAPI login inputs.
type Credentials struct {
	ClientCode string
	Password   string
	TOTPSecret string
}

// candleClient is the subset of *smartconnect.SmartConnect the source uses.
type candleClient interface {
	Login(ctx context.Context, clientCode, password, totpSecret string) error
	HasSession() bool
	GetCandleData(ctx context.Context, req smartconnect.CandleRequest) ([]smartconnect.Bar, error)
}

// BrokerSource adapts the SmartAPI client to model.CandleSource. It logs in
// lazily and once more when the session is rejected.
type BrokerSource struct {
	client candleClient
	creds  Credentials
	log    zerolog.Logger

	mu sync.Mutex

	// OnConnected reports login state changes (optional).
	OnConnected func(bool)
}

// NewBrokerSource wraps an Angel One client.
func NewBrokerSource(client *smartconnect.SmartConnect, creds Credentials, l zerolog.Logger) *BrokerSource {
	return newBrokerSource(client, creds, l)
}

func newBrokerSource(client candleClient, creds Credentials, l zerolog.Logger) *BrokerSource {
	return &BrokerSource{client: client, creds: creds, log: l.With().Str("component", "broker_source").Logger()}
}

// Connect logs in if no session is held.
func (s *BrokerSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.HasSession() {
		return nil
	}
	return s.loginLocked(ctx)
}

// Relogin replaces the session with a fresh login. The daemon calls it
// before each open since SmartAPI tokens do not survive the night.
func (s *BrokerSource) Relogin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx)
}

func (s *BrokerSource) loginLocked(ctx context.Context) error {
	err := s.client.Login(ctx, s.creds.ClientCode, s.creds.Password, s.creds.TOTPSecret)
	if s.OnConnected != nil {
		s.OnConnected(err == nil)
	}
	if err != nil {
		return fmt.Errorf("broker login: %w", err)
	}
	s.log.Info().Str("client", s.creds.ClientCode).Msg("broker session established")
	return nil
}

// FetchCandles returns 1m candles with from <= TS <= to, oldest first.
func (s *BrokerSource) FetchCandles(ctx context.Context, inst model.Instrument, from, to time.Time) ([]model.Candle, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	req := smartconnect.CandleRequest{
		Exchange:    inst.Exchange,
		SymbolToken: inst.Token,
		Interval:    smartconnect.OneMinute,
		From:        from,
		To:          to,
	}
	bars, err := s.client.GetCandleData(ctx, req)
	if err != nil && sessionRejected(err) {
		s.log.Warn().Err(err).Msg("session rejected, logging in again")
		s.mu.Lock()
		lerr := s.loginLocked(ctx)
		s.mu.Unlock()
		if lerr != nil {
			return nil, lerr
		}
		bars, err = s.client.GetCandleData(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return toCandles(bars, from, to), nil
}

func sessionRejected(err error) bool {
	if errors.Is(err, smartconnect.ErrNoSession) {
		return true
	}
	var apiErr *smartconnect.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorType == "TokenException" ||
			apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

func toCandles(bars []smartconnect.Bar, from, to time.Time) []model.Candle {
	out := make([]model.Candle, 0, len(bars))
	for _, b := range bars {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		out = append(out, model.Candle{
			TS:     b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return out
}
