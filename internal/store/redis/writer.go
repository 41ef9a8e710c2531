package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"trading-signalv1/internal/model"
)

const (
	// Stream trimming: several sessions of actionable signals.
	signalStreamMaxLen = 5000
	defaultLatestTTL   = 24 * time.Hour
)

// WriterConfig configures the Redis connection.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Dial creates a Redis client and pings the server.
func Dial(cfg WriterConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Keys for one instrument.
func LatestKey(exchange, token string) string  { return "signal:latest:" + exchange + ":" + token }
func StreamKey(exchange, token string) string  { return "signal:" + exchange + ":" + token }
func ChannelKey(exchange, token string) string { return "pub:signal:" + exchange + ":" + token }

// Writer writes decisions to Redis: every decision replaces the latest key
// and is published on the pubsub channel; actionable ones are also appended
// to the signal stream.
type Writer struct {
	client *goredis.Client
	log    zerolog.Logger
}

// NewWriter wraps an existing client.
func NewWriter(client *goredis.Client, l zerolog.Logger) *Writer {
	return &Writer{client: client, log: l.With().Str("component", "redis").Logger()}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// WriteDecision performs the pipelined writes for one decision.
func (w *Writer) WriteDecision(ctx context.Context, d model.Decision) error {
	jsonData := string(d.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestKey(d.Exchange, d.Token), jsonData, defaultLatestTTL)
	if d.Action.Actionable() {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(d.Exchange, d.Token),
			MaxLen: signalStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"data":   jsonData,
				"action": d.Action.String(),
				"bar_id": int64(d.BarID),
			},
		})
	}
	pipe.Publish(ctx, ChannelKey(d.Exchange, d.Token), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", d.Key(), err)
	}
	return nil
}

// Latest reads the last decision written for an instrument. It returns
// false when none is stored.
func (w *Writer) Latest(ctx context.Context, inst model.Instrument) (model.Decision, bool, error) {
	var d model.Decision
	raw, err := w.client.Get(ctx, LatestKey(inst.Exchange, inst.Token)).Bytes()
	if err == goredis.Nil {
		return d, false, nil
	}
	if err != nil {
		return d, false, fmt.Errorf("redis GET latest: %w", err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, false, fmt.Errorf("decode latest: %w", err)
	}
	return d, true, nil
}

// Close closes the client.
func (w *Writer) Close() error { return w.client.Close() }
