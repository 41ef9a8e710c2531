// Package kafka publishes decisions to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"trading-signalv1/internal/model"
)

// Config configures the publisher.
type Config struct {
	Brokers []string
	Topic   string
	Acks    string // "all", "none" or "one" (default)

	// AllDecisions also publishes HOLDs. By default only BUY/SELL go out.
	AllDecisions bool
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a model.DecisionSink writing JSON decisions keyed by
// "exchange:token", so one instrument always lands on one partition.
type Publisher struct {
	w   messageWriter
	all bool
}

// NewPublisher creates a publisher. The underlying writer connects lazily.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: writerAcks(cfg.Acks),
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Publisher{w: w, all: cfg.AllDecisions}, nil
}

// Name implements model.DecisionSink.
func (p *Publisher) Name() string { return "kafka" }

// Publish implements model.DecisionSink.
func (p *Publisher) Publish(ctx context.Context, d model.Decision) error {
	if !p.all && !d.Action.Actionable() {
		return nil
	}
	msg := kafka.Message{
		Key:   []byte(d.Key()),
		Value: d.JSON(),
		Time:  d.TS,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(d.Action.String())},
			{Key: "trace_id", Value: []byte(d.TraceID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", d.Key(), err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error { return p.w.Close() }

func writerAcks(raw string) kafka.RequiredAcks {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all", "-1":
		return kafka.RequireAll
	case "none", "0":
		return kafka.RequireNone
	default:
		return kafka.RequireOne
	}
}
