package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"trading-signalv1/internal/model"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisher_ActionableOnly(t *testing.T) {
	fw := &fakeWriter{}
	p := &Publisher{w: fw}
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC)

	p.Publish(ctx, model.Decision{Action: model.ActionHold, Token: "99926000", Exchange: "NSE"})
	if err := p.Publish(ctx, model.Decision{Action: model.ActionSell, Bias: model.BiasBearish,
		BarID: 42, TS: ts, Token: "99926000", Exchange: "NSE", TraceID: "t-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(fw.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(fw.msgs))
	}
	m := fw.msgs[0]
	if string(m.Key) != "NSE:99926000" || !m.Time.Equal(ts) {
		t.Errorf("key=%s time=%v", m.Key, m.Time)
	}
	if string(m.Headers[0].Value) != "SELL" {
		t.Errorf("action header=%s", m.Headers[0].Value)
	}
	var d model.Decision
	if err := json.Unmarshal(m.Value, &d); err != nil {
		t.Fatal(err)
	}
	if d.Action != model.ActionSell || d.BarID != 42 {
		t.Errorf("decoded=%+v", d)
	}
}

func TestPublisher_AllDecisions(t *testing.T) {
	fw := &fakeWriter{}
	p := &Publisher{w: fw, all: true}
	p.Publish(context.Background(), model.Decision{Action: model.ActionHold})
	if len(fw.msgs) != 1 {
		t.Errorf("got %d messages", len(fw.msgs))
	}
}

func TestPublisher_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	p := &Publisher{w: &fakeWriter{err: boom}}
	err := p.Publish(context.Background(), model.Decision{Action: model.ActionBuy})
	if !errors.Is(err, boom) {
		t.Errorf("err=%v", err)
	}
}

func TestNewPublisher_Validation(t *testing.T) {
	if _, err := NewPublisher(Config{Topic: "x"}); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewPublisher(Config{Brokers: []string{"k:9092"}}); err == nil {
		t.Error("expected error without topic")
	}
	p, err := NewPublisher(Config{Brokers: []string{"k:9092"}, Topic: "signals", Acks: "all"})
	if err != nil {
		t.Fatal(err)
	}
	if w := p.w.(*kafka.Writer); w.RequiredAcks != kafka.RequireAll {
		t.Errorf("acks=%v", w.RequiredAcks)
	}
}
