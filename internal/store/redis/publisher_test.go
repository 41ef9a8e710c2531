package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"trading-signalv1/internal/model"
)

// unreachableWriter points at a port nothing listens on so every write fails fast.
func unreachableWriter(t *testing.T) *Writer {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return NewWriter(client, zerolog.Nop())
}

func TestKeys(t *testing.T) {
	if got := LatestKey("NSE", "99926000"); got != "signal:latest:NSE:99926000" {
		t.Errorf("latest=%s", got)
	}
	if got := StreamKey("NSE", "99926000"); got != "signal:NSE:99926000" {
		t.Errorf("stream=%s", got)
	}
	if got := ChannelKey("NSE", "99926000"); got != "pub:signal:NSE:99926000" {
		t.Errorf("channel=%s", got)
	}
}

func TestPublisher_BuffersActionableWhileOpen(t *testing.T) {
	cb, _ := newTestBreaker(1)
	p := NewPublisher(unreachableWriter(t), cb, 2)
	buffered := 0
	p.OnBuffer = func() { buffered++ }
	ctx := context.Background()

	buy := model.Decision{Action: model.ActionBuy, BarID: 1, Token: "99926000", Exchange: "NSE"}

	// first failure trips the breaker and is reported
	if err := p.Publish(ctx, buy); err == nil {
		t.Fatal("expected connection error")
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state=%v", cb.CurrentState())
	}

	// open: HOLD dropped, actionable buffered, oldest evicted past capacity
	if err := p.Publish(ctx, model.Decision{Action: model.ActionHold}); err != nil {
		t.Errorf("hold: %v", err)
	}
	for i := 2; i <= 4; i++ {
		buy.BarID = model.BarID(i)
		if err := p.Publish(ctx, buy); err != nil {
			t.Errorf("buy %d: %v", i, err)
		}
	}
	if p.PendingCount() != 2 || buffered != 3 {
		t.Errorf("pending=%d buffered=%d", p.PendingCount(), buffered)
	}
	if p.buffer[0].BarID != 3 {
		t.Errorf("oldest kept=%d, want 3", p.buffer[0].BarID)
	}
	if p.Name() != "redis" {
		t.Errorf("name=%s", p.Name())
	}
}
