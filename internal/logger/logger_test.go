package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew_LevelAndServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "signald", "debug")
	if l.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level=%s, want debug", l.GetLevel())
	}
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, buf.String())
	}
	if line["service"] != "signald" || line["message"] != "hello" {
		t.Errorf("line=%v", line)
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	if l := New(&bytes.Buffer{}, "x", "chatty"); l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level=%s, want info", l.GetLevel())
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}
	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("NIFTY", ts)
	if !strings.HasPrefix(tid, "NIFTY-") || !strings.Contains(tid, "123456789") {
		t.Errorf("unexpected trace id %s", tid)
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := Component(New(&buf, "svc", "info"), "pipeline")

	plain := WithTrace(context.Background(), base)
	plain.Info().Msg("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id: %s", buf.String())
	}
	buf.Reset()

	traced := WithTrace(WithTraceID(context.Background(), "abc-123"), base)
	traced.Info().Msg("traced")
	out := buf.String()
	if !strings.Contains(out, `"trace_id":"abc-123"`) || !strings.Contains(out, `"component":"pipeline"`) {
		t.Errorf("missing fields: %s", out)
	}
}
