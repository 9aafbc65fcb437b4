package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestSessionID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := SessionID(ctx); id != "" {
		t.Errorf("expected empty session id, got %q", id)
	}

	ctx = WithSessionID(ctx, "BTCUSD-123")
	if id := SessionID(ctx); id != "BTCUSD-123" {
		t.Errorf("expected 'BTCUSD-123', got %q", id)
	}
}

func TestNewSessionID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewSessionID("BTCUSD", ts)

	if !strings.HasPrefix(id, "BTCUSD-") {
		t.Errorf("expected session id to start with 'BTCUSD-', got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected session id to contain nanoseconds, got %s", id)
	}
}

func TestWithSession(t *testing.T) {
	ctx := context.Background()

	if attrs := WithSession(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no session id, got %v", attrs)
	}

	ctx = WithSessionID(ctx, "abc-123")
	if attrs := WithSession(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with session id set")
	}
}
