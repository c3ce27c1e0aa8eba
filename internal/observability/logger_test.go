package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"warning", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"  debug  ", zap.DebugLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.env).Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("honmoku-catch-service")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
	logger.Info("test message")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if CorrelationID(ctx) != "" {
		t.Error("CorrelationID on empty context should be empty")
	}
	if LoggerFrom(ctx) == nil {
		t.Fatal("LoggerFrom on empty context returned nil")
	}

	fallback := zap.NewExample()
	if LoggerOr(ctx, fallback) != fallback {
		t.Error("LoggerOr on empty context should return the fallback")
	}

	core, logs := observer.New(zap.InfoLevel)
	ctx = WithLogger(WithCorrelationID(ctx, "abc-123"), zap.New(core))
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("CorrelationID = %q, want abc-123", got)
	}
	LoggerFrom(ctx).Info("hello")
	if LoggerOr(ctx, fallback) == fallback {
		t.Error("LoggerOr ignored the context logger")
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d entries, want 1", logs.Len())
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestFlushTelemetry(t *testing.T) {
	closed := 0
	ok := closerFunc(func() error { closed++; return nil })
	bad := closerFunc(func() error { closed++; return errors.New("boom") })

	err := FlushTelemetry(context.Background(), zap.NewNop(), ok, nil, bad)
	if err == nil {
		t.Fatal("FlushTelemetry error = nil, want close error")
	}
	if closed != 2 {
		t.Errorf("closed = %d, want 2", closed)
	}
	if err := FlushTelemetry(context.Background(), zap.NewNop()); err != nil {
		t.Errorf("FlushTelemetry with nothing to close: %v", err)
	}
}
