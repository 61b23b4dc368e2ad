package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_Defaults(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.level)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got: %s", buf.String())
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("expected warn message in output, got: %s", buf.String())
	}
}

func TestLogger_KeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("starting search", "session", "abc123", "gids", 2)
	out := buf.String()
	if !strings.Contains(out, "session=abc123") || !strings.Contains(out, "gids=2") {
		t.Errorf("expected key=value args in output, got: %s", out)
	}
}

func TestLogger_WithSessionAndFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	sessLogger := logger.WithSession("sess-1")
	sessLogger.Info("search started")
	if !strings.Contains(buf.String(), "session=sess-1") {
		t.Errorf("expected session=sess-1 in output, got: %s", buf.String())
	}

	buf.Reset()
	filtLogger := sessLogger.WithFilter("skin-filter")
	filtLogger.Debug("invoking filter")
	out := buf.String()
	if !strings.Contains(out, "session=sess-1") || !strings.Contains(out, "filter=skin-filter") {
		t.Errorf("expected both session and filter context in output, got: %s", out)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	if !strings.Contains(buf.String(), "debug message") || !strings.Contains(buf.String(), "key=value") {
		t.Errorf("expected debug message and kv, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}
