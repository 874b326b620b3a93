package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
	}{
		{"debug", "debug", LevelDebug},
		{"info", "info", LevelInfo},
		{"warn", "warn", LevelWarn},
		{"warning alias", "warning", LevelWarn},
		{"error", "error", LevelError},
		{"case insensitive", "DEBUG", LevelDebug},
		{"surrounding space", "  error ", LevelError},
		{"empty defaults to info", "", LevelInfo},
		{"unknown defaults to info", "verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	levels := []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 0; i < len(levels)-1; i++ {
		if levels[i] >= levels[i+1] {
			t.Errorf("Log levels should be in ascending order: %v >= %v", levels[i], levels[i+1])
		}
	}
}

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()
	fn()
	return buf.String()
}

func TestComponentLoggerPrefix(t *testing.T) {
	if GetLevel() > LevelWarn {
		t.Skip("warn level disabled by environment")
	}

	out := captureLog(t, func() {
		Component("reducer").With("abc123").Warn("attempt %d too large", 2)
	})

	want := "[WARN] reducer: [abc123] attempt 2 too large"
	if !strings.Contains(out, want) {
		t.Errorf("log output = %q, want it to contain %q", out, want)
	}
}

func TestNilLoggerDoesNotPanic(t *testing.T) {
	var l *Logger
	out := captureLog(t, func() {
		l.Error("plain %s", "message")
		l.With("id").Error("tagged")
	})

	if !strings.Contains(out, "plain message") {
		t.Errorf("expected untagged message, got %q", out)
	}
	if !strings.Contains(out, "[id] tagged") {
		t.Errorf("expected tagged message, got %q", out)
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.expected {
				t.Errorf("LogLevel.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
