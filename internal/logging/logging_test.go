package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		ok       bool
	}{
		{name: "Debug", input: "debug", expected: LevelDebug, ok: true},
		{name: "Info", input: "info", expected: LevelInfo, ok: true},
		{name: "Warn", input: "warn", expected: LevelWarn, ok: true},
		{name: "Warning alias", input: "warning", expected: LevelWarn, ok: true},
		{name: "Error", input: "error", expected: LevelError, ok: true},
		{name: "Case insensitive", input: "DEBUG", expected: LevelDebug, ok: true},
		{name: "Whitespace", input: "  error ", expected: LevelError, ok: true},
		{name: "Unknown falls back to info", input: "verbose", expected: LevelInfo, ok: false},
		{name: "Empty", input: "", expected: LevelInfo, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
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

func TestSetLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	previous := GetLevel()
	log.SetOutput(&buf)
	defer func() {
		log.SetOutput(os.Stderr)
		SetLevel(previous)
	}()

	SetLevel(LevelWarn)
	if IsDebugEnabled() {
		t.Error("Expected debug to be disabled at warn level")
	}

	Info("hidden %d", 1)
	Warn("shown %d", 2)
	Error("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info message to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") {
		t.Errorf("Expected warn message in output, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] shown 3") {
		t.Errorf("Expected error message in output, got %q", out)
	}

	SetLevel(LevelDebug)
	if !IsDebugEnabled() {
		t.Error("Expected debug to be enabled after SetLevel(LevelDebug)")
	}
}

// TestLoggingFunctions tests that logging functions don't panic
func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{name: "Debug", fn: func() { Debug("test message") }},
		{name: "Info", fn: func() { Info("test message") }},
		{name: "Warn", fn: func() { Warn("test message") }},
		{name: "Error", fn: func() { Error("test message") }},
		{name: "Debug with args", fn: func() { Debug("test %s %d", "message", 123) }},
		{name: "Printf", fn: func() { Printf("test %s", "message") }},
		{name: "Println", fn: func() { Println("test", "message", 123) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Function panicked: %v", r)
				}
			}()
			tt.fn()
		})
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
