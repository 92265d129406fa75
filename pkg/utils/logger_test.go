/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 *
 * Logger Tests
 */
package utils

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	logger := NewLogger("test")
	logger.SetLevel(LogLevelWarn)

	var mu sync.Mutex
	var messages []string
	logger.SetCallback(func(level LogLevel, message string) {
		mu.Lock()
		messages = append(messages, message)
		mu.Unlock()
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	mu.Lock()
	defer mu.Unlock()
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages above warn, got %d", len(messages))
	}
	if !strings.Contains(messages[0], "[WARN]") || !strings.Contains(messages[0], "warn message") {
		t.Errorf("Unexpected first message: %s", messages[0])
	}
	if !strings.Contains(messages[1], "[ERROR]") {
		t.Errorf("Unexpected second message: %s", messages[1])
	}
}

func TestLoggerPrefixAndFormat(t *testing.T) {
	logger := NewLogger("mytag")

	var mu sync.Mutex
	var got string
	logger.SetCallback(func(level LogLevel, message string) {
		mu.Lock()
		got = message
		mu.Unlock()
	})

	logger.Info("value=%d", 42)

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(got, "[mytag]") {
		t.Errorf("Expected the prefix in %q", got)
	}
	if !strings.Contains(got, "value=42") {
		t.Errorf("Expected formatted args in %q", got)
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

func TestLoggerSetOutput(t *testing.T) {
	logger := NewLogger("sink")

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Warn("disk almost full")
	logger.Debug("filtered out")

	out := buf.String()
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "disk almost full") {
		t.Errorf("Expected the warn line in the writer, got %q", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("Expected the debug line filtered, got %q", out)
	}
}

func TestGetLoggerSingleton(t *testing.T) {
	if GetLogger() != GetLogger() {
		t.Error("Expected the same default logger instance")
	}
}
