package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"lease renewed", "worker_id=w1"}},
		{"", []string{"lease renewed", "worker_id=w1"}},
		{"json", []string{`"msg":"lease renewed"`, `"worker_id":"w1"`}},
		{"JSON", []string{`"msg":"lease renewed"`}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := NewWithWriter(Options{Format: tt.format}, &buf)
		logger.Info("lease renewed", "worker_id", "w1")

		for _, want := range tt.want {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("format %q: output missing %q: %s", tt.format, want, buf.String())
			}
		}
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: "warn"}, &buf)

	logger.Info("should not appear")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Errorf("INFO message should be filtered at WARN level, got: %s", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("WARN message should appear at WARN level, got: %s", output)
	}
}

func TestNewWithWriter_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: "debug", Quiet: true}, &buf)

	logger.Error("dropped")
	logger.With("component", "scheduler").Warn("also dropped")

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestNewWithWriter_ChildLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: "debug"}, &buf)
	child := logger.With("component", "scheduler")

	child.Debug("task offered", "job", "j1")

	output := buf.String()
	if !strings.Contains(output, "component=scheduler") {
		t.Errorf("expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "job=j1") {
		t.Errorf("expected job in output, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
