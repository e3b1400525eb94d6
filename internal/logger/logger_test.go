package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelDebug))

	l.Info("message accepted", "sender", "Andy", "latest", true)

	line := buf.String()
	if !strings.Contains(line, "[INF] message accepted") {
		t.Errorf("missing level and message: %q", line)
	}
	if !strings.Contains(line, " sender=Andy latest=true") {
		t.Errorf("missing attributes: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("line not terminated: %q", line)
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelWarn))

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("records below WARN were written: %q", out)
	}
	if !strings.Contains(out, "[WRN] kept") {
		t.Errorf("WARN record missing: %q", out)
	}
}

func TestHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, slog.LevelInfo)).
		With("validator", "Test").
		WithGroup("fault")

	l.Warn("byzantine sender", "kind", "fork")

	line := buf.String()
	if !strings.Contains(line, " validator=Test") {
		t.Errorf("missing bound attribute: %q", line)
	}
	if !strings.Contains(line, " fault.kind=fork") {
		t.Errorf("missing grouped attribute: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
