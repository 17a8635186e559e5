package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at warn level, got: %s", buf.String())
	}
	log.Warn("kept", "window", 512)
	out := buf.String()
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"window":512`) {
		t.Fatalf("unexpected JSON output: %s", out)
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		level   string
		debug   bool
		wantErr bool
		enabled slog.Level
	}{
		{format: "pretty", level: "info", enabled: slog.LevelInfo},
		{format: "json", level: "warn", enabled: slog.LevelWarn},
		{format: "TEXT", level: "error", enabled: slog.LevelError},
		{format: "", level: "info", debug: true, enabled: slog.LevelDebug},
		{format: "xml", level: "info", wantErr: true},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := Setup(&buf, tc.format, tc.level, tc.debug)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Setup(%q): expected error", tc.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Setup(%q): %v", tc.format, err)
		}
		if !log.Enabled(tc.enabled) {
			t.Errorf("Setup(%q, %q): level %v should be enabled", tc.format, tc.level, tc.enabled)
		}
		if log.Enabled(tc.enabled - 4) {
			t.Errorf("Setup(%q, %q): level %v should be disabled", tc.format, tc.level, tc.enabled-4)
		}
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	if log.Enabled(slog.LevelError) {
		t.Fatal("Discard should not enable any level")
	}
	log.Error("nothing")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).With("session", 7).Info("roundtrip")
	if !strings.Contains(buf.String(), `"session":7`) {
		t.Fatalf("expected logger from context, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "lm")}).WithGroup("evict"))
	l.Info("window full", "keep", 50, "reason", "batch overflow")

	out := buf.String()
	for _, want := range []string{"window full", "component=lm", "evict.keep=50", `evict.reason="batch overflow"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestPrettyLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the receiver")
	}
}
