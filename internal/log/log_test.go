package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	InitWriter("warn", &buf)

	For("test").Info("hidden")
	For("test").Warn("shown", "zone", "key-1")

	out := buf.String()
	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) || !bytes.Contains(buf.Bytes(), []byte("component")) {
		t.Errorf("warn record missing or untagged: %q", out)
	}

	InitWriter("info", &buf)
	if !L().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("level change after Init was not applied")
	}
}
