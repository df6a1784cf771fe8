package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_HasComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)

	logger := New("clean")
	logger.Info("dedup done", "removed", 3)

	output := buf.String()
	if !strings.Contains(output, "component=clean") {
		t.Errorf("expected component=clean in output, got: %s", output)
	}
	if !strings.Contains(output, "removed=3") {
		t.Errorf("expected removed=3 in output, got: %s", output)
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)

	New("ml").Info("pipeline started")

	output := buf.String()
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Errorf("expected JSON level field, got: %s", output)
	}
	if !strings.Contains(output, `"component":"ml"`) {
		t.Errorf("expected JSON component field, got: %s", output)
	}
}

func TestInit_LevelGating(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelWarn, "text", &buf)

	logger := New("stats")
	logger.Info("should be suppressed")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be suppressed") {
		t.Error("Info message should be suppressed at Warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("Warn message should appear at Warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warning ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInit_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)
	New("detect").Debug("case grouped")
	if !strings.Contains(buf.String(), "source=") {
		t.Errorf("expected source attribute at debug level, got: %s", buf.String())
	}

	buf.Reset()
	Init(slog.LevelInfo, "text", &buf)
	New("detect").Info("detection complete")
	if strings.Contains(buf.String(), "source=") {
		t.Errorf("unexpected source attribute at info level, got: %s", buf.String())
	}
}
