package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{name: "info by default", debug: false, wantDebug: false},
		{name: "debug on request", debug: true, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := New(true, tt.debug)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := l.Core().Enabled(zap.DebugLevel); got != tt.wantDebug {
				t.Fatalf("expected debug enabled=%v, got %v", tt.wantDebug, got)
			}
		})
	}
}

func TestJSONLineCarriesComponentAndDuration(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "radar.log")
	l, err := build(encoderConfig(), true, false, []string{out})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Named("digest").Info("digest run finished", zap.Duration("took", 1500*time.Millisecond))
	_ = l.Sync()

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(raw, &line); err != nil {
		t.Fatalf("decoding %q: %v", raw, err)
	}

	if line["step"] != "digest run finished" || line["component"] != "digest" || line["took"] != "1.5s" {
		t.Fatalf("unexpected log line: %v", line)
	}
}
