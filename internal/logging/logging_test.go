package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/modelyard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWithWriter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zapcore.WarnLevel)
	l.Info("hidden")
	l.Warn("shown", zap.String("job_id", "job-1"))
	l.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "shown") || !strings.Contains(out, "job-1") {
		t.Errorf("warn line missing fields: %s", out)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yard.log")
	l, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("written")
	l.Sync()
}

func TestNew_WritesToGivenStderr(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("row saved", zap.Int("row", 0))
	l.Sync()
	if !strings.Contains(buf.String(), "row saved") {
		t.Errorf("log line not written to the given writer: %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}
