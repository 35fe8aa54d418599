package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "yaml")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", "")

	o := OptionsFromEnv()
	if o.Level != zapcore.DebugLevel {
		t.Fatalf("level = %v", o.Level)
	}
	if o.Format != "legacy" {
		t.Fatalf("unknown format should fall back to legacy, got %q", o.Format)
	}
	if !o.ToFile || o.FilePath != filepath.Join("logs", "omok.log") {
		t.Fatalf("file opts = %+v", o)
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "omok.log")
	l, err := New(Options{Level: zapcore.InfoLevel, Format: "json", ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("room_create")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"room_create"`) {
		t.Fatalf("log content = %s", raw)
	}
}

func TestSetNilResetsToNop(t *testing.T) {
	Set(nil)
	if L() == nil {
		t.Fatalf("L() must never be nil")
	}
}
