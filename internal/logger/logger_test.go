package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestFileWriterDefaults(t *testing.T) {
	dir := t.TempDir()
	w := FileConfig{Path: filepath.Join(dir, "sub", "agent.log")}.Writer()
	if w == nil {
		t.Fatalf("expected writer when Path is set")
	}
	defer func() { _ = w.Close() }()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	if _, err := w.Write([]byte("x\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "agent.log")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestFileWriterOverrides(t *testing.T) {
	w := FileConfig{Path: filepath.Join(t.TempDir(), "a.log"), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}.Writer()
	l := w.(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: %+v", l)
	}
}

func TestFileWriterEmptyPath(t *testing.T) {
	if w := (FileConfig{}).Writer(); w != nil {
		t.Fatalf("expected nil writer without path")
	}
}

func TestNewJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer := NewWithWriter(&buf, Config{Level: "warn", Format: "json"})
	defer func() { _ = closer.Close() }()

	log.Info("hidden")
	log.Warn("shown", "server", "foo")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "shown" || rec["server"] != "foo" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewMirrorsToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "agent.log")
	log, closer := NewWithWriter(&buf, Config{File: FileConfig{Path: path}})
	log.Info("hello")
	_ = closer.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "hello") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected message in both outputs; file=%q console=%q", string(b), buf.String())
	}
}

func TestColorHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	slog.New(h).With("k", "v").Error("boom")
	out := buf.String()
	if !strings.Contains(out, "\033[31mERROR") || !strings.Contains(out, "k=v") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be dropped: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
