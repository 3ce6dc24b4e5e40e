package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAsyncHandlerWritesConsole(t *testing.T) {
	var buf bytes.Buffer
	h := NewAsyncHandler("", slog.LevelInfo, &buf)
	l := slog.New(h)

	l.Debug("hidden")
	l.Info("session opened", "id", "127.0.0.1:5000")
	l.With("topic", "sports").Warn("slow subscriber")

	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered, got %q", out)
	}
	for _, want := range []string{"session opened", "id=127.0.0.1:5000", "slow subscriber", "topic=sports"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestAsyncHandlerWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	h := NewAsyncHandler("", slog.LevelDebug, &buf)
	_ = h.Close()
	// Must not panic on the closed queue.
	slog.New(h).Info("late line")
	if strings.Contains(buf.String(), "late line") {
		t.Error("line written after close")
	}
}

func TestAsyncHandlerDailyFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	h := NewAsyncHandler(dir, slog.LevelInfo, &buf)
	slog.New(h).Info("to file")
	_ = h.Close()

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing line, got %q", string(data))
	}
}
