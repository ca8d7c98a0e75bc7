package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))

	log.Info("hello", Int("n", 3), String("comp", "override"), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if m["message"] != "hello" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["n"] != float64(3) {
		t.Fatalf("n = %v", m["n"])
	}
	if !strings.HasPrefix(m["caller"].(string), "logging_test.go:") {
		t.Fatalf("caller = %v", m["caller"])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug must not be enabled at warn level")
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn missing from output: %q", buf.String())
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop logger is not the zero value")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in string
		ok bool
	}{
		{"", true},
		{"debug", true},
		{"WARNING", true},
		{"verbose", false},
	}
	for _, tt := range tests {
		if _, ok := ParseLevel(tt.in); ok != tt.ok {
			t.Fatalf("ParseLevel(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

type chanAlerter chan string

func (c chanAlerter) Alert(_ context.Context, text string) error {
	c <- text
	return nil
}

func TestServiceForwardsAlerts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	svc, log := New(Config{
		Level: "info",
		File:  FileConfig{Enabled: true, Path: path},
		Alerts: AlertConfig{
			Enabled:        true,
			RatePerSec:     100,
			SkipComponents: []string{"notifier"},
		},
	})
	defer svc.Close()
	got := make(chanAlerter, 4)
	svc.SetAlerter(got)

	log.Info("routine")
	log.With(String("comp", "notifier")).Error("push failed")
	log.With(String("comp", "storage")).Warn("disk low", Int("free_mb", 12))

	select {
	case text := <-got:
		for _, want := range []string{"[WARN] disk low", "- comp=storage", "- free_mb=12"} {
			if !strings.Contains(text, want) {
				t.Fatalf("alert missing %q:\n%s", want, text)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}
	select {
	case text := <-got:
		t.Fatalf("unexpected alert %q", text)
	case <-time.After(50 * time.Millisecond):
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if n := strings.Count(string(b), "\n"); n != 3 {
		t.Fatalf("file has %d lines, want 3:\n%s", n, b)
	}
}

func TestServiceApplyChangesLevel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "app.log")
	svc, log := New(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()
	if log.Enabled(LevelInfo) {
		t.Fatal("info enabled at error level")
	}
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	if !log.Enabled(LevelDebug) {
		t.Fatal("existing logger did not follow Apply")
	}
}

func TestFormatAlertClipsLongLines(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWriter(&buf, "info").Error(strings.Repeat("x", 2*alertMaxLen))
	text := formatAlert(gjson.ParseBytes(buf.Bytes()))
	if len(text) != alertMaxLen || !strings.HasSuffix(text, "...") {
		t.Fatalf("len = %d", len(text))
	}
}
