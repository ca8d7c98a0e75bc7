package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"soulverse/internal/dispatch"
	"soulverse/internal/recipients"
	logx "soulverse/pkg/logx"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "soulverse.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func baseConfig(dir, scriptureURL, extra string) string {
	return `
logging:
  level: error
storage:
  driver: memory
recipients:
  path: ` + filepath.Join(dir, "recipients.db") + `
scripture:
  base_url: ` + scriptureURL + `
  max_retries: 0
  timeout: 2s
push:
  transport: log
dispatch:
  cooldown: 0s
scheduler:
  enabled: false
` + extra
}

func noScripture(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestApp(t *testing.T, dir, body string) *App {
	t.Helper()
	a, err := New(writeConfig(t, dir, body), Options{
		Version: "test",
		Getenv:  func(string) string { return "" },
		Logger:  logx.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a
}

func TestDailyVersesEndToEnd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := newTestApp(t, dir, baseConfig(dir, noScripture(t), ""))
	defer a.Close()

	ctx := context.Background()
	for _, r := range []recipients.Recipient{
		{ID: "u1", PushToken: "tok-1", Active: true, LastKnownMood: "joy"},
		{ID: "u2", PushToken: "tok-2", Active: true},
		{ID: "u3", PushToken: "tok-3", Active: false},
	} {
		if err := a.Recipients().Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.ID, err)
		}
	}

	out, err := a.Jobs().DailyVerses(ctx)
	if err != nil {
		t.Fatalf("daily verses: %v", err)
	}
	if out.Total != 2 || out.ErrorCount != 0 || out.SuccessCount != 2 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := New(writeConfig(t, dir, "storage:\n  driver: memory\n"), Options{Logger: logx.Nop()})
	if err == nil || !strings.Contains(err.Error(), "recipients.path") {
		t.Fatalf("err = %v", err)
	}
}

func TestSharedSQLiteDatabase(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	db := filepath.Join(dir, "recipients.db")
	body := strings.Replace(baseConfig(dir, noScripture(t), ""), "driver: memory", "driver: sqlite\n  path: "+db, 1)
	a := newTestApp(t, dir, body)
	if a.ownsDB || a.driver != "sqlite" {
		t.Fatalf("ownsDB=%v driver=%q", a.ownsDB, a.driver)
	}
	a.Close()
	if a.db != nil || a.store != nil {
		t.Fatal("resources not released")
	}
}

func TestStartReloadStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	url := noScripture(t)
	a := newTestApp(t, dir, baseConfig(dir, url, ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatal("second start should fail")
	}

	writeConfig(t, dir, baseConfig(dir, url, "  timezone: Europe/Paris\n"))
	// The watcher may get there first; either way the change is applied once.
	_, _ = a.cfgm.Reload(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for a.Location().String() != "Europe/Paris" {
		if time.Now().After(deadline) {
			t.Fatalf("location = %s", a.Location())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if a.Scheduler().Running() {
		t.Fatal("scheduler should stay disabled")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopCommand); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case err := <-a.Fatal():
		t.Fatalf("unexpected fatal: %v", err)
	default:
	}
}

// heldScripture answers every request only after release is called.
func heldScripture(t *testing.T) (url string, entered <-chan struct{}, release func()) {
	t.Helper()
	in := make(chan struct{}, 1)
	hold := make(chan struct{})
	var once sync.Once
	release = func() { once.Do(func() { close(hold) }) }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case in <- struct{}{}:
		default:
		}
		select {
		case <-hold:
		case <-r.Context().Done():
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(release)
	return srv.URL, in, release
}

func TestStopWaitsForUnitInFlight(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		stopIn  time.Duration
		drained bool
	}{
		{name: "drains", stopIn: 10 * time.Second, drained: true},
		{name: "deadline first", stopIn: 100 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			url, entered, release := heldScripture(t)
			a := newTestApp(t, dir, baseConfig(dir, url, ""))
			ctx := context.Background()
			if err := a.Recipients().Upsert(ctx, recipients.Recipient{ID: "u1", PushToken: "tok", Active: true}); err != nil {
				t.Fatal(err)
			}
			if err := a.Start(ctx); err != nil {
				t.Fatalf("start: %v", err)
			}

			outc := make(chan dispatch.Outcome, 1)
			go func() {
				out, _ := a.Jobs().DailyVerses(ctx)
				outc <- out
			}()
			select {
			case <-entered:
			case <-time.After(5 * time.Second):
				t.Fatal("unit never reached scripture")
			}

			stopCtx, cancel := context.WithTimeout(ctx, tc.stopIn)
			defer cancel()
			stopped := make(chan error, 1)
			go func() { stopped <- a.Stop(stopCtx, StopCommand) }()

			if tc.drained {
				select {
				case err := <-stopped:
					t.Fatalf("stop returned with a unit in flight: %v", err)
				case <-time.After(300 * time.Millisecond):
				}
				release()
				if err := <-stopped; err != nil {
					t.Fatalf("stop: %v", err)
				}
				if a.store != nil {
					t.Fatal("storage should be closed after draining")
				}
			} else {
				if err := <-stopped; err == nil {
					t.Fatal("stop should report jobs that did not drain")
				}
				if a.store == nil {
					t.Fatal("storage closed under a running unit")
				}
				release()
			}

			out := <-outc
			if out.Total != 1 || out.SuccessCount != 1 {
				t.Fatalf("outcome = %+v", out)
			}
			if !tc.drained {
				a.Close()
			}
		})
	}
}
