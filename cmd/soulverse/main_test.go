package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"soulverse/internal/task/scheduler"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOccasionCommand(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "occasion", "2026-12-25", "--tz", "UTC")
	if err != nil {
		t.Fatalf("occasion: %v", err)
	}
	if !strings.Contains(out, "christmas (priority 10)") {
		t.Fatalf("out = %q", out)
	}

	out, err = execute(t, "occasion", "2026-03-11", "--json")
	if err != nil {
		t.Fatalf("occasion json: %v", err)
	}
	var resp struct {
		Date  string `json:"date"`
		Found bool   `json:"found"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil || resp.Date != "2026-03-11" || resp.Found {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}

	if _, err := execute(t, "occasion", "25/12/2026"); err == nil {
		t.Fatal("expected error for bad date")
	}
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()
	next := time.Now().Add(2 * time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/scheduler/status" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"type":"urn:soulverse:problem:unauthorized","title":"Unauthorized","status":401,"detail":"missing or invalid bearer token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(scheduler.Status{
			Running:  true,
			Timezone: "Africa/Lome",
			Jobs:     []scheduler.JobInfo{{Name: "daily_verses", Spec: "0 6 * * *", Next: next}},
		})
	}))
	defer srv.Close()

	out, err := execute(t, "status", "--addr", srv.URL, "--token", "s3cret")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"scheduler: running (tz Africa/Lome)", "daily_verses", "0 6 * * *", "from now"} {
		if !strings.Contains(out, want) {
			t.Fatalf("out missing %q:\n%s", want, out)
		}
	}

	_, err = execute(t, "status", "--addr", srv.URL, "--token", "wrong")
	if err == nil || !strings.Contains(err.Error(), "missing or invalid bearer token") {
		t.Fatalf("err = %v", err)
	}
}

func TestRecipientsAddAndList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "soulverse.yaml")
	body := "recipients:\n  path: " + filepath.Join(dir, "r.db") + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfg, "recipients", "add", "--token", "tok-1", "--mood", "Joy")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var r struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.Unmarshal([]byte(out), &r); err != nil || r.ID == "" || !r.Active {
		t.Fatalf("added = %+v, err = %v", r, err)
	}

	if _, err := execute(t, "--config", cfg, "recipients", "add", "--id", "quiet", "--token", "tok-2", "--inactive"); err != nil {
		t.Fatalf("add inactive: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "recipients", "mood", r.ID, "gratitude"); err != nil {
		t.Fatalf("mood: %v", err)
	}

	out, err = execute(t, "--config", cfg, "recipients", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, r.ID) || strings.Contains(out, "quiet") {
		t.Fatalf("list = %q", out)
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	t.Parallel()
	if _, err := runJob(context.Background(), nil, "nope"); err == nil {
		t.Fatal("expected error")
	}
}
