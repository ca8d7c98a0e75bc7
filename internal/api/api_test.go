package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/dispatch"
	"soulverse/internal/eventbus"
	"soulverse/internal/jobs"
	"soulverse/internal/notifier"
	"soulverse/internal/scripture"
	"soulverse/internal/task/scheduler"
)

const testToken = "admin-secret"

type fakeJobs struct {
	verses   atomic.Int32
	ctxAlive atomic.Bool
	prayErr  error
}

func (f *fakeJobs) DailyVerses(ctx context.Context) (dispatch.Outcome, error) {
	f.verses.Add(1)
	f.ctxAlive.Store(ctx.Err() == nil)
	return dispatch.Outcome{BatchID: "b1", Total: 2, SuccessCount: 2}, nil
}

func (f *fakeJobs) MorningPrayer(context.Context) (jobs.PrayerResult, error) {
	return jobs.PrayerResult{Prayer: content.Prayer{Kind: content.PrayerMorning, Text: "Lord"}, Topic: notifier.TopicMorningPrayers, Pushed: true}, nil
}

func (f *fakeJobs) EveningPrayer(context.Context) (jobs.PrayerResult, error) {
	return jobs.PrayerResult{}, f.prayErr
}

func (f *fakeJobs) History(limit int) []eventbus.Event {
	return []eventbus.Event{{Type: scheduler.EventFinished}, {Type: scheduler.EventStarted}}[:min(limit, 2)]
}

type fakeScheduler struct{ running bool }

func (f *fakeScheduler) Status() scheduler.Status {
	return scheduler.Status{Running: f.running, Timezone: "UTC", Jobs: []scheduler.JobInfo{{Name: jobs.DailyVerses, Spec: "0 6 * * *"}}}
}

func (f *fakeScheduler) Start(context.Context) scheduler.StartResult {
	if f.running {
		return scheduler.StartResult{AlreadyRunning: true}
	}
	f.running = true
	return scheduler.StartResult{Registered: 1}
}

func (f *fakeScheduler) Stop(context.Context) scheduler.StopResult {
	if !f.running {
		return scheduler.StopResult{AlreadyStopped: true, Drained: true}
	}
	f.running = false
	return scheduler.StopResult{Drained: true}
}

type fakeScripture struct{}

func (fakeScripture) Lookup(_ context.Context, tr, book string, ch, v int) (scripture.Verse, error) {
	switch {
	case tr == "NIV":
		return scripture.Verse{}, scripture.ErrUnknownTranslation
	case book == "Jean" && ch == 3 && v == 16:
		return scripture.Verse{Book: "John", Chapter: 3, Verse: 16, Text: "Car Dieu a tant aimé le monde", Translation: tr}, nil
	case book == "Offline":
		return scripture.Verse{}, errors.New("dial tcp: refused")
	}
	return scripture.Verse{}, scripture.ErrNotFound
}

func (fakeScripture) Search(_ context.Context, tr string, kw []string, limit int) ([]scripture.Verse, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (http.Handler, *fakeJobs, *fakeScheduler) {
	t.Helper()
	j := &fakeJobs{prayErr: errors.New("gateway down")}
	s := &fakeScheduler{running: true}
	h := NewHandler(Deps{
		Jobs:               j,
		Scheduler:          s,
		Scripture:          fakeScripture{},
		Location:           time.UTC,
		DefaultTranslation: "FreBBB",
		Now:                func() time.Time { return time.Date(2026, 12, 25, 9, 0, 0, 0, time.UTC) },
	})
	return NewRouter(h, testToken), j, s
}

func do(t *testing.T, h http.Handler, method, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthIsPublic(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)
	w := do(t, h, http.MethodGet, "/healthz", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[healthResponse](t, w); got.Status != "ok" || !got.SchedulerRunning {
		t.Fatalf("health = %+v", got)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	t.Parallel()
	h, j, _ := newTestRouter(t)
	cases := map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
		"scheme":  "Basic " + testToken,
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin/trigger/daily-verses", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", name, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: content-type = %q", name, ct)
		}
		p := decode[Problem](t, w)
		if p.Status != http.StatusUnauthorized || p.Instance != "/admin/trigger/daily-verses" || strings.Contains(p.Detail, testToken) {
			t.Fatalf("%s: problem = %+v", name, p)
		}
	}
	if j.verses.Load() != 0 {
		t.Fatalf("job ran without auth")
	}
}

func TestImagesAreServedWithoutToken(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abc.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := NewRouter(NewHandler(Deps{Jobs: &fakeJobs{}, Scheduler: &fakeScheduler{}, ImagesDir: dir}), testToken)

	w := do(t, h, http.MethodGet, "/images/abc.png", false)
	if w.Code != http.StatusOK || w.Body.String() != "png" {
		t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") == "" {
		t.Fatalf("missing cache header")
	}
	for _, path := range []string{"/images/", "/images/missing.png"} {
		if w := do(t, h, http.MethodGet, path, false); w.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
	}

	h = NewRouter(NewHandler(Deps{Jobs: &fakeJobs{}, Scheduler: &fakeScheduler{}}), testToken)
	if w := do(t, h, http.MethodGet, "/images/abc.png", false); w.Code != http.StatusNotFound {
		t.Fatalf("images served without a dir: %d", w.Code)
	}
}

func TestEmptyTokenRejectsEverything(t *testing.T) {
	t.Parallel()
	h := NewRouter(NewHandler(Deps{Jobs: &fakeJobs{}, Scheduler: &fakeScheduler{}}), "")
	req := httptest.NewRequest(http.MethodGet, "/admin/scheduler/status", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTriggerDailyVerses(t *testing.T) {
	t.Parallel()
	h, j, _ := newTestRouter(t)
	w := do(t, h, http.MethodPost, "/admin/trigger/daily-verses", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	out := decode[dispatch.Outcome](t, w)
	if out.BatchID != "b1" || out.SuccessCount != 2 || j.verses.Load() != 1 || !j.ctxAlive.Load() {
		t.Fatalf("outcome = %+v", out)
	}
	if w := do(t, h, http.MethodGet, "/admin/trigger/daily-verses", true); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", w.Code)
	}
}

func TestTriggerPrayers(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)
	w := do(t, h, http.MethodPost, "/admin/trigger/morning-prayer", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if res := decode[jobs.PrayerResult](t, w); !res.Pushed || res.Topic != notifier.TopicMorningPrayers {
		t.Fatalf("result = %+v", res)
	}
	w = do(t, h, http.MethodPost, "/admin/trigger/evening-prayer", true)
	if w.Code != http.StatusBadGateway || !strings.Contains(decode[Problem](t, w).Detail, "gateway down") {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSchedulerRoutes(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)

	st := decode[scheduler.Status](t, do(t, h, http.MethodGet, "/admin/scheduler/status", true))
	if !st.Running || len(st.Jobs) != 1 {
		t.Fatalf("status = %+v", st)
	}
	if r := decode[scheduler.StartResult](t, do(t, h, http.MethodPost, "/admin/scheduler/start", true)); !r.AlreadyRunning {
		t.Fatalf("start = %+v", r)
	}
	if r := decode[scheduler.StopResult](t, do(t, h, http.MethodPost, "/admin/scheduler/stop", true)); r.AlreadyStopped {
		t.Fatalf("first stop = %+v", r)
	}
	if r := decode[scheduler.StopResult](t, do(t, h, http.MethodPost, "/admin/scheduler/stop", true)); !r.AlreadyStopped {
		t.Fatalf("second stop = %+v", r)
	}

	hist := decode[historyResponse](t, do(t, h, http.MethodGet, "/admin/scheduler/history?limit=1", true))
	if len(hist.Events) != 1 || hist.Events[0].Type != scheduler.EventFinished {
		t.Fatalf("history = %+v", hist)
	}
	if w := do(t, h, http.MethodGet, "/admin/scheduler/history?limit=-3", true); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestOccasionRoute(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)

	today := decode[occasionResponse](t, do(t, h, http.MethodGet, "/admin/occasion", true))
	if !today.Found || today.Date != "2026-12-25" || today.Occasion.Name != "christmas" {
		t.Fatalf("today = %+v", today)
	}
	easter := decode[occasionResponse](t, do(t, h, http.MethodGet, "/admin/occasion?date=2026-04-05", true))
	if easter.Occasion == nil || easter.Occasion.Name != "easter" {
		t.Fatalf("easter = %+v", easter)
	}
	plain := decode[occasionResponse](t, do(t, h, http.MethodGet, "/admin/occasion?date=2026-03-11", true))
	if plain.Found || plain.Occasion != nil {
		t.Fatalf("plain = %+v", plain)
	}
	if w := do(t, h, http.MethodGet, "/admin/occasion?date=11/03/2026", true); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", w.Code)
	}
}

func TestScriptureRoutes(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)

	w := do(t, h, http.MethodGet, "/admin/scripture/Jean/3/16", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if v := decode[scripture.Verse](t, w); v.Book != "John" || v.Translation != "FreBBB" {
		t.Fatalf("verse = %+v", v)
	}
	cases := map[string]int{
		"/admin/scripture/Jean/3/17":                 http.StatusNotFound,
		"/admin/scripture/Jean/3/16?translation=NIV": http.StatusBadRequest,
		"/admin/scripture/Jean/x/16":                 http.StatusBadRequest,
		"/admin/scripture/Offline/1/1":               http.StatusBadGateway,
		"/admin/scripture/search":                    http.StatusBadRequest,
	}
	for path, want := range cases {
		if w := do(t, h, http.MethodGet, path, true); w.Code != want {
			t.Fatalf("%s: status = %d, want %d", path, w.Code, want)
		}
	}
	res := decode[searchResponse](t, do(t, h, http.MethodGet, "/admin/scripture/search?q=paix", true))
	if res.Verses == nil {
		t.Fatalf("verses should be an empty list")
	}
	if w := do(t, h, http.MethodGet, "/admin/notifier", true); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("notifier status = %d", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()
	h := RecoveryMiddleware(NewHandler(Deps{}).d.Log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
}

func TestServerShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestRouter(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(ServerConfig{}, h, NewHandler(Deps{}).d.Log).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
