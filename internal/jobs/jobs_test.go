package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/delivery"
	"soulverse/internal/dispatch"
	"soulverse/internal/eventbus"
	"soulverse/internal/notifier"
	"soulverse/internal/occasion"
	"soulverse/internal/push"
	"soulverse/internal/recipients"
	"soulverse/internal/storage"
	"soulverse/internal/task/scheduler"
	logx "soulverse/pkg/logx"
)

var testNow = time.Date(2026, 12, 25, 7, 0, 0, 0, time.UTC)

type topicRecorder struct {
	mu   sync.Mutex
	sent []push.Message
	errs []error
}

func (t *topicRecorder) SendToTopic(_ context.Context, msg push.Message, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		return err
	}
	return nil
}

type countingPrayers struct {
	mu    sync.Mutex
	calls int
	r     *content.Resolver
}

func (c *countingPrayers) ResolvePrayer(ctx context.Context, kind content.PrayerKind, mood content.Mood, occ *occasion.Occasion) content.Prayer {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.r.ResolvePrayer(ctx, kind, mood, occ)
}

func newService(t *testing.T, rs recipients.Store, topics TopicSender, prayers PrayerResolver) (*Service, *delivery.Cache) {
	t.Helper()
	cache := delivery.NewCache(storage.NewMemory(), time.Hour, logx.Nop())
	proc := dispatch.ProcessorFunc(func(ctx context.Context, r recipients.Recipient) (dispatch.UnitResult, error) {
		if r.ID == "bad" {
			return dispatch.UnitResult{}, errors.New("boom")
		}
		cache.Put(ctx, r.ID, testNow, delivery.Record{RecipientID: r.ID, HasFullVerse: true}, 0)
		return dispatch.UnitResult{Status: dispatch.StatusDelivered}, nil
	})
	if prayers == nil {
		prayers = content.NewResolver(nil, content.Options{}, logx.Nop())
	}
	s := New(Deps{
		Recipients: rs,
		Dispatcher: dispatch.New(dispatch.Config{BatchSize: 10, Cooldown: time.Millisecond}, proc, logx.Nop(), nil),
		Resolver:   prayers,
		Cache:      cache,
		Topics:     topics,
		Location:   time.UTC,
		Now:        func() time.Time { return testNow },
	})
	return s, cache
}

var people = recipients.Static{
	{ID: "a", PushToken: "ta", Active: true},
	{ID: "bad", PushToken: "tb", Active: true},
	{ID: "c", PushToken: "tc", Active: true},
	{ID: "off", PushToken: "to", Active: false},
}

func TestDailyVerses(t *testing.T) {
	t.Parallel()
	s, _ := newService(t, people, nil, nil)
	out, err := s.DailyVerses(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Total != 3 || out.SuccessCount != 2 || out.ErrorCount != 1 {
		t.Fatalf("outcome = %+v", out)
	}
}

type brokenStore struct{}

func (brokenStore) ListActiveWithToken(context.Context) ([]recipients.Recipient, error) {
	return nil, errors.New("db locked")
}

func TestDailyVersesListError(t *testing.T) {
	t.Parallel()
	s, _ := newService(t, brokenStore{}, nil, nil)
	if _, err := s.DailyVerses(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPrayerIsResolvedOncePerDay(t *testing.T) {
	t.Parallel()
	topics := &topicRecorder{}
	prayers := &countingPrayers{r: content.NewResolver(nil, content.Options{}, logx.Nop())}
	s, _ := newService(t, people, topics, prayers)
	ctx := context.Background()

	first, err := s.MorningPrayer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached || !first.Pushed || first.Topic != notifier.TopicMorningPrayers {
		t.Fatalf("first = %+v", first)
	}
	// christmas overrides the mood for prayers
	if first.Prayer.Kind != content.PrayerMorning || first.Prayer.Text == "" {
		t.Fatalf("prayer = %+v", first.Prayer)
	}
	if topics.sent[0].Title != "Good Morning!" {
		t.Fatalf("title = %q", topics.sent[0].Title)
	}

	second, err := s.MorningPrayer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Prayer.Title != first.Prayer.Title || prayers.calls != 1 {
		t.Fatalf("second = %+v calls = %d", second, prayers.calls)
	}

	evening, err := s.EveningPrayer(ctx)
	if err != nil || evening.Cached || evening.Topic != notifier.TopicEveningPrayers {
		t.Fatalf("evening = %+v err = %v", evening, err)
	}
}

func TestPrayerPushErrors(t *testing.T) {
	t.Parallel()
	topics := &topicRecorder{errs: []error{notifier.ErrDuplicate, errors.New("gateway down")}}
	s, _ := newService(t, people, topics, nil)
	ctx := context.Background()

	res, err := s.EveningPrayer(ctx)
	if err != nil || res.Pushed || res.PushError == "" {
		t.Fatalf("duplicate: res = %+v err = %v", res, err)
	}
	if _, err := s.EveningPrayer(ctx); err == nil {
		t.Fatalf("push failure should fail the job")
	}
}

func TestCacheCleanup(t *testing.T) {
	t.Parallel()
	s, cache := newService(t, people, nil, nil)
	ctx := context.Background()
	yesterday := testNow.AddDate(0, 0, -1)
	cache.Put(ctx, "a", yesterday, delivery.Record{RecipientID: "a"}, 0)
	cache.Put(ctx, "c", yesterday, delivery.Record{RecipientID: "c"}, 0)
	cache.Put(ctx, "a", testNow, delivery.Record{RecipientID: "a"}, 0)

	res, err := s.CacheCleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Invalidated != 2 || res.Day != "2026-12-24" {
		t.Fatalf("res = %+v", res)
	}
	if _, ok := cache.Get(ctx, "a", testNow); !ok {
		t.Fatalf("today's record removed")
	}
}

func TestDailyStats(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s, cache := newService(t, people, nil, nil)
	s.d.Bus = bus
	cache.Put(context.Background(), "c", testNow, delivery.Record{RecipientID: "c"}, 0)

	st, err := s.DailyStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.ActiveRecipients != 3 || st.CachedToday != 1 || st.Date != "2026-12-25" {
		t.Fatalf("stats = %+v", st)
	}
	if e := <-events; e.Type != EventStats {
		t.Fatalf("event = %s", e.Type)
	}
}

func TestRegisterDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newService(t, people, nil, nil)
	sched := scheduler.New(scheduler.Config{Timezone: "Africa/Lome"}, logx.Nop(), nil)
	if err := s.Register(sched, Times{EveningPrayer: "20:15"}); err != nil {
		t.Fatal(err)
	}
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	want := map[string]string{
		DailyVerses:   "0 6 * * *",
		MorningPrayer: "0 7 * * *",
		EveningPrayer: "15 20 * * *",
		CacheCleanup:  "0 2 * * *",
		DailyStats:    "0 0 * * *",
	}
	st := sched.Status()
	if len(st.Jobs) != len(want) {
		t.Fatalf("jobs = %+v", st.Jobs)
	}
	for _, j := range st.Jobs {
		if want[j.Name] != j.Spec {
			t.Fatalf("%s spec = %q, want %q", j.Name, j.Spec, want[j.Name])
		}
	}
	if err := s.Register(sched, Times{DailyVerses: "6h"}); err == nil {
		t.Fatalf("bad time accepted")
	}
}

type fakeImages struct {
	maxAge time.Duration
	n      int
	err    error
}

func (f *fakeImages) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return f.n, f.err
}

func TestImageCleanup(t *testing.T) {
	t.Parallel()
	imgs := &fakeImages{n: 4}
	s := New(Deps{Images: imgs, ImageRetention: 48 * time.Hour})
	res, err := s.ImageCleanup(context.Background())
	if err != nil || res.Removed != 4 || imgs.maxAge != 48*time.Hour {
		t.Fatalf("res = %+v, err = %v, maxAge = %v", res, err, imgs.maxAge)
	}

	imgs = &fakeImages{n: 1, err: errors.New("permission denied")}
	s = New(Deps{Images: imgs})
	if res, err := s.ImageCleanup(context.Background()); err == nil || res.Removed != 1 || imgs.maxAge != DefaultImageRetention {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if res, err := New(Deps{}).ImageCleanup(context.Background()); err != nil || res.Removed != 0 {
		t.Fatalf("without images: %+v, %v", res, err)
	}
}

func TestRegisterImageCleanupWhenImagesKept(t *testing.T) {
	t.Parallel()
	s, _ := newService(t, people, nil, nil)
	s.d.Images = &fakeImages{}
	sched := scheduler.New(scheduler.Config{Timezone: "UTC"}, logx.Nop(), nil)
	if err := s.Register(sched, Times{ImageCleanup: "04:30"}); err != nil {
		t.Fatal(err)
	}
	sched.Start(context.Background())
	defer sched.Stop(context.Background())
	for _, j := range sched.Status().Jobs {
		if j.Name == ImageCleanup {
			if j.Spec != "30 4 * * *" {
				t.Fatalf("spec = %q", j.Spec)
			}
			return
		}
	}
	t.Fatalf("image_cleanup not registered")
}

func TestHistory(t *testing.T) {
	t.Parallel()
	rec := eventbus.NewRecorder(10, "task.")
	rec.Record(eventbus.Event{Type: scheduler.EventFinished})
	s := New(Deps{History: rec})
	if h := s.History(0); len(h) != 1 {
		t.Fatalf("history = %+v", h)
	}
	if New(Deps{}).History(5) != nil {
		t.Fatalf("nil recorder should give nil history")
	}
}
