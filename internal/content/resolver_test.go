package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"soulverse/internal/occasion"
	logx "soulverse/pkg/logx"
)

func failing() Generator {
	return GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream down")
	})
}

func replying(s string) Generator {
	return GeneratorFunc(func(context.Context, string) (string, error) { return s, nil })
}

func occ(t *testing.T, y int, m time.Month, d int) *occasion.Occasion {
	t.Helper()
	o, ok := occasion.Resolve(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatalf("no occasion on %d-%02d-%02d", y, m, d)
	}
	return &o
}

func TestResolveVerseFallsBackByMood(t *testing.T) {
	t.Parallel()
	r := NewResolver(failing(), Options{}, logx.Nop())

	cases := []struct {
		mood Mood
		ref  string
	}{
		{MoodPeace, "John 14:27"},
		{MoodJoy, "Psalm 118:24"},
		{MoodSadness, "Psalm 34:18"},
		{MoodAnxiety, "Philippians 4:6-7"},
		{MoodGratitude, "1 Thessalonians 5:18"},
		{Mood("bored"), "Jeremiah 29:11"},
	}
	for _, tc := range cases {
		v := r.ResolveVerse(context.Background(), tc.mood, nil)
		if v.Reference != tc.ref {
			t.Fatalf("mood %q: reference = %q, want %q", tc.mood, v.Reference, tc.ref)
		}
		if v.Source != SourceFallback || !v.Valid() {
			t.Fatalf("mood %q: got %+v", tc.mood, v)
		}
	}
}

func TestResolveVerseOccasionOverridesMood(t *testing.T) {
	t.Parallel()
	r := NewResolver(failing(), Options{}, logx.Nop())

	christmas := occ(t, 2026, time.December, 25)
	v := r.ResolveVerse(context.Background(), MoodSadness, christmas)
	if v.Reference != "John 1:14" {
		t.Fatalf("christmas verse = %q", v.Reference)
	}

	// Sunday is below the verse threshold, so the mood wins.
	sunday := occ(t, 2026, time.August, 2)
	v = r.ResolveVerse(context.Background(), MoodJoy, sunday)
	if v.Reference != "Psalm 118:24" {
		t.Fatalf("sunday verse = %q, want mood entry", v.Reference)
	}
}

func TestResolveVerseHonoursConfiguredThreshold(t *testing.T) {
	t.Parallel()
	r := NewResolver(failing(), Options{OccasionMinPriority: 5}, logx.Nop())
	v := r.ResolveVerse(context.Background(), MoodJoy, occ(t, 2026, time.August, 2))
	if v.Reference != "Psalm 95:1-2" {
		t.Fatalf("sunday verse = %q", v.Reference)
	}
}

func TestResolveVerseUsesGeneratorReply(t *testing.T) {
	t.Parallel()
	reply := "```json\n{\"reference\":\"Romans 8:28\",\"reflection\":\"All things work together.\",\"visual_elements\":[\"sunrise\",\" \",\"road\"]}\n```"
	r := NewResolver(replying(reply), Options{}, logx.Nop())

	v := r.ResolveVerse(context.Background(), MoodPeace, nil)
	if v.Reference != "Romans 8:28" || v.Source != SourceAI {
		t.Fatalf("got %+v", v)
	}
	if v.VisualHint != "sunrise, road" {
		t.Fatalf("visual hint = %q", v.VisualHint)
	}
}

func TestResolveVerseRejectsIncompleteReply(t *testing.T) {
	t.Parallel()
	for _, reply := range []string{
		"not json at all",
		`{"reference":"Romans 8:28"}`,
		`{"reference":"  ","reflection":"x"}`,
	} {
		r := NewResolver(replying(reply), Options{}, logx.Nop())
		v := r.ResolveVerse(context.Background(), MoodPeace, nil)
		if v.Source != SourceFallback || v.Reference != "John 14:27" {
			t.Fatalf("reply %q: got %+v", reply, v)
		}
	}
}

func TestResolveVerseTimesOut(t *testing.T) {
	t.Parallel()
	slow := GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewResolver(slow, Options{Timeout: 20 * time.Millisecond}, logx.Nop())

	start := time.Now()
	v := r.ResolveVerse(context.Background(), MoodAnxiety, nil)
	if time.Since(start) > 2*time.Second {
		t.Fatalf("resolver did not honour timeout")
	}
	if v.Source != SourceFallback {
		t.Fatalf("expected fallback, got %+v", v)
	}
}

func TestResolveWithoutGenerator(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil, Options{}, logx.Logger{})
	if v := r.ResolveVerse(context.Background(), "", nil); v.Reference != "John 14:27" {
		t.Fatalf("empty mood should use default mood entry, got %q", v.Reference)
	}
}

func TestResolvePrayerFallbacks(t *testing.T) {
	t.Parallel()
	r := NewResolver(failing(), Options{}, logx.Nop())
	ctx := context.Background()

	cases := []struct {
		name  string
		kind  PrayerKind
		mood  Mood
		occ   *occasion.Occasion
		title string
	}{
		{"morning sunday", PrayerMorning, MoodJoy, occ(t, 2026, time.August, 2), "The Lord's day"},
		{"evening sunday", PrayerEvening, MoodPeace, occ(t, 2026, time.August, 2), "Sunday evening rest"},
		{"morning new year", PrayerMorning, MoodPeace, occ(t, 2027, time.January, 1), "A new year with You"},
		{"evening year end", PrayerEvening, MoodPeace, occ(t, 2026, time.December, 31), "Thanks for this year"},
		{"morning peace", PrayerMorning, MoodPeace, nil, "Peace for today"},
		{"evening gratitude", PrayerEvening, MoodGratitude, nil, "A grateful evening"},
		{"morning default", PrayerMorning, MoodSadness, nil, "Morning prayer"},
		{"evening default", PrayerEvening, MoodAnxiety, nil, "Evening prayer"},
		// christmas has no prayer entry; falls through to the mood
		{"christmas morning", PrayerMorning, MoodJoy, occ(t, 2026, time.December, 25), "Joy in the morning"},
	}
	for _, tc := range cases {
		p := r.ResolvePrayer(ctx, tc.kind, tc.mood, tc.occ)
		if p.Title != tc.title {
			t.Fatalf("%s: title = %q, want %q", tc.name, p.Title, tc.title)
		}
		if p.Kind != tc.kind || p.Source != SourceFallback || !p.Valid() {
			t.Fatalf("%s: got %+v", tc.name, p)
		}
	}
}

func TestResolvePrayerFillsMissingOptionalFields(t *testing.T) {
	t.Parallel()
	r := NewResolver(replying(`{"prayer_text":"Lord, lead me today."}`), Options{}, logx.Nop())
	p := r.ResolvePrayer(context.Background(), PrayerEvening, MoodPeace, nil)
	if p.Source != SourceAI || p.Text != "Lord, lead me today." {
		t.Fatalf("got %+v", p)
	}
	if p.Title != "Evening prayer" || p.Blessing == "" {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestPromptsCarryContext(t *testing.T) {
	t.Parallel()
	var seen string
	gen := GeneratorFunc(func(_ context.Context, p string) (string, error) {
		seen = p
		return "", errors.New("stop")
	})
	r := NewResolver(gen, Options{}, logx.Nop())
	r.ResolveVerse(context.Background(), MoodJoy, occ(t, 2026, time.April, 5))
	if !strings.Contains(seen, "Easter Sunday") || !strings.Contains(seen, "resurrection") {
		t.Fatalf("prompt lacks occasion details: %q", seen)
	}
	r.ResolvePrayer(context.Background(), PrayerMorning, MoodAnxiety, nil)
	if !strings.Contains(seen, `"anxiety"`) || !strings.Contains(seen, "prayer_text") {
		t.Fatalf("prayer prompt lacks mood or schema: %q", seen)
	}
}

func TestParseMood(t *testing.T) {
	t.Parallel()
	cases := map[string]Mood{
		"":          MoodPeace,
		" Joie ":    MoodJoy,
		"tristesse": MoodSadness,
		"anxiété":   MoodAnxiety,
		"gratitude": MoodGratitude,
		"curious":   Mood("curious"),
	}
	for in, want := range cases {
		if got := ParseMood(in); got != want {
			t.Fatalf("ParseMood(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripFence(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`{"a":1}`:                   `{"a":1}`,
		"```\n{\"a\":1}\n```":       `{"a":1}`,
		"  ```json\n{\"a\":1}```  ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFence(in); got != want {
			t.Fatalf("stripFence(%q) = %q, want %q", in, got, want)
		}
	}
}
