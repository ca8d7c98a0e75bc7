package occasion

import (
	"reflect"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestResolveKnownDates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		at       time.Time
		want     Name
		priority int
	}{
		{name: "new year", at: date(2026, time.January, 1), want: NewYear, priority: 10},
		{name: "christmas", at: date(2026, time.December, 25), want: Christmas, priority: 10},
		{name: "plain sunday", at: date(2026, time.August, 2), want: Sunday, priority: 5},
		{name: "christmas eve", at: date(2026, time.December, 24), want: ChristmasEve, priority: 9},
		{name: "easter 2026", at: date(2026, time.April, 5), want: Easter, priority: 10},
		{name: "good friday 2026", at: date(2026, time.April, 3), want: GoodFriday, priority: 10},
		{name: "maundy thursday 2026", at: date(2026, time.April, 2), want: MaundyThursday, priority: 9},
		{name: "palm sunday 2026", at: date(2026, time.March, 29), want: PalmSunday, priority: 8},
		{name: "ascension 2026", at: date(2026, time.May, 14), want: Ascension, priority: 9},
		{name: "pentecost 2026 beats sunday", at: date(2026, time.May, 24), want: Pentecost, priority: 10},
		{name: "all saints on a sunday", at: date(2026, time.November, 1), want: AllSaints, priority: 7},
		{name: "month start on a sunday is sunday", at: date(2026, time.March, 1), want: Sunday, priority: 5},
		{name: "month start on a monday", at: date(2026, time.June, 1), want: MonthStart, priority: 4},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Resolve(tt.at)
			if !ok {
				t.Fatalf("Resolve(%s) returned no occasion", tt.at.Format(time.DateOnly))
			}
			if got.Name != tt.want || got.Priority != tt.priority {
				t.Fatalf("Resolve(%s) = %s, want %s(p%d)", tt.at.Format(time.DateOnly), got, tt.want, tt.priority)
			}
			if len(got.Themes) == 0 || got.Description == "" {
				t.Fatalf("occasion %s missing description/themes", got.Name)
			}
		})
	}
}

func TestResolveOrdinaryDay(t *testing.T) {
	t.Parallel()
	if occ, ok := Resolve(date(2026, time.August, 4)); ok {
		t.Fatalf("expected no occasion on an ordinary tuesday, got %s", occ)
	}
}

func TestMonthStartDescriptionNamesMonth(t *testing.T) {
	t.Parallel()
	occ, ok := Resolve(date(2026, time.June, 1))
	if !ok || occ.Description != "Start of the month of June" {
		t.Fatalf("unexpected month start occasion: %+v", occ)
	}
}

func TestResolveIsPure(t *testing.T) {
	t.Parallel()
	start := date(2024, time.January, 1)
	for i := 0; i < 3*366; i++ {
		d := start.AddDate(0, 0, i)
		a, okA := Resolve(d)
		a.Themes = append(a.Themes, "mutated")
		b, okB := Resolve(d)
		c, okC := Resolve(d)
		if okA != okB || okB != okC || !reflect.DeepEqual(b, c) {
			t.Fatalf("Resolve(%s) is not deterministic", d.Format(time.DateOnly))
		}
	}
}

func TestResolveIgnoresClockAndLocation(t *testing.T) {
	t.Parallel()
	lome, err := time.LoadLocation("Africa/Lome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	late := time.Date(2026, time.December, 25, 23, 59, 0, 0, lome)
	occ, ok := Resolve(late)
	if !ok || occ.Name != Christmas {
		t.Fatalf("got %v, want christmas", occ)
	}
}

func TestEasterSundayKnownYears(t *testing.T) {
	t.Parallel()
	want := map[int]string{
		2024: "2024-03-31",
		2025: "2025-04-20",
		2026: "2026-04-05",
		2027: "2027-03-28",
		2028: "2028-04-16",
		2029: "2029-04-01",
		2030: "2030-04-21",
	}
	for y, w := range want {
		got := EasterSunday(y)
		if got.Format(time.DateOnly) != w {
			t.Fatalf("EasterSunday(%d) = %s, want %s", y, got.Format(time.DateOnly), w)
		}
		if got.Weekday() != time.Sunday {
			t.Fatalf("EasterSunday(%d) is a %s", y, got.Weekday())
		}
	}
}

func TestFeastOffsetsAreConsistent(t *testing.T) {
	t.Parallel()
	for y := 2024; y <= 2030; y++ {
		easter := EasterSunday(y)
		asc, _ := FeastDate(y, Ascension)
		pent, _ := FeastDate(y, Pentecost)
		palm, _ := FeastDate(y, PalmSunday)
		gf, _ := FeastDate(y, GoodFriday)
		if d := asc.Sub(easter); d != 39*24*time.Hour {
			t.Fatalf("%d: ascension - easter = %v", y, d)
		}
		if d := pent.Sub(easter); d != 49*24*time.Hour {
			t.Fatalf("%d: pentecost - easter = %v", y, d)
		}
		if palm.Weekday() != time.Sunday || gf.Weekday() != time.Friday {
			t.Fatalf("%d: palm sunday %s / good friday %s", y, palm.Weekday(), gf.Weekday())
		}
		for _, n := range []Name{Ascension, Pentecost, PalmSunday, GoodFriday} {
			d, _ := FeastDate(y, n)
			occ, ok := Resolve(d)
			if !ok || occ.Name != n {
				t.Fatalf("%d: Resolve(%s) = %v, want %s", y, d.Format(time.DateOnly), occ, n)
			}
		}
	}
	if _, ok := FeastDate(2026, Christmas); ok {
		t.Fatal("christmas is not an Easter-relative feast")
	}
}
