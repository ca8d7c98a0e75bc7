// Package occasion resolves a calendar date to the liturgical or calendar occasion
// used to bias devotional content.
//
// Resolution is a pure function of the date. Rules are checked in a fixed order
// (fixed dates, Easter-relative feasts, Sunday, first day of the month) and the
// first match wins. Precedence therefore comes from evaluation order, not from
// comparing Priority values: several movable feasts share priority 10 with
// Christmas.
package occasion

import (
	"fmt"
	"time"
)

// Name identifies a known occasion. The set is closed.
type Name string

const (
	NewYear        Name = "new_year"
	YearEnd        Name = "year_end"
	Christmas      Name = "christmas"
	ChristmasEve   Name = "christmas_eve"
	Epiphany       Name = "epiphany"
	Assumption     Name = "assumption"
	AllSaints      Name = "all_saints"
	PalmSunday     Name = "palm_sunday"
	MaundyThursday Name = "maundy_thursday"
	GoodFriday     Name = "good_friday"
	Easter         Name = "easter"
	Ascension      Name = "ascension"
	Pentecost      Name = "pentecost"
	Sunday         Name = "sunday"
	MonthStart     Name = "month_start"
)

// Occasion is derived from a date and never persisted as an entity.
type Occasion struct {
	Name        Name     `json:"name"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	Themes      []string `json:"themes"`
}

func (o Occasion) String() string {
	return fmt.Sprintf("%s(p%d)", o.Name, o.Priority)
}

type fixedRule struct {
	month time.Month
	day   int
	occ   Occasion
}

type movableRule struct {
	offset int // days relative to Easter Sunday
	occ    Occasion
}

var fixedRules = []fixedRule{
	{time.January, 1, Occasion{NewYear, "New Year's Day", 10, []string{"new_beginning", "hope", "plans", "blessing"}}},
	{time.December, 31, Occasion{YearEnd, "Last day of the year", 10, []string{"gratitude", "review", "thankfulness", "divine_faithfulness"}}},
	{time.December, 25, Occasion{Christmas, "Christmas", 10, []string{"incarnation", "salvation", "divine_love", "hope"}}},
	{time.December, 24, Occasion{ChristmasEve, "Christmas Eve", 9, []string{"waiting", "preparation", "hope"}}},
	{time.January, 6, Occasion{Epiphany, "Epiphany", 8, []string{"revelation", "light", "mission"}}},
	{time.August, 15, Occasion{Assumption, "Assumption", 7, []string{"heavenly_hope", "faith", "devotion"}}},
	{time.November, 1, Occasion{AllSaints, "All Saints' Day", 7, []string{"sanctification", "hope", "communion"}}},
}

var movableRules = []movableRule{
	{0, Occasion{Easter, "Easter Sunday", 10, []string{"resurrection", "victory", "new_life", "hope"}}},
	{-2, Occasion{GoodFriday, "Good Friday", 10, []string{"sacrifice", "redemption", "love", "forgiveness"}}},
	{-3, Occasion{MaundyThursday, "Maundy Thursday", 9, []string{"service", "communion", "humility"}}},
	{-7, Occasion{PalmSunday, "Palm Sunday", 8, []string{"kingship", "praise", "humility"}}},
	{49, Occasion{Pentecost, "Pentecost", 10, []string{"holy_spirit", "power", "mission", "unity"}}},
	{39, Occasion{Ascension, "Ascension", 9, []string{"glory", "promise", "mission"}}},
}

var sundayOccasion = Occasion{Sunday, "The Lord's day", 5, []string{"worship", "rest", "communion", "praise"}}

// Calendar resolves dates to occasions. The zero value is ready to use.
type Calendar struct{}

// Resolve returns the occasion for d, if any. Only the year, month and day of d
// in its own location are considered.
func (Calendar) Resolve(d time.Time) (Occasion, bool) {
	return Resolve(d)
}

// Resolve is the package-level form of Calendar.Resolve.
func Resolve(d time.Time) (Occasion, bool) {
	y, m, day := d.Date()
	date := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)

	for _, r := range fixedRules {
		if r.month == m && r.day == day {
			return r.occ.clone(), true
		}
	}

	easter := EasterSunday(y)
	for _, r := range movableRules {
		if date.Equal(easter.AddDate(0, 0, r.offset)) {
			return r.occ.clone(), true
		}
	}

	if date.Weekday() == time.Sunday {
		return sundayOccasion.clone(), true
	}

	if day == 1 {
		return Occasion{
			Name:        MonthStart,
			Description: "Start of the month of " + m.String(),
			Priority:    4,
			Themes:      []string{"new_beginning", "blessing", "provision"},
		}, true
	}
	return Occasion{}, false
}

// FeastDate returns the date of the named Easter-relative feast in year.
func FeastDate(year int, name Name) (time.Time, bool) {
	for _, r := range movableRules {
		if r.occ.Name == name {
			return EasterSunday(year).AddDate(0, 0, r.offset), true
		}
	}
	return time.Time{}, false
}

func (o Occasion) clone() Occasion {
	o.Themes = append([]string(nil), o.Themes...)
	return o
}
