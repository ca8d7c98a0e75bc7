package notifier

import (
	"time"

	"soulverse/internal/content"
	"soulverse/internal/push"
)

const (
	TopicMorningPrayers = "morning_prayers"
	TopicEveningPrayers = "evening_prayers"

	bodyLimit = 100
)

// Truncate shortens s to n runes followed by "..." when it is longer.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// DailyVerse describes a personalized daily-verse notification.
type DailyVerse struct {
	Reference  string
	VerseText  string
	Reflection string
	ImageURL   string
	Day        time.Time
}

// DailyVerseMessage renders the per-recipient daily verse push. The body is the
// verse text, or the reflection when no verse text was found.
func DailyVerseMessage(v DailyVerse) push.Message {
	body := v.VerseText
	if body == "" {
		body = v.Reflection
	}
	data := map[string]string{
		"type":            "daily_verse",
		"verse_reference": v.Reference,
		"verse_content":   v.VerseText,
		"date":            v.Day.Format(time.DateOnly),
	}
	if v.Reflection != "" {
		data["reflection"] = v.Reflection
	}
	if v.ImageURL != "" {
		data["image_url"] = v.ImageURL
	}
	return push.Message{
		Title:    "Daily Verse - " + v.Reference,
		Body:     Truncate(body, bodyLimit),
		ImageURL: v.ImageURL,
		Priority: push.PriorityNormal,
		Data:     data,
	}
}

// PrayerMessage renders a global prayer push and returns the topic it goes to.
func PrayerMessage(p content.Prayer) (push.Message, string) {
	title, topic, typ := "Good Morning!", TopicMorningPrayers, "morning_prayer"
	if p.Kind == content.PrayerEvening {
		title, topic, typ = "Good Evening!", TopicEveningPrayers, "evening_prayer"
	}
	return push.Message{
		Title:    title,
		Body:     Truncate(p.Text, bodyLimit),
		Priority: push.PriorityNormal,
		Data: map[string]string{
			"type":            typ,
			"prayer_type":     string(p.Kind),
			"prayer_title":    p.Title,
			"blessing":        p.Blessing,
			"suggested_verse": p.SuggestedVerse,
		},
	}, topic
}
