package content

import (
	"fmt"
	"strings"
)

const verseSchema = `{
  "reference": "Book chapter:verse",
  "reflection": "2-3 sentences applying the verse to today",
  "visual_elements": ["short", "image", "keywords"]
}`

const prayerSchema = `{
  "prayer_title": "short title",
  "prayer_text": "the prayer, 3-5 sentences",
  "blessing": "one sentence blessing",
  "suggested_verse": "Book chapter:verse"
}`

// describeContext renders the context as prompt lines.
func describeContext(c Context) string {
	var b strings.Builder
	if c.Kind == ContextOccasion && c.Occasion != nil {
		o := c.Occasion
		fmt.Fprintf(&b, "Today is a special occasion: %s (%s).\n", o.Description, o.Name)
		if len(o.Themes) > 0 {
			fmt.Fprintf(&b, "Spiritual themes to draw from: %s.\n", strings.Join(o.Themes, ", "))
		}
		fmt.Fprintf(&b, "The reader's current mood is %q; keep the tone compatible with it.\n", string(c.Mood))
		return b.String()
	}
	fmt.Fprintf(&b, "The reader describes their current mood as %q.\n", string(c.Mood))
	b.WriteString("Choose a verse that speaks directly to that emotional state.\n")
	return b.String()
}

func versePrompt(c Context) string {
	var b strings.Builder
	b.WriteString("You select one Bible verse for a daily devotional notification.\n")
	b.WriteString(describeContext(c))
	b.WriteString("Use a well-known verse and cite it as 'Book chapter:verse' with the book name spelled out.\n")
	b.WriteString("Reply with JSON only, no prose, matching this schema:\n")
	b.WriteString(verseSchema)
	return b.String()
}

func prayerPrompt(kind PrayerKind, c Context) string {
	var b strings.Builder
	switch kind {
	case PrayerEvening:
		b.WriteString("Write a short evening prayer of thanksgiving and rest for a devotional app.\n")
	default:
		b.WriteString("Write a short morning prayer to start the day for a devotional app.\n")
	}
	b.WriteString(describeContext(c))
	b.WriteString("Reply with JSON only, no prose, matching this schema:\n")
	b.WriteString(prayerSchema)
	return b.String()
}
