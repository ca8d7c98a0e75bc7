package content

import (
	"errors"
	"strings"

	"soulverse/internal/occasion"
)

var (
	// ErrInvalidResponse marks a generator reply that could not be parsed or
	// lacked required fields.
	ErrInvalidResponse = errors.New("content: invalid generator response")
	// ErrNoGenerator is returned when no generative backend is configured.
	ErrNoGenerator = errors.New("content: no generator configured")
)

// Mood is a recipient's self-reported emotional state. Known moods have
// dedicated fallback content; any other value falls through to the default entry.
type Mood string

const (
	MoodPeace     Mood = "peace"
	MoodJoy       Mood = "joy"
	MoodSadness   Mood = "sadness"
	MoodAnxiety   Mood = "anxiety"
	MoodGratitude Mood = "gratitude"

	DefaultMood = MoodPeace
)

// ParseMood normalizes a stored mood. French labels from older clients are
// mapped to their English equivalents and an empty value becomes DefaultMood.
func ParseMood(s string) Mood {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return DefaultMood
	case "paix":
		return MoodPeace
	case "joie":
		return MoodJoy
	case "tristesse":
		return MoodSadness
	case "anxiete", "anxiété":
		return MoodAnxiety
	case "reconnaissance":
		return MoodGratitude
	default:
		return Mood(s)
	}
}

type ContextKind string

const (
	ContextMood     ContextKind = "mood"
	ContextOccasion ContextKind = "occasion"
)

// Context drives prompt construction and fallback selection. Mood is always set
// so an occasion without fallback content can still fall back by mood.
type Context struct {
	Kind     ContextKind        `json:"kind"`
	Mood     Mood               `json:"mood"`
	Occasion *occasion.Occasion `json:"occasion,omitempty"`
}

// DefaultOccasionMinPriority is the lowest occasion priority that overrides the
// recipient's mood for verse content.
const DefaultOccasionMinPriority = 7

// ContextFor picks the occasion when it is present and at least minPriority,
// otherwise the mood.
func ContextFor(mood Mood, occ *occasion.Occasion, minPriority int) Context {
	if mood == "" {
		mood = DefaultMood
	}
	if occ != nil && occ.Priority >= minPriority {
		o := *occ
		return Context{Kind: ContextOccasion, Mood: mood, Occasion: &o}
	}
	return Context{Kind: ContextMood, Mood: mood}
}

// Label is the occasion name for occasion contexts, the mood otherwise.
func (c Context) Label() string {
	if c.Kind == ContextOccasion && c.Occasion != nil {
		return string(c.Occasion.Name)
	}
	return string(c.Mood)
}

type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Verse is generated daily-verse content.
type Verse struct {
	Reference  string `json:"reference"`
	Reflection string `json:"reflection"`
	VisualHint string `json:"visual_hint,omitempty"`
	Source     Source `json:"source"`
}

func (v Verse) Valid() bool {
	return strings.TrimSpace(v.Reference) != "" && strings.TrimSpace(v.Reflection) != ""
}

type PrayerKind string

const (
	PrayerMorning PrayerKind = "morning"
	PrayerEvening PrayerKind = "evening"
)

// Prayer is generated morning/evening prayer content.
type Prayer struct {
	Kind           PrayerKind `json:"kind"`
	Title          string     `json:"prayer_title"`
	Text           string     `json:"prayer_text"`
	Blessing       string     `json:"blessing"`
	SuggestedVerse string     `json:"suggested_verse"`
	Source         Source     `json:"source"`
}

func (p Prayer) Valid() bool { return strings.TrimSpace(p.Text) != "" }
