package content

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// stripFence removes a surrounding markdown code fence (``` or ```json).
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseVerse(raw string) (Verse, error) {
	body := stripFence(raw)
	if !gjson.Valid(body) {
		return Verse{}, fmt.Errorf("%w: not json", ErrInvalidResponse)
	}
	res := gjson.Parse(body)
	v := Verse{
		Reference:  strings.TrimSpace(res.Get("reference").String()),
		Reflection: strings.TrimSpace(res.Get("reflection").String()),
		VisualHint: visualHint(res.Get("visual_elements")),
		Source:     SourceAI,
	}
	if !v.Valid() {
		return Verse{}, fmt.Errorf("%w: missing reference or reflection", ErrInvalidResponse)
	}
	return v, nil
}

// visualHint accepts either a string or an array of strings.
func visualHint(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	if r.IsArray() {
		parts := make([]string, 0, len(r.Array()))
		for _, it := range r.Array() {
			if s := strings.TrimSpace(it.String()); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(r.String())
}

func parsePrayer(kind PrayerKind, raw string) (Prayer, error) {
	body := stripFence(raw)
	if !gjson.Valid(body) {
		return Prayer{}, fmt.Errorf("%w: not json", ErrInvalidResponse)
	}
	res := gjson.Parse(body)
	p := Prayer{
		Kind:           kind,
		Title:          strings.TrimSpace(res.Get("prayer_title").String()),
		Text:           strings.TrimSpace(res.Get("prayer_text").String()),
		Blessing:       strings.TrimSpace(res.Get("blessing").String()),
		SuggestedVerse: strings.TrimSpace(res.Get("suggested_verse").String()),
		Source:         SourceAI,
	}
	if !p.Valid() {
		return Prayer{}, fmt.Errorf("%w: missing prayer_text", ErrInvalidResponse)
	}
	def := defaultPrayer(kind)
	if p.Title == "" {
		p.Title = def.Title
	}
	if p.Blessing == "" {
		p.Blessing = def.Blessing
	}
	return p, nil
}
