package imagegen

import (
	"fmt"
	"strings"
)

var moodStyles = map[string]string{
	"peace":     "peaceful, serene, calm blue and white tones",
	"joy":       "joyful, bright, golden and warm colors",
	"sadness":   "gentle, comforting, soft gray and blue tones",
	"anxiety":   "soothing, reassuring, purple and soft colors",
	"gratitude": "warm, thankful, orange and earth tones",
}

type sceneKeyword struct {
	words []string
	scene string
}

// visualKeywords maps words found in verse text (English or French) to scene
// elements. Order is stable so prompts are reproducible.
var visualKeywords = []sceneKeyword{
	{[]string{"light", "lumière"}, "divine light rays, golden glow"},
	{[]string{"water", "eau", "river", "fleuve"}, "flowing water, peaceful stream"},
	{[]string{"mountain", "montagne"}, "majestic mountain, high peak"},
	{[]string{"sea", "mer"}, "calm sea, ocean waves"},
	{[]string{"heaven", "ciel"}, "heavenly sky, clouds"},
	{[]string{"sun", "soleil"}, "bright sun, sunrise"},
	{[]string{"star", "étoile"}, "shining stars, night sky"},
	{[]string{"tree", "arbre"}, "tree of life, flourishing tree"},
	{[]string{"shepherd", "berger"}, "good shepherd with sheep"},
	{[]string{"cross", "croix"}, "wooden cross, salvation symbol"},
	{[]string{"dove", "colombe"}, "white dove, Holy Spirit"},
	{[]string{"bread", "pain"}, "bread of life, broken bread"},
	{[]string{"path", "chemin"}, "narrow path, journey road"},
	{[]string{"peace", "paix"}, "calm serenity, tranquil scene"},
	{[]string{"joy", "joie"}, "radiant happiness"},
	{[]string{"hope", "espoir", "espérance"}, "hopeful sunrise, new beginning"},
	{[]string{"love", "amour"}, "heart of compassion"},
}

var genericScene = []string{
	"peaceful spiritual atmosphere",
	"divine light from heaven",
	"serene landscape",
}

func sceneElements(req Request) string {
	var els []string
	if h := strings.TrimSpace(req.VisualHint); h != "" {
		els = append(els, h)
	}
	lower := strings.ToLower(req.Text)
	for _, kw := range visualKeywords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				els = append(els, kw.scene)
				break
			}
		}
	}
	if len(els) == 0 {
		els = genericScene
	}
	if len(els) > 6 {
		els = els[:6]
	}
	return strings.Join(els, ", ")
}

// buildPrompt renders the provider prompt for req.
func buildPrompt(req Request) string {
	style, ok := moodStyles[strings.ToLower(req.Mood)]
	if !ok {
		style = "peaceful, spiritual, soft colors"
	}
	return fmt.Sprintf(
		"Create a beautiful, spiritual image for the Bible verse %s with a %s palette. "+
			"Style: minimalist, elegant, suitable for daily meditation. "+
			"Scene elements: %s. Do not render any text in the image.",
		req.Reference, style, sceneElements(req))
}
