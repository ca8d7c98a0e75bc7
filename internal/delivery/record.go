// Package delivery assembles a recipient's daily record (generated content,
// full scripture text, illustration) and caches it per recipient and day.
package delivery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/imagegen"
	"soulverse/internal/scripture"
)

var ErrBadReference = errors.New("delivery: unparseable reference")

// Record is what a recipient receives for a day. Verse and Image are nil when
// the lookup or the image pipeline produced nothing.
type Record struct {
	RecipientID  string             `json:"recipient_id"`
	Verse        *scripture.Verse   `json:"verse,omitempty"`
	Content      content.Verse      `json:"content"`
	Image        *imagegen.Artifact `json:"image,omitempty"`
	Context      content.Context    `json:"context"`
	Translation  string             `json:"translation"`
	GeneratedAt  time.Time          `json:"generated_at"`
	HasFullVerse bool               `json:"has_full_verse"`
	HasImage     bool               `json:"has_image"`
}

// Reference is a parsed "Book chapter:verse" string.
type Reference struct {
	Book    string
	Chapter int
	Verse   int
}

// ParseReference splits "1 Corinthiens 13:4-7" into its book, chapter and
// first verse. The book is every token before the last one.
func ParseReference(s string) (Reference, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	chVerse := fields[len(fields)-1]
	chStr, vStr, ok := strings.Cut(chVerse, ":")
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	if i := strings.IndexAny(vStr, "-–,"); i >= 0 {
		vStr = vStr[:i]
	}
	ch, err := strconv.Atoi(chStr)
	if err != nil || ch <= 0 {
		return Reference{}, fmt.Errorf("%w: chapter %q", ErrBadReference, chStr)
	}
	v, err := strconv.Atoi(vStr)
	if err != nil || v <= 0 {
		return Reference{}, fmt.Errorf("%w: verse %q", ErrBadReference, vStr)
	}
	return Reference{Book: strings.Join(fields[:len(fields)-1], " "), Chapter: ch, Verse: v}, nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
