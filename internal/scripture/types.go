// Package scripture looks up Bible verses in scrollmapper-format JSON
// translations, fetched once per translation and kept in memory.
package scripture

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the book, chapter or verse does not exist in
	// the translation.
	ErrNotFound           = errors.New("scripture: verse not found")
	ErrUnknownTranslation = errors.New("scripture: unknown translation")
)

// Verse is a single verse of a translation.
type Verse struct {
	Book        string `json:"book"`
	Chapter     int    `json:"chapter"`
	Verse       int    `json:"verse"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
}

// Reference renders "Book chapter:verse".
func (v Verse) Reference() string {
	return fmt.Sprintf("%s %d:%d", v.Book, v.Chapter, v.Verse)
}

const DefaultBaseURL = "https://raw.githubusercontent.com/scrollmapper/bible_databases/master/formats/json"

// DefaultTranslations maps translation codes to file names under the source.
func DefaultTranslations() map[string]string {
	return map[string]string{
		"FreBBB":     "FreBBB.json",
		"KJV":        "KJV.json",
		"FreCrampon": "FreCrampon.json",
	}
}

type Options struct {
	BaseURL string
	// SourceDir, when set, is checked for translation files before the network.
	SourceDir    string
	Translations map[string]string
	// Timeout bounds a lookup, including a first-time load.
	Timeout time.Duration
	// FetchTimeout bounds downloading and decoding one translation.
	FetchTimeout time.Duration
	MaxRetries   uint64
	RetryBase    time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if len(o.Translations) == 0 {
		o.Translations = DefaultTranslations()
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 60 * time.Second
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	return o
}
