// Package imagegen produces an illustration for a verse through a chain of
// providers, deduplicated by content hash, ending in a static placeholder.
package imagegen

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"
)

var ErrNoProvider = errors.New("imagegen: no provider produced an image")

const (
	MethodFallback     = "fallback"
	DefaultPlaceholder = "/static/default_verse.png"
)

// Request describes the image to produce. Mood is the occasion name for
// occasion-driven content.
type Request struct {
	Text       string `json:"text"`
	Reference  string `json:"reference"`
	Mood       string `json:"mood"`
	VisualHint string `json:"visual_hint,omitempty"`
}

// Hash is md5("{text}_{reference}_{mood}") in hex.
func (r Request) Hash() string {
	sum := md5.Sum([]byte(r.Text + "_" + r.Reference + "_" + r.Mood))
	return hex.EncodeToString(sum[:])
}

// Image is a provider result: inline bytes, a remote URL, or both.
type Image struct {
	Data []byte
	URL  string
	// Ext is the file extension for Data, dot included. Default ".png".
	Ext string
}

type Artifact struct {
	URL         string    `json:"url"`
	LocalPath   string    `json:"local_path,omitempty"`
	ContentHash string    `json:"content_hash"`
	Method      string    `json:"method"`
	GeneratedAt time.Time `json:"generated_at"`
}

// IsPlaceholder reports whether the artifact is the static fallback image.
func (a Artifact) IsPlaceholder() bool { return a.Method == MethodFallback }
