// Package content turns a mood or an occasion into devotional content.
//
// The generative backend is tried first; any failure (transport, timeout,
// malformed or incomplete reply) falls back to static tables that never fail.
package content

import (
	"context"
	"errors"
	"time"

	"soulverse/internal/occasion"
	logx "soulverse/pkg/logx"
)

// Generator is the generative-content backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Options struct {
	// Timeout bounds a single generator call. Default 20s.
	Timeout time.Duration
	// OccasionMinPriority is the lowest occasion priority that replaces the mood
	// for verse content. Default DefaultOccasionMinPriority.
	OccasionMinPriority int
}

type Resolver struct {
	gen Generator
	opt Options
	log logx.Logger
}

// NewResolver builds a resolver. gen may be nil, in which case every call is
// served from the fallback tables.
func NewResolver(gen Generator, opt Options, log logx.Logger) *Resolver {
	if opt.Timeout <= 0 {
		opt.Timeout = 20 * time.Second
	}
	if opt.OccasionMinPriority <= 0 {
		opt.OccasionMinPriority = DefaultOccasionMinPriority
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{gen: gen, opt: opt, log: log}
}

// VerseContext is the context ResolveVerse will use for mood and occ.
func (r *Resolver) VerseContext(mood Mood, occ *occasion.Occasion) Context {
	return ContextFor(mood, occ, r.opt.OccasionMinPriority)
}

// ResolveVerse always returns valid content.
func (r *Resolver) ResolveVerse(ctx context.Context, mood Mood, occ *occasion.Occasion) Verse {
	c := r.VerseContext(mood, occ)
	raw, err := r.generate(ctx, versePrompt(c))
	if err == nil {
		v, perr := parseVerse(raw)
		if perr == nil {
			return v
		}
		err = perr
	}
	fb := verseFallback(c)
	r.logFallback("verse", c, err)
	return fb
}

// ResolvePrayer always returns valid content. Prayers are global, so any
// occasion of the day takes precedence over the mood regardless of priority.
func (r *Resolver) ResolvePrayer(ctx context.Context, kind PrayerKind, mood Mood, occ *occasion.Occasion) Prayer {
	if kind != PrayerEvening {
		kind = PrayerMorning
	}
	c := ContextFor(mood, occ, 0)
	raw, err := r.generate(ctx, prayerPrompt(kind, c))
	if err == nil {
		p, perr := parsePrayer(kind, raw)
		if perr == nil {
			return p
		}
		err = perr
	}
	r.logFallback(string(kind)+"_prayer", c, err)
	return prayerFallback(kind, c)
}

func (r *Resolver) generate(ctx context.Context, prompt string) (string, error) {
	if r.gen == nil {
		return "", ErrNoGenerator
	}
	cctx, cancel := context.WithTimeout(ctx, r.opt.Timeout)
	defer cancel()
	return r.gen.Generate(cctx, prompt)
}

func (r *Resolver) logFallback(what string, c Context, err error) {
	if errors.Is(err, ErrNoGenerator) {
		r.log.Debug("using fallback content", logx.String("kind", what), logx.String("context", c.Label()))
		return
	}
	r.log.Warn("generation failed; using fallback content",
		logx.String("kind", what),
		logx.String("context", c.Label()),
		logx.Err(err),
	)
}
