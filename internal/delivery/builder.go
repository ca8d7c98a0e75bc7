package delivery

import (
	"context"
	"errors"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/imagegen"
	"soulverse/internal/scripture"
	logx "soulverse/pkg/logx"
)

// ScriptureLookup resolves a verse. A miss returns scripture.ErrNotFound.
type ScriptureLookup interface {
	Lookup(ctx context.Context, translation, book string, chapter, verse int) (scripture.Verse, error)
}

// ImagePipeline produces an illustration for a verse.
type ImagePipeline interface {
	Generate(ctx context.Context, req imagegen.Request) (imagegen.Artifact, error)
}

type Input struct {
	RecipientID string
	Translation string
	Content     content.Verse
	Context     content.Context
}

// Builder turns generated content into a Record. Either collaborator may be nil.
type Builder struct {
	lookup ScriptureLookup
	images ImagePipeline
	log    logx.Logger
	now    func() time.Time
}

func NewBuilder(lookup ScriptureLookup, images ImagePipeline, log logx.Logger) *Builder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Builder{lookup: lookup, images: images, log: log, now: time.Now}
}

// Build never fails; missing pieces are left nil and flagged.
func (b *Builder) Build(ctx context.Context, in Input) Record {
	rec := Record{
		RecipientID: in.RecipientID,
		Content:     in.Content,
		Context:     in.Context,
		Translation: in.Translation,
	}

	rec.Verse = b.findVerse(ctx, in)

	text := excerpt(in.Content.Reflection, 100)
	if rec.Verse != nil {
		text = rec.Verse.Text
	}
	if b.images != nil {
		art, err := b.images.Generate(ctx, imagegen.Request{
			Text:       text,
			Reference:  in.Content.Reference,
			Mood:       in.Context.Label(),
			VisualHint: in.Content.VisualHint,
		})
		if err != nil {
			b.log.Warn("image generation failed", logx.String("recipient", in.RecipientID), logx.Err(err))
		} else {
			rec.Image = &art
		}
	}

	rec.HasFullVerse = rec.Verse != nil
	rec.HasImage = rec.Image != nil && !rec.Image.IsPlaceholder()
	rec.GeneratedAt = b.now()
	return rec
}

func (b *Builder) findVerse(ctx context.Context, in Input) *scripture.Verse {
	if b.lookup == nil {
		return nil
	}
	ref, err := ParseReference(in.Content.Reference)
	if err != nil {
		b.log.Debug("reference not parsed", logx.String("reference", in.Content.Reference), logx.Err(err))
		return nil
	}
	v, err := b.lookup.Lookup(ctx, in.Translation, ref.Book, ref.Chapter, ref.Verse)
	switch {
	case errors.Is(err, scripture.ErrNotFound):
		b.log.Debug("verse not found", logx.String("reference", in.Content.Reference), logx.String("translation", in.Translation))
		return nil
	case err != nil:
		b.log.Warn("scripture lookup failed", logx.String("reference", in.Content.Reference), logx.Err(err))
		return nil
	}
	return &v
}
