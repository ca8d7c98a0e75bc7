package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/delivery"
	"soulverse/internal/notifier"
	"soulverse/internal/occasion"
	"soulverse/internal/push"
	"soulverse/internal/recipients"
	logx "soulverse/pkg/logx"
)

// Sender pushes to recipient tokens.
type Sender interface {
	SendToTokens(ctx context.Context, msg push.Message, tokens []string) (push.Report, error)
}

// VerseResolver produces daily-verse content; *content.Resolver implements it.
type VerseResolver interface {
	ResolveVerse(ctx context.Context, mood content.Mood, occ *occasion.Occasion) content.Verse
	VerseContext(mood content.Mood, occ *occasion.Occasion) content.Context
}

// Pipeline is the per-recipient daily-verse unit: cache check, content,
// record, cache write, push.
type Pipeline struct {
	Resolver VerseResolver
	Builder  *delivery.Builder
	Cache    *delivery.Cache
	// Sender is optional; without it records are only generated.
	Sender Sender

	DefaultTranslation string
	// Location fixes the zone of "today". When nil, the zone of Now's result
	// is used, which lets the caller swap zones at runtime.
	Location *time.Location
	Now      func() time.Time
	Log      logx.Logger
}

func (p *Pipeline) now() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	t := now()
	if p.Location != nil {
		t = t.In(p.Location)
	}
	return t
}

// Process runs the unit for r. A complete record already cached for today
// short-circuits with StatusCached and no downstream calls.
func (p *Pipeline) Process(ctx context.Context, r recipients.Recipient) (UnitResult, error) {
	if err := ctx.Err(); err != nil {
		return UnitResult{}, err
	}
	day := p.now()
	res := UnitResult{RecipientID: r.ID}

	if rec, ok := p.Cache.GetComplete(ctx, r.ID, day); ok {
		res.Status = StatusCached
		res.Detail = rec.Content.Reference
		return res, nil
	}

	var occPtr *occasion.Occasion
	if occ, ok := occasion.Resolve(day); ok {
		occPtr = &occ
	}
	mood := content.ParseMood(r.LastKnownMood)
	verse := p.Resolver.ResolveVerse(ctx, mood, occPtr)

	translation := r.PreferredTranslation
	if translation == "" {
		translation = p.DefaultTranslation
	}
	rec := p.Builder.Build(ctx, delivery.Input{
		RecipientID: r.ID,
		Translation: translation,
		Content:     verse,
		Context:     p.Resolver.VerseContext(mood, occPtr),
	})
	p.Cache.Put(ctx, r.ID, day, rec, 0)

	res.Status = StatusGenerated
	res.Detail = verse.Reference
	if p.Sender == nil || r.PushToken == "" {
		return res, nil
	}

	msg := notifier.DailyVerseMessage(dailyVerse(rec, day))
	rep, err := p.Sender.SendToTokens(ctx, msg, []string{r.PushToken})
	switch {
	case errors.Is(err, notifier.ErrDuplicate):
		res.Status = StatusDelivered
		res.Detail = "already pushed: " + verse.Reference
	case errors.Is(err, notifier.ErrDisabled):
		// push turned off; generated is the final state
	case err != nil:
		res.Detail = fmt.Sprintf("%s (push failed: %v)", verse.Reference, err)
		p.Log.Warn("push failed", logx.String("recipient", r.ID), logx.Err(err))
	case rep.SuccessCount > 0:
		res.Status = StatusDelivered
	default:
		reason := "no token reached"
		if len(rep.Failures) > 0 {
			reason = rep.Failures[0].Error
		}
		res.Detail = fmt.Sprintf("%s (push failed: %s)", verse.Reference, reason)
	}
	return res, nil
}

func dailyVerse(rec delivery.Record, day time.Time) notifier.DailyVerse {
	dv := notifier.DailyVerse{
		Reference:  rec.Content.Reference,
		Reflection: rec.Content.Reflection,
		Day:        day,
	}
	if rec.Verse != nil {
		dv.VerseText = rec.Verse.Text
	}
	if rec.HasImage && rec.Image != nil {
		dv.ImageURL = rec.Image.URL
	}
	return dv
}
