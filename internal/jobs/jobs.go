// Package jobs holds the bodies of the recurring jobs and registers them with
// the scheduler. Manual triggers call the same methods.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/delivery"
	"soulverse/internal/dispatch"
	"soulverse/internal/eventbus"
	"soulverse/internal/notifier"
	"soulverse/internal/occasion"
	"soulverse/internal/push"
	"soulverse/internal/recipients"
	"soulverse/internal/task/scheduler"
	logx "soulverse/pkg/logx"
)

const (
	DailyVerses   = "daily_verses"
	MorningPrayer = "morning_prayer"
	EveningPrayer = "evening_prayer"
	CacheCleanup  = "cache_cleanup"
	ImageCleanup  = "image_cleanup"
	DailyStats    = "daily_stats"

	EventStats = "stats.daily"
)

// Times are the daily HH:MM firing times in the scheduler timezone.
type Times struct {
	DailyVerses   string
	MorningPrayer string
	EveningPrayer string
	CacheCleanup  string
	ImageCleanup  string
	DailyStats    string
}

func DefaultTimes() Times {
	return Times{
		DailyVerses:   "06:00",
		MorningPrayer: "07:00",
		EveningPrayer: "19:00",
		CacheCleanup:  "02:00",
		ImageCleanup:  "03:00",
		DailyStats:    "00:00",
	}
}

// TopicSender pushes to a topic.
type TopicSender interface {
	SendToTopic(ctx context.Context, msg push.Message, topic string) error
}

// PrayerResolver produces prayers; *content.Resolver implements it.
type PrayerResolver interface {
	ResolvePrayer(ctx context.Context, kind content.PrayerKind, mood content.Mood, occ *occasion.Occasion) content.Prayer
}

// ImageStore removes stored images; *imagegen.Pipeline implements it.
type ImageStore interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// DefaultImageRetention matches the image dedup window.
const DefaultImageRetention = 7 * 24 * time.Hour

type Deps struct {
	Recipients recipients.Store
	Dispatcher *dispatch.Dispatcher
	Resolver   PrayerResolver
	Cache      *delivery.Cache
	// Topics is optional; without it prayers are only cached.
	Topics TopicSender
	// Images is optional; without it image_cleanup is not registered.
	Images         ImageStore
	ImageRetention time.Duration
	History        *eventbus.Recorder
	Bus            eventbus.Bus
	Location       *time.Location
	Now            func() time.Time
	Log            logx.Logger
}

type Service struct {
	d       Deps
	loc     atomic.Pointer[time.Location]
	running inflight
}

func New(d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ImageRetention <= 0 {
		d.ImageRetention = DefaultImageRetention
	}
	s := &Service{d: d}
	s.SetLocation(d.Location)
	return s
}

// SetLocation changes the timezone used to compute "today". nil means Local.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.loc.Store(loc)
}

func (s *Service) today() time.Time { return s.d.Now().In(s.loc.Load()) }

// DailyVerses delivers today's verse to every active recipient.
func (s *Service) DailyVerses(ctx context.Context) (dispatch.Outcome, error) {
	defer s.running.begin()()
	rs, err := s.d.Recipients.ListActiveWithToken(ctx)
	if err != nil {
		return dispatch.Outcome{}, fmt.Errorf("list recipients: %w", err)
	}
	if len(rs) == 0 {
		s.d.Log.Info("no active recipients; nothing to deliver")
	}
	return s.d.Dispatcher.RunForAll(ctx, rs), nil
}

type PrayerResult struct {
	Prayer content.Prayer `json:"prayer"`
	Topic  string         `json:"topic"`
	Cached bool           `json:"cached"`
	Pushed bool           `json:"pushed"`
	// PushError is set when the topic push failed or was suppressed.
	PushError string `json:"push_error,omitempty"`
}

func (s *Service) MorningPrayer(ctx context.Context) (PrayerResult, error) {
	return s.prayer(ctx, content.PrayerMorning)
}

func (s *Service) EveningPrayer(ctx context.Context) (PrayerResult, error) {
	return s.prayer(ctx, content.PrayerEvening)
}

// prayer resolves the global prayer of the day once, caches it, then pushes
// it to the kind's topic.
func (s *Service) prayer(ctx context.Context, kind content.PrayerKind) (PrayerResult, error) {
	defer s.running.begin()()
	day := s.today()
	var res PrayerResult

	p, ok := s.d.Cache.GetPrayer(ctx, kind, day)
	if ok {
		res.Cached = true
	} else {
		var occPtr *occasion.Occasion
		if occ, ok := occasion.Resolve(day); ok {
			occPtr = &occ
		}
		p = s.d.Resolver.ResolvePrayer(ctx, kind, content.DefaultMood, occPtr)
		s.d.Cache.PutPrayer(ctx, day, p)
	}
	res.Prayer = p

	msg, topic := notifier.PrayerMessage(p)
	res.Topic = topic
	if s.d.Topics == nil {
		return res, nil
	}
	err := s.d.Topics.SendToTopic(ctx, msg, topic)
	switch {
	case err == nil:
		res.Pushed = true
	case errors.Is(err, notifier.ErrDuplicate), errors.Is(err, notifier.ErrDisabled):
		res.PushError = err.Error()
	default:
		return res, fmt.Errorf("push %s prayer: %w", kind, err)
	}
	return res, nil
}

type CleanupResult struct {
	Day         string `json:"day"`
	Invalidated int    `json:"invalidated"`
	Pruned      int    `json:"pruned"`
}

// CacheCleanup drops yesterday's records and prunes expired storage rows.
func (s *Service) CacheCleanup(ctx context.Context) (CleanupResult, error) {
	defer s.running.begin()()
	yesterday := s.today().AddDate(0, 0, -1)
	res := CleanupResult{Day: delivery.DayKey(yesterday)}

	rs, err := s.d.Recipients.ListActiveWithToken(ctx)
	if err != nil {
		return res, fmt.Errorf("list recipients: %w", err)
	}
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	if res.Invalidated, err = s.d.Cache.InvalidateDay(ctx, yesterday, ids); err != nil {
		return res, err
	}
	if res.Pruned, err = s.d.Cache.PruneExpired(ctx); err != nil {
		return res, fmt.Errorf("prune expired: %w", err)
	}
	s.d.Log.Info("cache cleaned", logx.String("day", res.Day), logx.Int("invalidated", res.Invalidated), logx.Int("pruned", res.Pruned))
	return res, nil
}

type ImageCleanupResult struct {
	Retention string `json:"retention"`
	Removed   int    `json:"removed"`
}

// ImageCleanup removes stored images older than the retention window.
func (s *Service) ImageCleanup(ctx context.Context) (ImageCleanupResult, error) {
	defer s.running.begin()()
	res := ImageCleanupResult{Retention: s.d.ImageRetention.String()}
	if s.d.Images == nil {
		return res, nil
	}
	n, err := s.d.Images.Cleanup(ctx, s.d.ImageRetention)
	res.Removed = n
	if err != nil {
		return res, fmt.Errorf("image cleanup: %w", err)
	}
	s.d.Log.Info("images cleaned", logx.Int("removed", n), logx.Duration("retention", s.d.ImageRetention))
	return res, nil
}

type Stats struct {
	Date             string `json:"date"`
	ActiveRecipients int    `json:"active_recipients"`
	CachedToday      int    `json:"cached_today"`
}

// DailyStats counts active recipients and those already served today.
func (s *Service) DailyStats(ctx context.Context) (Stats, error) {
	defer s.running.begin()()
	day := s.today()
	rs, err := s.d.Recipients.ListActiveWithToken(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list recipients: %w", err)
	}
	st := Stats{Date: delivery.DayKey(day), ActiveRecipients: len(rs)}
	for _, r := range rs {
		if _, ok := s.d.Cache.Get(ctx, r.ID, day); ok {
			st.CachedToday++
		}
	}
	s.d.Log.Info("daily stats", logx.String("date", st.Date), logx.Int("active", st.ActiveRecipients), logx.Int("cached", st.CachedToday))
	if s.d.Bus != nil {
		s.d.Bus.Publish(eventbus.Event{Type: EventStats, Time: time.Now(), Data: st})
	}
	return st, nil
}

// Wait blocks until no job body is running or ctx ends. Storage must stay open
// until it returns nil.
func (s *Service) Wait(ctx context.Context) error { return s.running.wait(ctx) }

// Running is the number of job bodies in flight.
func (s *Service) Running() int { return s.running.count() }

// History returns recent task events, newest first.
func (s *Service) History(limit int) []eventbus.Event {
	if s.d.History == nil {
		return nil
	}
	return s.d.History.Snapshot(limit)
}

// Register schedules every job. Empty times fall back to DefaultTimes.
func (s *Service) Register(sched *scheduler.Service, t Times) error {
	def := DefaultTimes()
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	defs := []scheduler.JobDef{
		{Name: DailyVerses, At: pick(t.DailyVerses, def.DailyVerses), Run: func(ctx context.Context) error {
			out, err := s.DailyVerses(ctx)
			if err != nil {
				return err
			}
			if out.Total > 0 && out.SuccessCount == 0 {
				return fmt.Errorf("all %d deliveries failed", out.Total)
			}
			return nil
		}},
		{Name: MorningPrayer, At: pick(t.MorningPrayer, def.MorningPrayer), Run: func(ctx context.Context) error {
			_, err := s.MorningPrayer(ctx)
			return err
		}},
		{Name: EveningPrayer, At: pick(t.EveningPrayer, def.EveningPrayer), Run: func(ctx context.Context) error {
			_, err := s.EveningPrayer(ctx)
			return err
		}},
		{Name: CacheCleanup, At: pick(t.CacheCleanup, def.CacheCleanup), Run: func(ctx context.Context) error {
			_, err := s.CacheCleanup(ctx)
			return err
		}},
		{Name: DailyStats, At: pick(t.DailyStats, def.DailyStats), Run: func(ctx context.Context) error {
			_, err := s.DailyStats(ctx)
			return err
		}},
	}
	if s.d.Images != nil {
		defs = append(defs, scheduler.JobDef{Name: ImageCleanup, At: pick(t.ImageCleanup, def.ImageCleanup), Run: func(ctx context.Context) error {
			_, err := s.ImageCleanup(ctx)
			return err
		}})
	}
	for _, d := range defs {
		if err := sched.Register(d); err != nil {
			return err
		}
	}
	return nil
}
