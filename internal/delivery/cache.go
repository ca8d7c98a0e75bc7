package delivery

import (
	"context"
	"encoding/json"
	"time"

	"soulverse/internal/content"
	"soulverse/internal/storage"
	logx "soulverse/pkg/logx"
)

const (
	DefaultTTL = 2 * time.Hour

	opTimeout = 2 * time.Second
)

// DayKey formats day as YYYY-MM-DD in its own location.
func DayKey(day time.Time) string { return day.Format(time.DateOnly) }

func recordKey(recipientID string, day time.Time) string {
	return "daily_verse:" + recipientID + ":" + DayKey(day)
}

func prayerKey(kind content.PrayerKind, day time.Time) string {
	return string(kind) + "_prayer:global:" + DayKey(day)
}

// Cache stores records in a storage.Store. Every operation is bounded by a
// short timeout and storage failures are logged, not returned.
type Cache struct {
	store storage.Store
	ttl   time.Duration
	log   logx.Logger
}

func NewCache(store storage.Store, ttl time.Duration, log logx.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{store: store, ttl: ttl, log: log}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) getJSON(ctx context.Context, key string, dst any) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", logx.String("key", key), logx.Err(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("cache entry corrupt", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

func (c *Cache) putJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode failed", logx.String("key", key), logx.Err(err))
		return false
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.log.Warn("cache write failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

func (c *Cache) delete(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ok, err := c.store.Delete(ctx, key)
	if err != nil {
		c.log.Warn("cache delete failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return ok
}

func (c *Cache) Get(ctx context.Context, recipientID string, day time.Time) (*Record, bool) {
	var rec Record
	if !c.getJSON(ctx, recordKey(recipientID, day), &rec) {
		return nil, false
	}
	return &rec, true
}

// GetComplete is Get, except a record without full verse text is treated as
// a miss and dropped so it gets rebuilt.
func (c *Cache) GetComplete(ctx context.Context, recipientID string, day time.Time) (*Record, bool) {
	rec, ok := c.Get(ctx, recipientID, day)
	if !ok {
		return nil, false
	}
	if !rec.HasFullVerse {
		c.Invalidate(ctx, recipientID, day)
		return nil, false
	}
	return rec, true
}

// Put stores rec. ttl <= 0 uses the cache default.
func (c *Cache) Put(ctx context.Context, recipientID string, day time.Time, rec Record, ttl time.Duration) bool {
	return c.putJSON(ctx, recordKey(recipientID, day), rec, ttl)
}

func (c *Cache) Invalidate(ctx context.Context, recipientID string, day time.Time) bool {
	return c.delete(ctx, recordKey(recipientID, day))
}

// InvalidateDay drops the given recipients' entries for day. The key layout
// puts the day last, so the recipient set is required.
func (c *Cache) InvalidateDay(ctx context.Context, day time.Time, recipientIDs []string) (int, error) {
	n := 0
	for _, id := range recipientIDs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if c.Invalidate(ctx, id, day) {
			n++
		}
	}
	return n, nil
}

func (c *Cache) GetPrayer(ctx context.Context, kind content.PrayerKind, day time.Time) (content.Prayer, bool) {
	var p content.Prayer
	ok := c.getJSON(ctx, prayerKey(kind, day), &p)
	return p, ok
}

// PutPrayer caches the global prayer for the rest of the day.
func (c *Cache) PutPrayer(ctx context.Context, day time.Time, p content.Prayer) bool {
	ttl := time.Until(endOfDay(day))
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return c.putJSON(ctx, prayerKey(p.Kind, day), p, ttl)
}

// PruneExpired asks the backing store to drop expired rows.
func (c *Cache) PruneExpired(ctx context.Context) (int, error) {
	return c.store.PruneExpired(ctx)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
