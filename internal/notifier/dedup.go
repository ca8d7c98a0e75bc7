package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"time"

	"soulverse/internal/push"
	"soulverse/internal/storage"
	logx "soulverse/pkg/logx"
)

const persistTimeout = 250 * time.Millisecond

// dedupKey identifies a message to one target by its visible text.
func dedupKey(target string, msg push.Message) string {
	h := fnv.New64a()
	for _, part := range []string{target, msg.Title, msg.Body} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// suppressor remembers recently sent keys until their window ends. With
// persistence on, windows are mirrored to storage so they survive a restart.
// It is not safe for concurrent use; Service.dmu guards it.
type suppressor struct {
	until map[string]time.Time
	store storage.Store
	log   logx.Logger
}

func newSuppressor(store storage.Store, log logx.Logger) *suppressor {
	return &suppressor{until: map[string]time.Time{}, store: store, log: log}
}

func storeKey(key string) string { return "dedup:" + key }

// claim reports whether key may be sent now and, if so, opens its window.
// Must be called with Service.dmu held.
func (d *suppressor) claim(ctx context.Context, key string, cfg Config, now time.Time) bool {
	if until, ok := d.until[key]; ok && now.Before(until) {
		return false
	}
	persist := cfg.PersistDedup && d.store != nil
	if persist {
		cctx, cancel := context.WithTimeout(ctx, persistTimeout)
		_, seen, err := d.store.Get(cctx, storeKey(key))
		cancel()
		if err == nil && seen {
			d.until[key] = now.Add(cfg.DedupWindow)
			return false
		}
	}

	d.until[key] = now.Add(cfg.DedupWindow)
	d.evict(now, cfg.DedupMaxEntries)

	if persist {
		cctx, cancel := context.WithTimeout(ctx, persistTimeout)
		if err := d.store.Set(cctx, storeKey(key), []byte{1}, cfg.DedupWindow); err != nil {
			d.log.Debug("dedup persist failed", logx.Err(err))
		}
		cancel()
	}
	return true
}

// release drops key so a failed send can be retried at once.
// Must be called with Service.dmu held.
func (d *suppressor) release(ctx context.Context, key string, cfg Config) {
	delete(d.until, key)
	if cfg.PersistDedup && d.store != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		_, _ = d.store.Delete(cctx, storeKey(key))
		cancel()
	}
}

// evict removes expired windows, then the earliest-ending ones beyond limit.
// A limit of zero or less means unbounded.
func (d *suppressor) evict(now time.Time, limit int) {
	for k, u := range d.until {
		if !now.Before(u) {
			delete(d.until, k)
		}
	}
	over := len(d.until) - limit
	if limit <= 0 || over <= 0 {
		return
	}
	keys := make([]string, 0, len(d.until))
	for k := range d.until {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return d.until[a].Compare(d.until[b]) })
	for _, k := range keys[:over] {
		delete(d.until, k)
	}
}
