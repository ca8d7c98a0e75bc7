package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"soulverse/internal/storage"
	"soulverse/internal/task/scheduler"
	logx "soulverse/pkg/logx"
)

// Transports are the accepted push.transport values.
var Transports = []string{"log", "telegram", "webhook"}

// Validate checks everything that would otherwise fail at wiring time. It is
// used at startup and before a reloaded config is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if _, ok := logx.ParseLevel(cfg.Logging.Level); !ok {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		add(fmt.Errorf("logging.format: must be console or json, got %q", cfg.Logging.Format))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when logging.file.enabled=true"))
	}
	if a := cfg.Logging.Alerts; a.Enabled {
		if _, ok := logx.ParseLevel(a.MinLevel); !ok {
			add(fmt.Errorf("logging.alerts.min_level: unknown level %q", a.MinLevel))
		}
		if a.RatePerSec < 0 {
			add(errors.New("logging.alerts.rate_per_sec must be >= 0"))
		}
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch {
	case driver == "":
	case !slices.Contains(storage.Drivers(), driver):
		add(fmt.Errorf("storage.driver: unknown driver %q (want one of %s)", cfg.Storage.Driver, strings.Join(storage.Drivers(), ", ")))
	case driver == "sqlite" && strings.TrimSpace(cfg.Storage.Path) == "":
		add(errors.New("storage.path is required when storage.driver=sqlite"))
	case driver == "redis" && strings.TrimSpace(cfg.Storage.URL) == "":
		add(errors.New("storage.url is required when storage.driver=redis"))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if strings.TrimSpace(cfg.Recipients.Path) == "" {
		add(errors.New("recipients.path is required"))
	}

	dur("scripture.timeout", cfg.Scripture.Timeout)
	dur("scripture.fetch_timeout", cfg.Scripture.FetchTimeout)
	dur("scripture.retry_base", cfg.Scripture.RetryBase)
	if cfg.Scripture.MaxRetries < 0 {
		add(errors.New("scripture.max_retries must be >= 0"))
	}

	dur("content.timeout", cfg.Content.Timeout)
	if p := cfg.Content.OccasionMinPriority; p < 0 || p > 10 {
		add(fmt.Errorf("content.occasion_min_priority must be within 0..10, got %d", p))
	}
	dur("images.timeout", cfg.Images.Timeout)
	dur("images.dedup_ttl", cfg.Images.DedupTTL)
	dur("images.retention", cfg.Images.Retention)

	transport := strings.ToLower(strings.TrimSpace(cfg.Push.Transport))
	switch {
	case transport == "":
	case !slices.Contains(Transports, transport):
		add(fmt.Errorf("push.transport: unknown transport %q", cfg.Push.Transport))
	case transport == "telegram" && strings.TrimSpace(cfg.Push.Telegram.Token) == "":
		add(fmt.Errorf("push.telegram.token is required (or set %s)", EnvTelegramToken))
	case transport == "webhook" && strings.TrimSpace(cfg.Push.Webhook.URL) == "":
		add(errors.New("push.webhook.url is required when push.transport=webhook"))
	}
	dur("push.webhook.timeout", cfg.Push.Webhook.Timeout)

	if n := cfg.Notifier; n != nil {
		if n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
			add(errors.New("notifier: rate_per_sec, retry_max and dedup_max_entries must be >= 0"))
		}
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.send_timeout", n.SendTimeout)
		dur("notifier.dedup_window", n.DedupWindow)
	}

	if cfg.Dispatch.BatchSize < 0 {
		add(errors.New("dispatch.batch_size must be >= 0"))
	}
	dur("dispatch.cooldown", cfg.Dispatch.Cooldown)
	dur("dispatch.unit_timeout", cfg.Dispatch.UnitTimeout)
	dur("cache.ttl", cfg.Cache.TTL)

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	dur("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if cfg.Scheduler.HistorySize < 0 {
		add(errors.New("scheduler.history_size must be >= 0"))
	}
	t := cfg.Scheduler.Times
	for _, f := range []struct{ path, v string }{
		{"scheduler.times.daily_verses", t.DailyVerses},
		{"scheduler.times.morning_prayer", t.MorningPrayer},
		{"scheduler.times.evening_prayer", t.EveningPrayer},
		{"scheduler.times.cache_cleanup", t.CacheCleanup},
		{"scheduler.times.image_cleanup", t.ImageCleanup},
		{"scheduler.times.daily_stats", t.DailyStats},
	} {
		if strings.TrimSpace(f.v) == "" {
			continue
		}
		if err := scheduler.ValidateTimeOfDay(f.v); err != nil {
			add(fmt.Errorf("%s: %w", f.path, err))
		}
	}

	if cfg.API.Enabled && strings.TrimSpace(cfg.API.Token) == "" {
		add(fmt.Errorf("api.token is required when api.enabled=true (or set %s)", EnvAdminToken))
	}
	dur("api.read_timeout", cfg.API.ReadTimeout)
	dur("api.write_timeout", cfg.API.WriteTimeout)

	if pp := cfg.Pprof; pp.Enabled {
		if a := strings.TrimSpace(pp.Addr); a != "" {
			if _, _, err := net.SplitHostPort(a); err != nil {
				add(fmt.Errorf("pprof.addr: %w", err))
			}
		}
		if pp.MutexProfileFraction < 0 || pp.BlockProfileRate < 0 {
			add(errors.New("pprof: profile rates must be >= 0"))
		}
	}

	return errors.Join(errs...)
}
