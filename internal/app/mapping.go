package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"soulverse/internal/api"
	"soulverse/internal/config"
	"soulverse/internal/content"
	"soulverse/internal/delivery"
	"soulverse/internal/dispatch"
	"soulverse/internal/imagegen"
	"soulverse/internal/jobs"
	"soulverse/internal/notifier"
	"soulverse/internal/observability/pprof"
	"soulverse/internal/push"
	"soulverse/internal/scripture"
	"soulverse/internal/storage"
	"soulverse/internal/task/scheduler"
	logx "soulverse/pkg/logx"
)

const (
	defaultDedupWindow = time.Hour
	defaultAlertTopic  = "alerts"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    cfg.Logging.Alerts.Enabled,
			MinLevel:   cfg.Logging.Alerts.MinLevel,
			RatePerSec: cfg.Logging.Alerts.RatePerSec,
			// Failures on the delivery path must not alert through it.
			SkipComponents: []string{"notifier", "push"},
		},
	}
}

func alertTopic(cfg *config.Config) string {
	if t := strings.TrimSpace(cfg.Logging.Alerts.Topic); t != "" {
		return t
	}
	return defaultAlertTopic
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "memory"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		URL:         strings.TrimSpace(sc.URL),
		BusyTimeout: busy,
	}, nil
}

func mapScriptureOptions(cfg *config.Config) (scripture.Options, error) {
	sc := cfg.Scripture
	timeout, err := config.ParseDurationField("scripture.timeout", sc.Timeout)
	if err != nil {
		return scripture.Options{}, err
	}
	fetch, err := config.ParseDurationField("scripture.fetch_timeout", sc.FetchTimeout)
	if err != nil {
		return scripture.Options{}, err
	}
	base, err := config.ParseDurationField("scripture.retry_base", sc.RetryBase)
	if err != nil {
		return scripture.Options{}, err
	}
	return scripture.Options{
		BaseURL:      strings.TrimSpace(sc.BaseURL),
		SourceDir:    strings.TrimSpace(sc.SourceDir),
		Translations: sc.Translations,
		Timeout:      timeout,
		FetchTimeout: fetch,
		MaxRetries:   uint64(max(sc.MaxRetries, 0)),
		RetryBase:    base,
	}, nil
}

func defaultTranslation(cfg *config.Config) string {
	if t := strings.TrimSpace(cfg.Scripture.DefaultTranslation); t != "" {
		return t
	}
	return "FreBBB"
}

func mapContentOptions(cfg *config.Config) (content.Options, error) {
	timeout, err := config.ParseDurationField("content.timeout", cfg.Content.Timeout)
	if err != nil {
		return content.Options{}, err
	}
	return content.Options{Timeout: timeout, OccasionMinPriority: cfg.Content.OccasionMinPriority}, nil
}

func mapImageOptions(cfg *config.Config) (imagegen.Options, error) {
	def := imagegen.DefaultOptions()
	timeout, err := config.ParseDurationOrDefault("images.timeout", cfg.Images.Timeout, def.Timeout)
	if err != nil {
		return imagegen.Options{}, err
	}
	ttl, err := config.ParseDurationOrDefault("images.dedup_ttl", cfg.Images.DedupTTL, def.DedupTTL)
	if err != nil {
		return imagegen.Options{}, err
	}
	placeholder := def.Placeholder
	if p := strings.TrimSpace(cfg.Images.Placeholder); p != "" {
		placeholder = p
	}
	return imagegen.Options{
		Timeout:     timeout,
		DedupTTL:    ttl,
		Placeholder: placeholder,
		Dir:         strings.TrimSpace(cfg.Images.Dir),
		PublicURL:   strings.TrimSpace(cfg.Images.PublicURL),
		HTTPClient:  &http.Client{Timeout: timeout},
	}, nil
}

// imagesPath is the local route for the images dir. A public URL on another
// host still serves from the default path.
func imagesPath(publicURL string) string {
	if strings.HasPrefix(publicURL, "/") {
		return publicURL
	}
	return imagegen.DefaultPublicURL
}

func mapImageRetention(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("images.retention", cfg.Images.Retention, jobs.DefaultImageRetention)
}

// mapNotifierConfig defaults to an enabled notifier when the section is
// omitted.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true, RetryMax: 3, DedupWindow: defaultDedupWindow}, nil
	}
	out := notifier.Config{
		Enabled:         nc.Enabled,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", nc.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", nc.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	if strings.TrimSpace(nc.DedupWindow) == "" {
		out.DedupWindow = defaultDedupWindow
	} else if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", nc.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	def := dispatch.DefaultConfig()
	out := dispatch.Config{BatchSize: cfg.Dispatch.BatchSize}
	if out.BatchSize <= 0 {
		out.BatchSize = def.BatchSize
	}
	var err error
	if out.Cooldown, err = config.ParseDurationOrDefault("dispatch.cooldown", cfg.Dispatch.Cooldown, def.Cooldown); err != nil {
		return dispatch.Config{}, err
	}
	if out.UnitTimeout, err = config.ParseDurationOrDefault("dispatch.unit_timeout", cfg.Dispatch.UnitTimeout, def.UnitTimeout); err != nil {
		return dispatch.Config{}, err
	}
	return out, nil
}

func mapCacheTTL(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("cache.ttl", cfg.Cache.TTL, delivery.DefaultTTL)
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Timezone: timezone(cfg), DefaultTimeout: timeout}, nil
}

func mapJobTimes(cfg *config.Config) jobs.Times {
	t := cfg.Scheduler.Times
	return jobs.Times{
		DailyVerses:   strings.TrimSpace(t.DailyVerses),
		MorningPrayer: strings.TrimSpace(t.MorningPrayer),
		EveningPrayer: strings.TrimSpace(t.EveningPrayer),
		CacheCleanup:  strings.TrimSpace(t.CacheCleanup),
		ImageCleanup:  strings.TrimSpace(t.ImageCleanup),
		DailyStats:    strings.TrimSpace(t.DailyStats),
	}
}

func mapServerConfig(cfg *config.Config) (api.ServerConfig, error) {
	read, err := config.ParseDurationField("api.read_timeout", cfg.API.ReadTimeout)
	if err != nil {
		return api.ServerConfig{}, err
	}
	write, err := config.ParseDurationField("api.write_timeout", cfg.API.WriteTimeout)
	if err != nil {
		return api.ServerConfig{}, err
	}
	return api.ServerConfig{Addr: strings.TrimSpace(cfg.API.Addr), ReadTimeout: read, WriteTimeout: write}, nil
}

func mapPprof(cfg *config.Config) pprof.Config {
	p := cfg.Pprof
	return pprof.Config{
		Enabled:              p.Enabled,
		Addr:                 strings.TrimSpace(p.Addr),
		Token:                strings.TrimSpace(p.Token),
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
	}
}

func timezone(cfg *config.Config) string {
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		return tz
	}
	return config.DefaultTimezone
}

// loadLocation returns the scheduler zone, Local when invalid.
func loadLocation(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(timezone(cfg))
	if err != nil {
		return time.Local
	}
	return loc
}

// runtimeConfig is the hot-reloadable part of the config.
type runtimeConfig struct {
	logging   logx.Config
	notifier  notifier.Config
	dispatch  dispatch.Config
	scheduler scheduler.Config
	times     jobs.Times
	pprof     pprof.Config
}

func mapRuntime(cfg *config.Config) (runtimeConfig, error) {
	var (
		rc  runtimeConfig
		err error
	)
	rc.logging = mapLogging(cfg)
	if rc.notifier, err = mapNotifierConfig(cfg); err != nil {
		return rc, err
	}
	if rc.dispatch, err = mapDispatchConfig(cfg); err != nil {
		return rc, err
	}
	if rc.scheduler, err = mapSchedulerConfig(cfg); err != nil {
		return rc, err
	}
	rc.times = mapJobTimes(cfg)
	rc.pprof = mapPprof(cfg)
	return rc, nil
}

func buildTransport(cfg *config.Config, client *http.Client, log logx.Logger) (push.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Push.Transport)) {
	case "", "log":
		return push.NewLogTransport(log), nil
	case "telegram":
		tr, err := push.NewTelegramTransport(push.TelegramConfig{
			Token:  cfg.Push.Telegram.Token,
			Topics: cfg.Push.Telegram.Topics,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram transport: %w", err)
		}
		return tr, nil
	case "webhook":
		timeout, err := config.ParseDurationField("push.webhook.timeout", cfg.Push.Webhook.Timeout)
		if err != nil {
			return nil, err
		}
		tr, err := push.NewWebhookTransport(push.WebhookConfig{
			URL:     cfg.Push.Webhook.URL,
			Secret:  cfg.Push.Webhook.Secret,
			Timeout: timeout,
		}, client)
		if err != nil {
			return nil, fmt.Errorf("webhook transport: %w", err)
		}
		return tr, nil
	default:
		return nil, fmt.Errorf("unknown push.transport: %s", cfg.Push.Transport)
	}
}
