package config

// Config is the on-disk configuration. All durations are Go duration strings
// (e.g. "500ms", "10s", "2h").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Recipients RecipientsConfig `json:"recipients"`
	Scripture  ScriptureConfig  `json:"scripture"`
	OpenAI     OpenAIConfig     `json:"openai"`
	Content    ContentConfig    `json:"content"`
	Images     ImagesConfig     `json:"images"`
	Push       PushConfig       `json:"push"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Cache      CacheConfig      `json:"cache"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	API        APIConfig        `json:"api"`
	Pprof      PprofConfig      `json:"pprof"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // console | json
	File    LoggingFile `json:"file"`
	Alerts  LogAlerts   `json:"alerts"`
}

// LogAlerts forwards warnings and errors to a push topic.
//
//	alerts:
//	  enabled: true
//	  topic: ops-alerts
//	  min_level: error
//	  rate_per_sec: 1
type LogAlerts struct {
	Enabled    bool   `json:"enabled"`
	Topic      string `json:"topic,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the key-value backend used by the delivery cache,
// image dedup and persisted notifier dedup.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/soulverse.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory | sqlite | redis
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"` // redis; overridden by SOULVERSE_REDIS_URL
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RecipientsConfig points at the sqlite database holding recipients. When it
// equals storage.path the database is shared.
type RecipientsConfig struct {
	Path string `json:"path"`
}

type ScriptureConfig struct {
	BaseURL            string            `json:"base_url,omitempty"`
	SourceDir          string            `json:"source_dir,omitempty"`
	DefaultTranslation string            `json:"default_translation"`
	Translations       map[string]string `json:"translations,omitempty"`
	Timeout            string            `json:"timeout,omitempty"`
	FetchTimeout       string            `json:"fetch_timeout,omitempty"`
	MaxRetries         int               `json:"max_retries,omitempty"`
	RetryBase          string            `json:"retry_base,omitempty"`
	// Preload loads every translation at startup.
	Preload bool `json:"preload,omitempty"`
}

// OpenAIConfig is shared by the content generator and the image provider.
// An empty api_key disables both; content then comes from the fallback tables.
type OpenAIConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	ChatModel  string `json:"chat_model,omitempty"`
	ImageModel string `json:"image_model,omitempty"`
}

type ContentConfig struct {
	Timeout             string `json:"timeout,omitempty"`
	OccasionMinPriority int    `json:"occasion_min_priority,omitempty"`
}

type ImagesConfig struct {
	Enabled     bool   `json:"enabled"`
	Timeout     string `json:"timeout,omitempty"`
	DedupTTL    string `json:"dedup_ttl,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	// Dir keeps generated images on disk, served under PublicURL. Empty
	// reuses provider URLs for under an hour.
	Dir       string `json:"dir,omitempty"`
	PublicURL string `json:"public_url,omitempty"`
	// Retention is how long files in Dir are kept. Default 7d.
	Retention string `json:"retention,omitempty"`
}

type PushConfig struct {
	Transport string         `json:"transport"` // log | telegram | webhook
	Telegram  TelegramConfig `json:"telegram"`
	Webhook   WebhookConfig  `json:"webhook"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// Topics maps a topic to "chatID" or "chatID:threadID".
	Topics map[string]string `json:"topics,omitempty"`
}

type WebhookConfig struct {
	URL     string `json:"url,omitempty"`
	Secret  string `json:"secret,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// NotifierConfig controls rate limiting, retry and dedup of pushes.
// If the whole section is omitted the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

type DispatchConfig struct {
	BatchSize   int    `json:"batch_size,omitempty"`
	Cooldown    string `json:"cooldown,omitempty"`
	UnitTimeout string `json:"unit_timeout,omitempty"`
}

type CacheConfig struct {
	TTL string `json:"ttl,omitempty"`
}

// DefaultTimezone applies when scheduler.timezone is empty.
const DefaultTimezone = "Africa/Lome"

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone is the IANA zone used for job times and "today". Default
	// DefaultTimezone.
	Timezone       string   `json:"timezone,omitempty"`
	DefaultTimeout string   `json:"default_timeout,omitempty"`
	HistorySize    int      `json:"history_size,omitempty"`
	Times          JobTimes `json:"times"`
}

// JobTimes are HH:MM wall-clock times. Empty values use the defaults.
type JobTimes struct {
	DailyVerses   string `json:"daily_verses,omitempty"`
	MorningPrayer string `json:"morning_prayer,omitempty"`
	EveningPrayer string `json:"evening_prayer,omitempty"`
	CacheCleanup  string `json:"cache_cleanup,omitempty"`
	ImageCleanup  string `json:"image_cleanup,omitempty"`
	DailyStats    string `json:"daily_stats,omitempty"`
}

// APIConfig controls the admin HTTP server.
//
// Every /admin route requires the bearer token; validation rejects an enabled
// API without one.
type APIConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token        string `json:"token,omitempty"` // do not log
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// PprofConfig controls the profiling server. It is hot-reloadable.
//
// A non-loopback addr requires a token.
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Addr                 string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	Token                string `json:"token,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
}
