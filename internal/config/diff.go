package config

import (
	"maps"
	"reflect"
	"strings"

	logx "soulverse/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe attrs for
// logging. Tokens, keys and secrets are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage || oldCfg.Recipients != newCfg.Recipients {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Scripture, newCfg.Scripture) {
		changed = append(changed, "scripture")
	}
	if oldCfg.OpenAI != newCfg.OpenAI || oldCfg.Content != newCfg.Content || oldCfg.Images != newCfg.Images {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.Bool("openai.key_set", strings.TrimSpace(newCfg.OpenAI.APIKey) != ""),
			logx.Bool("images.enabled", newCfg.Images.Enabled),
		)
	}
	if oldCfg.Push.Transport != newCfg.Push.Transport ||
		oldCfg.Push.Telegram.Token != newCfg.Push.Telegram.Token ||
		!maps.Equal(oldCfg.Push.Telegram.Topics, newCfg.Push.Telegram.Topics) ||
		oldCfg.Push.Webhook != newCfg.Push.Webhook {
		changed = append(changed, "push")
		attrs = append(attrs, logx.String("push.transport", newCfg.Push.Transport))
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.Int("notifier.retry_max", n.RetryMax),
			)
		}
	}
	if oldCfg.Dispatch != newCfg.Dispatch || oldCfg.Cache != newCfg.Cache {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.batch_size", newCfg.Dispatch.BatchSize),
			logx.String("dispatch.cooldown", newCfg.Dispatch.Cooldown),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		attrs = append(attrs, logx.Bool("api.enabled", newCfg.API.Enabled), logx.String("api.addr", newCfg.API.Addr))
	}
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs, logx.Bool("pprof.enabled", newCfg.Pprof.Enabled), logx.String("pprof.addr", newCfg.Pprof.Addr))
	}
	return changed, attrs
}

// RestartRequired reports the changed sections that only take effect after a
// restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "scripture", "content", "push", "api":
			out = append(out, s)
		}
	}
	return out
}
