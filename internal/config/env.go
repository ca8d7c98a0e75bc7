package config

import "strings"

// Environment variables that override secrets from the file.
const (
	EnvOpenAIAPIKey  = "SOULVERSE_OPENAI_API_KEY"
	EnvTelegramToken = "SOULVERSE_TELEGRAM_TOKEN"
	EnvAdminToken    = "SOULVERSE_ADMIN_TOKEN"
	EnvWebhookSecret = "SOULVERSE_WEBHOOK_SECRET"
	EnvRedisURL      = "SOULVERSE_REDIS_URL"
)

// ApplyEnv overrides secrets with non-empty environment values.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.OpenAI.APIKey, EnvOpenAIAPIKey)
	set(&cfg.Push.Telegram.Token, EnvTelegramToken)
	set(&cfg.API.Token, EnvAdminToken)
	set(&cfg.Push.Webhook.Secret, EnvWebhookSecret)
	set(&cfg.Storage.URL, EnvRedisURL)
}
