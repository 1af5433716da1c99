package config

import "fmt"

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	switch c.Telegram.Mode {
	case TelegramModePolling:
	case TelegramModeWebhook:
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("telegram.webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("telegram.mode must be polling or webhook (got %q)", c.Telegram.Mode)
	}

	switch c.LLM.Provider {
	case LLMProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("llm.openai.api_key is required for provider openai")
		}
	case LLMProviderAnthropic:
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("llm.anthropic.api_key is required for provider anthropic")
		}
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic (got %q)", c.LLM.Provider)
	}

	if len(c.Mail.Recipients()) == 0 {
		return fmt.Errorf("mail.recipients must name at least one address")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be > 0 (got %d)", c.Queue.Workers)
	}
	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue.size must be > 0 (got %d)", c.Queue.Size)
	}
	if c.Redis.StagingTTL <= 0 {
		return fmt.Errorf("redis.staging_ttl must be > 0 (got %v)", c.Redis.StagingTTL)
	}

	return nil
}
