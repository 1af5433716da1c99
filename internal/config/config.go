package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root application configuration. It is built once at startup
// and passed by pointer; nothing mutates it after Load returns.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
	Audio    AudioConfig    `yaml:"audio"`
	STT      STTConfig      `yaml:"stt"`
	LLM      LLMConfig      `yaml:"llm"`
	Mail     MailConfig     `yaml:"mail"`
	Queue    QueueConfig    `yaml:"queue"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Log      LogConfig      `yaml:"log"`
	Health   HealthConfig   `yaml:"health"`
}

// Telegram update delivery modes.
const (
	TelegramModePolling = "polling"
	TelegramModeWebhook = "webhook"
)

// TelegramConfig holds bot transport settings.
type TelegramConfig struct {
	Token           string        `yaml:"token"            env:"TELEGRAM_TOKEN"            env-required:"true"`
	Mode            string        `yaml:"mode"             env:"TELEGRAM_MODE"             env-default:"polling"`
	WebhookURL      string        `yaml:"webhook_url"      env:"TELEGRAM_WEBHOOK_URL"`
	WebhookAddr     string        `yaml:"webhook_addr"     env:"TELEGRAM_WEBHOOK_ADDR"     env-default:":8443"`
	UpdateTimeout   int           `yaml:"update_timeout"   env:"TELEGRAM_UPDATE_TIMEOUT"   env-default:"30"`
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"TELEGRAM_DOWNLOAD_TIMEOUT" env-default:"1m"`
	Debug           bool          `yaml:"debug"            env:"TELEGRAM_DEBUG"            env-default:"false"`
}

// RedisConfig holds staging store settings.
type RedisConfig struct {
	Addr       string        `yaml:"addr"        env:"REDIS_ADDR"        env-default:"localhost:6379"`
	Password   string        `yaml:"password"    env:"REDIS_PASSWORD"`
	DB         int           `yaml:"db"          env:"REDIS_DB"          env-default:"0"`
	StagingTTL time.Duration `yaml:"staging_ttl" env:"REDIS_STAGING_TTL" env-default:"6h"`
}

// AudioConfig holds transcoder settings.
type AudioConfig struct {
	WorkDir     string `yaml:"work_dir"     env:"AUDIO_WORK_DIR"     env-default:""`
	FFmpegPath  string `yaml:"ffmpeg_path"  env:"AUDIO_FFMPEG_PATH"  env-default:"ffmpeg"`
	FFprobePath string `yaml:"ffprobe_path" env:"AUDIO_FFPROBE_PATH" env-default:"ffprobe"`
	Bitrate     string `yaml:"bitrate"      env:"AUDIO_BITRATE"      env-default:"16k"`
}

// ResolveWorkDir returns the scratch directory for audio files, falling back
// to a fixed subdirectory of the system temp dir when none is configured.
func (c AudioConfig) ResolveWorkDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return filepath.Join(os.TempDir(), "sessionscribe")
}

// STTConfig holds speech-to-text settings.
type STTConfig struct {
	BaseURL  string        `yaml:"base_url" env:"STT_BASE_URL" env-default:"https://api.openai.com/v1"`
	APIKey   string        `yaml:"api_key"  env:"STT_API_KEY"  env-required:"true"`
	Model    string        `yaml:"model"    env:"STT_MODEL"    env-default:"whisper-1"`
	Language string        `yaml:"language" env:"STT_LANGUAGE" env-default:"en"`
	Timeout  time.Duration `yaml:"timeout"  env:"STT_TIMEOUT"  env-default:"2m"`
}

// Note-generation backends.
const (
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// LLMConfig holds note-generation settings. Provider selects the backend.
type LLMConfig struct {
	Provider  string          `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig holds chat-completions backend settings.
type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"     env:"OPENAI_API_KEY"`
	BaseURL     string        `yaml:"base_url"    env:"OPENAI_BASE_URL"    env-default:"https://api.openai.com/v1"`
	Model       string        `yaml:"model"       env:"OPENAI_MODEL"       env-default:"gpt-4o-mini"`
	Temperature float64       `yaml:"temperature" env:"OPENAI_TEMPERATURE" env-default:"0.2"`
	Timeout     time.Duration `yaml:"timeout"     env:"OPENAI_TIMEOUT"     env-default:"2m"`
}

// AnthropicConfig holds Messages API backend settings.
type AnthropicConfig struct {
	APIKey    string        `yaml:"api_key"    env:"ANTHROPIC_API_KEY"`
	Model     string        `yaml:"model"      env:"ANTHROPIC_MODEL"      env-default:"claude-sonnet-4-20250514"`
	MaxTokens int           `yaml:"max_tokens" env:"ANTHROPIC_MAX_TOKENS" env-default:"2048"`
	Timeout   time.Duration `yaml:"timeout"    env:"ANTHROPIC_TIMEOUT"    env-default:"2m"`
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Host          string `yaml:"host"       env:"MAIL_HOST"       env-required:"true"`
	Port          int    `yaml:"port"       env:"MAIL_PORT"       env-default:"587"`
	Username      string `yaml:"username"   env:"MAIL_USERNAME"`
	Password      string `yaml:"password"   env:"MAIL_PASSWORD"`
	From          string `yaml:"from"       env:"MAIL_FROM"       env-required:"true"`
	RecipientsRaw string `yaml:"recipients" env:"MAIL_RECIPIENTS" env-required:"true"`
}

// QueueConfig holds worker-pool settings.
type QueueConfig struct {
	Workers      int           `yaml:"workers"       env:"QUEUE_WORKERS"       env-default:"6"`
	Size         int           `yaml:"size"          env:"QUEUE_SIZE"          env-default:"512"`
	StageTimeout time.Duration `yaml:"stage_timeout" env:"QUEUE_STAGE_TIMEOUT" env-default:"3m"`
}

// LedgerConfig holds job ledger settings.
type LedgerConfig struct {
	Path string `yaml:"path" env:"LEDGER_PATH" env-default:"jobs.db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// HealthConfig holds the gRPC health endpoint settings.
type HealthConfig struct {
	Addr string `yaml:"addr" env:"HEALTH_ADDR" env-default:":8080"`
}

// Recipients returns the parsed recipient list. Entries are comma-separated
// and trimmed; empty entries are dropped.
func (c MailConfig) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.RecipientsRaw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
