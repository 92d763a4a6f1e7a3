// Package config provides configuration loading, validation, and defaults
// for the bot. Values come from defaults, an optional YAML file, a .env file
// and the process environment, in increasing order of precedence.
package config

import "time"

// Config defines the application configuration parameters for all components.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Media     MediaConfig     `mapstructure:"media"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// BotConfig holds command handling settings.
type BotConfig struct {
	Prefix          string        `mapstructure:"prefix" validate:"required"`
	OwnerNumber     string        `mapstructure:"owner_number"`
	MaxConcurrent   int64         `mapstructure:"max_concurrent" validate:"min=1,max=1000"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	BroadcastDelay  time.Duration `mapstructure:"broadcast_delay" validate:"min=0"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig selects the SQL backend. A postgres:// URL uses Postgres;
// anything else is a SQLite file path.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// WhatsAppConfig configures the session.
type WhatsAppConfig struct {
	SessionID  string `mapstructure:"session_id" validate:"required"`
	StorePath  string `mapstructure:"store_path" validate:"required"`
	DeviceName string `mapstructure:"device_name"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	RateLimit         float64       `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst" validate:"min=1"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// GeminiConfig configures the primary AI provider.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	ModelName         string  `mapstructure:"model_name" validate:"required"`
	MaxOutputTokens   int32   `mapstructure:"max_output_tokens" validate:"min=1"`
	Temperature       float32 `mapstructure:"temperature" validate:"min=0,max=2"`
	SystemInstruction string  `mapstructure:"system_instruction"`
}

// OpenAIConfig configures the fallback AI provider.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `mapstructure:"model" validate:"required"`
}

// MediaConfig limits downloads.
type MediaConfig struct {
	MaxFileSizeMB int `mapstructure:"max_file_size_mb" validate:"min=1"`
}

// AlertsConfig enables operator alerts through a Telegram bot.
type AlertsConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id" validate:"required_with=TelegramToken"`
}

// TaskConfig enables a scheduled task with a cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig holds scheduled task settings keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds user-visible notices.
type MessagesConfig struct {
	OwnerOnly     string `mapstructure:"owner_only"`
	GroupsOnly    string `mapstructure:"groups_only"`
	AdminOnly     string `mapstructure:"admin_only"`
	Cooldown      string `mapstructure:"cooldown"`
	Failure       string `mapstructure:"failure"`
	DatabaseError string `mapstructure:"database_error"`
	BotNotAdmin   string `mapstructure:"bot_not_admin"`
	NeedTarget    string `mapstructure:"need_target"`
	AIUnavailable string `mapstructure:"ai_unavailable"`
}

// MaxFileSizeBytes returns the media size limit in bytes.
func (m MediaConfig) MaxFileSizeBytes() int64 {
	return int64(m.MaxFileSizeMB) * 1024 * 1024
}
