package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every error returned by LoadConfig.
var ErrConfiguration = errors.New("configuration error")

// Task names understood by the scheduler.
const (
	TaskCooldownSweep    = "cooldown_sweep"
	TaskSQLMaintenance   = "sql_maintenance"
	TaskChatHistoryPrune = "chat_history_prune"
	TaskSessionBackup    = "session_backup"
)

// envBindings maps config keys to the plain environment names operators
// already use. Every key can also be set as WABOT_<KEY>.
var envBindings = map[string][]string{
	"bot.prefix":              {"PREFIX"},
	"bot.owner_number":        {"MY_NUMBER", "OWNER_NUMBER"},
	"media.max_file_size_mb":  {"MAX_FILE_SIZE_MB"},
	"http.port":               {"PORT"},
	"database.url":            {"DATABASE_URL", "MONGODB_KEY"},
	"whatsapp.session_id":     {"SESSION_ID"},
	"whatsapp.store_path":     {"AUTH_DIR"},
	"gemini.api_key":          {"GEMINI_API_KEY"},
	"openai.api_key":          {"OPENAI_API_KEY"},
	"logger.level":            {"LOG_LEVEL"},
	"logger.json":             {"LOG_JSON"},
	"alerts.telegram_token":   {"TELEGRAM_ALERT_TOKEN"},
	"alerts.telegram_chat_id": {"TELEGRAM_ALERT_CHAT_ID"},
}

// LoadConfig reads configuration from defaults, the YAML file at path (if it
// exists), a .env file in the working directory (if it exists) and the
// environment, then validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read .env: %w", ErrConfiguration, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("%w: failed to bind %s: %w", ErrConfiguration, key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read %s: %w", ErrConfiguration, path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &cfg, nil
}

// Validate checks struct constraints and scheduler task entries.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}
	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && strings.TrimSpace(task.Schedule) == "" {
			return fmt.Errorf("scheduler task %q is enabled without a schedule", name)
		}
	}
	if lower := strings.ToLower(c.Database.URL); strings.HasPrefix(lower, "mongodb://") || strings.HasPrefix(lower, "mongodb+srv://") {
		return errors.New("database url: MongoDB is not supported, use a postgres:// URL or a SQLite path")
	}
	// The cooldown notice is rendered with the remaining seconds and the
	// command name, in that order.
	if c.Messages.Cooldown != "" && strings.Contains(fmt.Sprintf(c.Messages.Cooldown, 1, "-cmd"), "%!") {
		return fmt.Errorf("messages.cooldown %q must take exactly one %%d then one %%s", c.Messages.Cooldown)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.prefix", "-")
	v.SetDefault("bot.owner_number", "")
	v.SetDefault("bot.max_concurrent", 32)
	v.SetDefault("bot.handler_timeout", "2m")
	v.SetDefault("bot.shutdown_timeout", "15s")
	v.SetDefault("bot.broadcast_delay", "500ms")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.url", "./data/bot.db")

	v.SetDefault("whatsapp.session_id", "main")
	v.SetDefault("whatsapp.store_path", "./data/whatsapp.db")
	v.SetDefault("whatsapp.device_name", "wabot")

	v.SetDefault("http.port", 8000)
	// 100 requests per 15 minutes.
	v.SetDefault("http.rate_limit", 100.0/(15*60))
	v.SetDefault("http.rate_limit_burst", 100)
	v.SetDefault("http.read_header_timeout", "10s")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_output_tokens", 500)
	v.SetDefault("gemini.temperature", 0.9)
	v.SetDefault("gemini.system_instruction", "You are a friendly WhatsApp group assistant. Keep answers short and conversational.")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-3.5-turbo")

	v.SetDefault("media.max_file_size_mb", 50)

	v.SetDefault("alerts.telegram_token", "")
	v.SetDefault("alerts.telegram_chat_id", 0)

	v.SetDefault("scheduler.tasks", map[string]any{
		TaskCooldownSweep:    map[string]any{"enabled": true, "schedule": "*/10 * * * *"},
		TaskSQLMaintenance:   map[string]any{"enabled": true, "schedule": "0 4 * * 0"},
		TaskChatHistoryPrune: map[string]any{"enabled": true, "schedule": "30 3 * * *"},
		TaskSessionBackup:    map[string]any{"enabled": true, "schedule": "0 * * * *"},
	})

	v.SetDefault("messages.owner_only", "⛔ This command is for the bot owner only.")
	v.SetDefault("messages.groups_only", "⛔ This command is for groups only.")
	v.SetDefault("messages.admin_only", "⛔ This command is for group admins only.")
	v.SetDefault("messages.cooldown", "⏳ Please wait %ds before using %s again.")
	v.SetDefault("messages.failure", "❌ An error occurred while executing this command.")
	v.SetDefault("messages.database_error", "❌ Database error. Please try again later.")
	v.SetDefault("messages.bot_not_admin", "❌ I need to be an admin to perform this action.")
	v.SetDefault("messages.need_target", "❌ Please tag a user or reply to their message.")
	v.SetDefault("messages.ai_unavailable", "❌ AI services are currently unavailable.")
}
