package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config keeps runtime settings for the timeline bot.
type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN" yaml:"telegram_token"`
	// OwnerChatID restricts the bot to a single private chat. Zero accepts every private chat.
	OwnerChatID    int64  `env:"TELEGRAM_OWNER_ID" yaml:"telegram_owner_id" env-default:"0"`
	DatabaseURL    string `env:"DATABASE_URL" yaml:"database_url" env-default:"tasktimeline.db"`
	DataDir        string `env:"DATA_DIR" yaml:"data_dir" env-default:"data"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" yaml:"log_development" env-default:"false"`
}

// Load reads configuration from an optional file at CONFIG_PATH and then from environment variables.
func Load() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return cfg, nil
}
