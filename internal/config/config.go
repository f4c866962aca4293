// Package config loads the process configuration from the environment and,
// when CONFIG_PATH names one, a YAML file. Runtime tunables (delays, quotas,
// page size) are not here: admins change those through /set and they live
// in the config table.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvProd  = "prod"

	ModePolling = "polling"
	ModeWebhook = "webhook"

	BackendPlayground = "playground"
	BackendDocker     = "docker"
)

type Config struct {
	Env         string `yaml:"env"           env:"ENV"            env-default:"local"`
	LogLevel    string `yaml:"log_level"     env:"LOG_LEVEL"      env-default:"info"`
	BotToken    string `yaml:"bot_token"     env:"BOT_TOKEN"      env-required:"true"`
	DatabaseURL string `yaml:"database_url"  env:"DATABASE_URL"   env-default:"data/rpg.db"`
	SuperUserID string `yaml:"super_user_id" env:"SUPER_USER_ID"`
	WorkerLimit int    `yaml:"worker_limit"  env:"WORKER_LIMIT"   env-default:"32" validate:"min=1"`

	Telegram   Telegram   `yaml:"telegram"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Executor   Executor   `yaml:"executor"`
}

type Telegram struct {
	Mode           string  `yaml:"mode"            env:"TELEGRAM_MODE"   env-default:"polling" validate:"oneof=polling webhook"`
	WebhookURL     string  `yaml:"webhook_url"     env:"WEBHOOK_URL"                           validate:"omitempty,url"`
	WebhookSecret  string  `yaml:"webhook_secret"  env:"WEBHOOK_SECRET"`
	RPS            float64 `yaml:"rps"             env:"TELEGRAM_RPS"    env-default:"25"      validate:"gt=0"`
	Burst          int     `yaml:"burst"           env:"TELEGRAM_BURST"  env-default:"5"       validate:"min=1"`
	PollingTimeout int     `yaml:"polling_timeout" env:"POLLING_TIMEOUT" env-default:"60"      validate:"min=0"`
}

type HTTPServer struct {
	Address     string        `yaml:"address"      env:"HTTP_ADDR"         env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout"      env:"HTTP_TIMEOUT"      env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Executor struct {
	Backend           string        `yaml:"backend"            env:"EXECUTOR_BACKEND"   env-default:"playground" validate:"oneof=playground docker"`
	PlaygroundURL     string        `yaml:"playground_url"     env:"PLAYGROUND_URL"     env-default:"https://play.rust-lang.org" validate:"url"`
	PlaygroundTimeout time.Duration `yaml:"playground_timeout" env:"PLAYGROUND_TIMEOUT" env-default:"60s"`
}

// Load reads the configuration. With CONFIG_PATH set the file is read first
// and the environment overrides it.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Telegram.Mode == ModeWebhook && c.Telegram.WebhookURL == "" {
		return fmt.Errorf("config: WEBHOOK_URL is required in webhook mode")
	}
	return nil
}

// Level maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Usage describes every environment variable, for -h.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
