// Package config loads runtime settings from defaults, an optional YAML
// file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"taskbot/internal/answer"
)

type Config struct {
	TelegramToken    string        `yaml:"telegram_bot_token"`
	TelegramEndpoint string        `yaml:"telegram_api_endpoint"`
	XAIToken         string        `yaml:"xai_api_token"`
	XAIBaseURL       string        `yaml:"xai_base_url"`
	XAIModel         string        `yaml:"xai_model"`
	OwnerID          int64         `yaml:"bot_owner_id"`
	DBPath           string        `yaml:"db_path"`
	AdminAddr        string        `yaml:"admin_addr"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxRetries       int           `yaml:"max_retries"`
	Workers          int           `yaml:"workers"`
	LogLevel         string        `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		TelegramEndpoint: tgbotapi.APIEndpoint,
		XAIBaseURL:       answer.DefaultBaseURL,
		XAIModel:         answer.DefaultModel,
		DBPath:           "data/tasks.db",
		AdminAddr:        ":8080",
		PollInterval:     60 * time.Second,
		RetryDelay:       5 * time.Second,
		MaxRetries:       5,
		Workers:          8,
		LogLevel:         "info",
	}
}

// Load reads .env if present, then path (skipped when empty), then the
// process environment, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.TelegramToken)
	str("TELEGRAM_API_ENDPOINT", &c.TelegramEndpoint)
	str("XAI_API_TOKEN", &c.XAIToken)
	str("XAI_BASE_URL", &c.XAIBaseURL)
	str("XAI_MODEL", &c.XAIModel)
	str("TASKBOT_DB_PATH", &c.DBPath)
	str("TASKBOT_ADMIN_ADDR", &c.AdminAddr)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("BOT_OWNER_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BOT_OWNER_ID: %w", err)
		}
		c.OwnerID = id
	}
	for key, dst := range map[string]*int{
		"TASKBOT_MAX_RETRIES": &c.MaxRetries,
		"TASKBOT_WORKERS":     &c.Workers,
	} {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	for key, dst := range map[string]*time.Duration{
		"TASKBOT_POLL_INTERVAL": &c.PollInterval,
		"TASKBOT_RETRY_DELAY":   &c.RetryDelay,
	} {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.XAIToken == "" {
		errs = append(errs, errors.New("XAI_API_TOKEN is required"))
	}
	if c.OwnerID == 0 {
		errs = append(errs, errors.New("BOT_OWNER_ID is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("TASKBOT_POLL_INTERVAL must be positive"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("TASKBOT_RETRY_DELAY must not be negative"))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, errors.New("TASKBOT_MAX_RETRIES must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("TASKBOT_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}
