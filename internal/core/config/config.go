package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/beacon-lab/project-beacon/internal/scheduler"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config plus resolved scheduled
// jobs.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Router    RouterConfig    `koanf:"router"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Resend    ResendConfig    `koanf:"resend"`
	Notion    NotionConfig    `koanf:"notion"`

	// Jobs is populated by Load after parsing the scheduler job files.
	Jobs []scheduler.Job `koanf:"-"`
}

type ServerConfig struct {
	Port          int      `koanf:"port"`
	Host          string   `koanf:"host"`
	MaxBodySizeMB int      `koanf:"max_body_size_mb"`
	Mode          string   `koanf:"mode"` // debug | release
	CORSOrigins   []string `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RouterConfig struct {
	MaxRetries      int     `koanf:"max_retries"`
	InitialInterval string  `koanf:"initial_interval"`
	MaxInterval     string  `koanf:"max_interval"`
	Multiplier      float64 `koanf:"multiplier"`
	CloseTimeout    string  `koanf:"close_timeout"`
}

type SchedulerConfig struct {
	Enabled   bool   `koanf:"enabled"`
	ConfigDir string `koanf:"config_dir"`
}

type WebhookConfig struct {
	Secret string `koanf:"secret"`
}

type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
	ChatID   string `koanf:"chat_id"`
}

type ResendConfig struct {
	APIKey      string `koanf:"api_key"`
	AudienceID  string `koanf:"audience_id"`
	ContactFrom string `koanf:"contact_from"`
	ContactTo   string `koanf:"contact_to"`
}

type NotionConfig struct {
	Token      string `koanf:"token"`
	DatabaseID string `koanf:"database_id"`
}

func (c RouterConfig) durations() (initial, max, closeTimeout time.Duration, err error) {
	if initial, err = time.ParseDuration(c.InitialInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid router.initial_interval %q: %w", c.InitialInterval, err)
	}
	if max, err = time.ParseDuration(c.MaxInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid router.max_interval %q: %w", c.MaxInterval, err)
	}
	if closeTimeout, err = time.ParseDuration(c.CloseTimeout); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid router.close_timeout %q: %w", c.CloseTimeout, err)
	}
	return initial, max, closeTimeout, nil
}

// InitialIntervalDuration returns the parsed retry backoff start. Validate
// has already checked it.
func (c RouterConfig) InitialIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialInterval)
	return d
}

// MaxIntervalDuration returns the parsed retry backoff cap.
func (c RouterConfig) MaxIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxInterval)
	return d
}

// CloseTimeoutDuration returns the parsed router close timeout.
func (c RouterConfig) CloseTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CloseTimeout)
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Router.MaxRetries < 0 {
		return fmt.Errorf("router.max_retries must be >= 0")
	}
	if c.Router.Multiplier < 1 {
		return fmt.Errorf("router.multiplier must be >= 1")
	}
	if _, _, _, err := c.Router.durations(); err != nil {
		return err
	}

	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.ConfigDir) == "" {
		return fmt.Errorf("scheduler.config_dir is required when the scheduler is enabled")
	}

	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("webhook.secret is required")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates
// the scheduled job definitions.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"server.cors_origins":     []string{},
		"database.type":           "postgres",
		"database.dsn":            "",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"redis.addr":              "localhost:6379",
		"redis.password":          "",
		"redis.db":                0,
		"router.max_retries":      5,
		"router.initial_interval": "1s",
		"router.max_interval":     "1m",
		"router.multiplier":       2.0,
		"router.close_timeout":    "30s",
		"scheduler.enabled":       true,
		"scheduler.config_dir":    "./config/jobs",
		"webhook.secret":          "",
		"telegram.bot_token":      "",
		"telegram.chat_id":        "",
		"resend.api_key":          "",
		"resend.audience_id":      "",
		"resend.contact_from":     "",
		"resend.contact_to":       "",
		"notion.token":            "",
		"notion.database_id":      "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("BEACON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BEACON_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Scheduler.Enabled {
		jobs, err := scheduler.LoadJobs(cfg.Scheduler.ConfigDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load scheduled jobs: %w", err)
		}
		cfg.Jobs = jobs
	}

	return &cfg, nil
}
