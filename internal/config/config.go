// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServiceNowConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SyncConfig struct {
	Interval        time.Duration `yaml:"interval"`          // status poll cadence
	StaleAfter      time.Duration `yaml:"stale_after"`       // when a processing request counts as stuck
	BatchLimit      int           `yaml:"batch_limit"`       // max requests handled per worker tick
	Workers         int           `yaml:"workers"`           // submission pool size
	RateLimit       int           `yaml:"rate_limit"`        // remote calls per window
	RateLimitWindow time.Duration `yaml:"rate_limit_window"` // window for rate_limit
}

type WebConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	ServiceNow ServiceNowConfig `yaml:"servicenow"`
	Sync       SyncConfig       `yaml:"sync"`
	Web        WebConfig        `yaml:"web"`
	Notify     NotifyConfig     `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev && cfg.ServiceNow.BaseURL == "" {
		return nil, errors.New("servicenow.base_url is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills every zero-value tunable with its default.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 2 * time.Minute
	}
	if c.Sync.StaleAfter <= 0 {
		c.Sync.StaleAfter = 10 * time.Minute
	}
	if c.Sync.BatchLimit <= 0 {
		c.Sync.BatchLimit = 100
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 8
	}
	if c.Sync.RateLimit <= 0 {
		c.Sync.RateLimit = 60
	}
	if c.Sync.RateLimitWindow <= 0 {
		c.Sync.RateLimitWindow = time.Minute
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}
	if c.Web.TokenTTL <= 0 {
		c.Web.TokenTTL = 30 * time.Minute
	}
}
