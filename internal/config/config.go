// Package config loads gateway settings from defaults, an optional YAML file
// and OVERSIGHT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type HTTPConfig struct {
	Addr string     `mapstructure:"addr"`
	Rate RateConfig `mapstructure:"rate"`
}

type RateConfig struct {
	Burst     int     `mapstructure:"burst"`
	PerSecond float64 `mapstructure:"per_second"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the ledger backend; an empty DSN keeps it in memory.
type StoreConfig struct {
	PgDSN string `mapstructure:"pg_dsn"`
}

type ApprovalsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Retries  int            `mapstructure:"retries"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// Enabled reports whether both credentials are present. Missing credentials
// select the no-op notifier; they are not an error.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.Token) != "" && t.ChatID != 0
}

type RulesConfig struct {
	File string `mapstructure:"file"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: ":8080",
			Rate: RateConfig{Burst: 50, PerSecond: 20},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Approvals: ApprovalsConfig{
			SweepInterval: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
			Retries: 3,
		},
	}
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.Rate.Burst <= 0 || c.HTTP.Rate.PerSecond <= 0 {
		errs = append(errs, errors.New("http.rate burst and per_second must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Approvals.TTL < 0 {
		errs = append(errs, errors.New("approvals.ttl must not be negative"))
	}
	if c.Approvals.TTL > 0 && c.Approvals.SweepInterval <= 0 {
		errs = append(errs, errors.New("approvals.sweep_interval must be positive when ttl is set"))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("notify.timeout must be positive"))
	}
	if c.Notify.Retries < 0 {
		errs = append(errs, errors.New("notify.retries must not be negative"))
	}
	return errors.Join(errs...)
}
