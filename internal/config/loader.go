package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "OVERSIGHT"

// keys lists every setting so each can be overridden from the environment.
var keys = []string{
	"http.addr",
	"http.rate.burst",
	"http.rate.per_second",
	"log.level",
	"log.format",
	"store.pg_dsn",
	"approvals.ttl",
	"approvals.sweep_interval",
	"notify.telegram.token",
	"notify.telegram.chat_id",
	"notify.timeout",
	"notify.retries",
	"rules.file",
	"auth.secret",
	"tracing.enabled",
}

type Loader struct {
	v          *viper.Viper
	configFile string
}

func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile makes the file mandatory; without it ./oversight.yaml is
// read when present.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = strings.TrimSpace(path)
}

// Load resolves defaults < config file < environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	v := l.v

	v.SetConfigName("oversight")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.setDefaults(cfg)
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	v.AutomaticEnv()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.rate.burst", cfg.HTTP.Rate.Burst)
	v.SetDefault("http.rate.per_second", cfg.HTTP.Rate.PerSecond)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("store.pg_dsn", cfg.Store.PgDSN)
	v.SetDefault("approvals.ttl", cfg.Approvals.TTL)
	v.SetDefault("approvals.sweep_interval", cfg.Approvals.SweepInterval)
	v.SetDefault("notify.telegram.token", cfg.Notify.Telegram.Token)
	v.SetDefault("notify.telegram.chat_id", cfg.Notify.Telegram.ChatID)
	v.SetDefault("notify.timeout", cfg.Notify.Timeout)
	v.SetDefault("notify.retries", cfg.Notify.Retries)
	v.SetDefault("rules.file", cfg.Rules.File)
	v.SetDefault("auth.secret", cfg.Auth.Secret)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
}

// Load is shorthand for NewLoader with an optional file.
func Load(path string) (*Config, error) {
	l := NewLoader()
	l.SetConfigFile(path)
	return l.Load()
}
