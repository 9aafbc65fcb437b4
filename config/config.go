// Package config loads engine configuration from an optional YAML file
// with environment-variable overrides. Env always wins, so deployments
// can ship one chartd.yaml and tweak per instance.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"chartengine/internal/model"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Listen addresses.
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Infrastructure.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`

	// Live tick feed.
	FeedURL string `yaml:"feed_url"`

	// Chart defaults.
	DefaultSymbol    string   `yaml:"default_symbol"`
	DefaultTimeframe string   `yaml:"default_timeframe"`
	Timeframes       []string `yaml:"timeframes"`

	// Broker credentials; trading stays disabled while these are empty.
	BrokerURL        string `yaml:"broker_url"`
	BrokerClientCode string `yaml:"broker_client_code"`
	BrokerPassword   string `yaml:"broker_password"`
	BrokerTOTPSecret string `yaml:"broker_totp_secret"`

	// Alert delivery channels; each stays disabled while empty.
	AlertWebhookURL  string `yaml:"alert_webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:         ":8080",
		MetricsAddr:      ":9090",
		RedisAddr:        "localhost:6379",
		SQLitePath:       "data/candles.db",
		FeedURL:          "ws://localhost:9001/ws",
		DefaultSymbol:    "BTCUSD",
		DefaultTimeframe: "1m",
		Timeframes:       []string{"1m", "5m", "15m", "1h", "4h", "1d"},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file is absent), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	overrideStr(&cfg.HTTPAddr, "HTTP_ADDR")
	overrideStr(&cfg.MetricsAddr, "METRICS_ADDR")
	overrideStr(&cfg.RedisAddr, "REDIS_ADDR")
	overrideStr(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideStr(&cfg.SQLitePath, "SQLITE_PATH")
	overrideStr(&cfg.FeedURL, "FEED_URL")
	overrideStr(&cfg.DefaultSymbol, "DEFAULT_SYMBOL")
	overrideStr(&cfg.DefaultTimeframe, "DEFAULT_TIMEFRAME")
	overrideStr(&cfg.BrokerURL, "BROKER_URL")
	overrideStr(&cfg.BrokerClientCode, "BROKER_CLIENT_CODE")
	overrideStr(&cfg.BrokerPassword, "BROKER_PASSWORD")
	overrideStr(&cfg.BrokerTOTPSecret, "BROKER_TOTP_SECRET")
	overrideStr(&cfg.AlertWebhookURL, "ALERT_WEBHOOK_URL")
	overrideStr(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	overrideStr(&cfg.TelegramChatID, "TELEGRAM_CHAT_ID")
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		cfg.Timeframes = splitList(v)
	}

	if _, err := cfg.ParseDefaultTimeframe(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDefaultTimeframe validates and parses DefaultTimeframe.
func (c *Config) ParseDefaultTimeframe() (model.Timeframe, error) {
	tf, err := model.ParseTimeframe(c.DefaultTimeframe)
	if err != nil {
		return 0, fmt.Errorf("config: default_timeframe: %w", err)
	}
	return tf, nil
}

// ParseTimeframes parses the configured timeframe list, logging and
// skipping invalid entries instead of failing startup.
func (c *Config) ParseTimeframes(log *slog.Logger) []model.Timeframe {
	if log == nil {
		log = slog.Default()
	}
	tfs := make([]model.Timeframe, 0, len(c.Timeframes))
	for _, s := range c.Timeframes {
		tf, err := model.ParseTimeframe(strings.TrimSpace(s))
		if err != nil {
			log.Warn("skipping invalid timeframe", "value", s)
			continue
		}
		tfs = append(tfs, tf)
	}
	if len(tfs) == 0 {
		tfs = append(tfs, model.Timeframe(time.Minute))
	}
	return tfs
}

// BrokerEnabled reports whether all broker credentials are present.
func (c *Config) BrokerEnabled() bool {
	return c.BrokerURL != "" && c.BrokerClientCode != "" &&
		c.BrokerPassword != "" && c.BrokerTOTPSecret != ""
}

func overrideStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
