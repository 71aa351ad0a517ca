package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"token-price-alerts/internal/asset"
	"token-price-alerts/internal/logging"
)

// State drivers accepted by state.driver.
const (
	StateDriverFile     = "file"
	StateDriverPostgres = "postgres"
	StateDriverRedis    = "redis"
	StateDriverMemory   = "memory"
)

// Telegram transports accepted by alerting.telegram.transport.
const (
	TransportHTTP   = "http"
	TransportBotAPI = "botapi"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	State       StateConfig       `mapstructure:"state"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// WatchConfig lists the monitored assets in notification order.
type WatchConfig struct {
	Assets []string `mapstructure:"assets"`
}

// SchedulerConfig governs the alert and digest cadence.
type SchedulerConfig struct {
	AlertInterval   time.Duration `mapstructure:"alert_interval"`
	DigestInterval  time.Duration `mapstructure:"digest_interval"`
	DigestEnabled   bool          `mapstructure:"digest_enabled"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// DexScreenerConfig captures quote service connectivity.
type DexScreenerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StateConfig selects where last-known prices are persisted.
type StateConfig struct {
	Driver   string `mapstructure:"driver"`
	FilePath string `mapstructure:"file_path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig encapsulates redis connectivity.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Prelude  PreludeConfig  `mapstructure:"prelude"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// PreludeConfig controls the short messages sent ahead of every consolidated alert.
type PreludeConfig struct {
	Count int    `mapstructure:"count"`
	Text  string `mapstructure:"text"`
}

// TelegramConfig describes the Telegram destination.
type TelegramConfig struct {
	BotToken  string        `mapstructure:"bot_token"`
	ChatID    string        `mapstructure:"chat_id"`
	APIBase   string        `mapstructure:"api_base"`
	ParseMode string        `mapstructure:"parse_mode"`
	Transport string        `mapstructure:"transport"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the prometheus listener.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	Namespace string `mapstructure:"namespace"`
}

// legacyEnv maps keys to the unprefixed variable names accepted for older .env files.
var legacyEnv = map[string]string{
	"alerting.telegram.bot_token": "TELEGRAM_BOT_TOKEN",
	"alerting.telegram.chat_id":   "TELEGRAM_CHAT_ID",
	"watch.assets":                "TOKEN_ADDRESSES",
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("TOKENWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Watch.Assets = asset.ParseList(cfg.Watch.Assets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv populates the process environment from path without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		primary := "TOKENWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tokenwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("watch.assets", []string{})

	v.SetDefault("scheduler.alert_interval", "5m")
	v.SetDefault("scheduler.digest_interval", "60m")
	v.SetDefault("scheduler.digest_enabled", true)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0))

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com/latest/dex/tokens")
	v.SetDefault("dexscreener.request_timeout", "5s")
	v.SetDefault("dexscreener.user_agent", "tokenwatch/1.0")

	v.SetDefault("state.driver", StateDriverFile)
	v.SetDefault("state.file_path", "data/prices.json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "tokenwatch:prices")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.prelude.count", 0)
	v.SetDefault("alerting.prelude.text", "🚨")
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.parse_mode", "Markdown")
	v.SetDefault("alerting.telegram.transport", TransportHTTP)
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("metrics.namespace", "tokenwatch")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Watch.Assets) == 0 {
		return fmt.Errorf("watch.assets must list at least one asset")
	}
	for _, id := range c.Watch.Assets {
		if err := asset.Validate(id); err != nil {
			return fmt.Errorf("watch.assets: %w", err)
		}
	}
	if c.Scheduler.AlertInterval <= 0 {
		return fmt.Errorf("scheduler.alert_interval must be greater than zero")
	}
	if c.Scheduler.DigestEnabled && c.Scheduler.DigestInterval <= 0 {
		return fmt.Errorf("scheduler.digest_interval must be greater than zero")
	}
	if c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler.startup_delay cannot be negative")
	}

	switch c.State.Driver {
	case StateDriverFile:
		if c.State.FilePath == "" {
			return fmt.Errorf("state.file_path must be set for the file driver")
		}
	case StateDriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres driver")
		}
	case StateDriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set for the redis driver")
		}
	case StateDriverMemory:
	default:
		return fmt.Errorf("state.driver %q is not one of file, postgres, redis, memory", c.State.Driver)
	}

	if c.Scheduler.AdvisoryLockKey != 0 && c.State.Driver != StateDriverPostgres {
		return fmt.Errorf("scheduler.advisory_lock_key requires the postgres state driver")
	}

	if c.Alerting.Prelude.Count < 0 {
		return fmt.Errorf("alerting.prelude.count cannot be negative")
	}
	if c.Alerting.Prelude.Count > 0 && strings.TrimSpace(c.Alerting.Prelude.Text) == "" {
		return fmt.Errorf("alerting.prelude.text must be set when alerting.prelude.count > 0")
	}

	if c.Alerting.Enabled {
		tg := c.Alerting.Telegram
		if tg.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if tg.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
		if tg.Transport != TransportHTTP && tg.Transport != TransportBotAPI {
			return fmt.Errorf("alerting.telegram.transport %q is not one of http, botapi", tg.Transport)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must be set when metrics are enabled")
	}
	return nil
}
