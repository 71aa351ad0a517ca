package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no stray config.yaml or .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TOKENWATCH_WATCH_ASSETS", "tokenA, tokenB")
	t.Setenv("TOKENWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TOKENWATCH_ALERTING_TELEGRAM_CHAT_ID", "-1001")
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	validEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"tokenA", "tokenB"}, cfg.Watch.Assets)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.AlertInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.DigestInterval)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, 5*time.Second, cfg.DexScreener.RequestTimeout)
	assert.Equal(t, StateDriverFile, cfg.State.Driver)
	assert.Equal(t, "data/prices.json", cfg.State.FilePath)
	assert.Equal(t, "Markdown", cfg.Alerting.Telegram.ParseMode)
	assert.Equal(t, TransportHTTP, cfg.Alerting.Telegram.Transport)
	assert.Equal(t, 0, cfg.Alerting.Prelude.Count)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadLegacyDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TOKEN_ADDRESSES"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Cleanup(func() {
		for _, key := range []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TOKEN_ADDRESSES"} {
			_ = os.Unsetenv(key)
		}
	})

	dotenv := strings.Join([]string{
		"TELEGRAM_BOT_TOKEN=999:legacy",
		"TELEGRAM_CHAT_ID=42",
		"TOKEN_ADDRESSES=tokenA,tokenB,tokenA",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "999:legacy", cfg.Alerting.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Alerting.Telegram.ChatID)
	assert.Equal(t, []string{"tokenA", "tokenB"}, cfg.Watch.Assets)
}

func TestLoadFile(t *testing.T) {
	dir := chdirTemp(t)
	validEnv(t)

	yaml := `
scheduler:
  alert_interval: 1m
  digest_enabled: false
alerting:
  prelude:
    count: 5
state:
  driver: memory
`
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Scheduler.AlertInterval)
	assert.False(t, cfg.Scheduler.DigestEnabled)
	assert.Equal(t, 5, cfg.Alerting.Prelude.Count)
	assert.Equal(t, StateDriverMemory, cfg.State.Driver)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Watch:     WatchConfig{Assets: []string{"tokenA"}},
			Scheduler: SchedulerConfig{AlertInterval: time.Minute, DigestInterval: time.Hour, DigestEnabled: true},
			State:     StateConfig{Driver: StateDriverFile, FilePath: "prices.json"},
			Alerting: AlertingConfig{
				Enabled:  true,
				Telegram: TelegramConfig{BotToken: "t", ChatID: "c", Transport: TransportHTTP},
			},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"no assets":         func(c *Config) { c.Watch.Assets = nil },
		"bad asset":         func(c *Config) { c.Watch.Assets = []string{"abc/def"} },
		"zero interval":     func(c *Config) { c.Scheduler.AlertInterval = 0 },
		"zero digest":       func(c *Config) { c.Scheduler.DigestInterval = 0 },
		"unknown driver":    func(c *Config) { c.State.Driver = "sqlite" },
		"postgres no dsn":   func(c *Config) { c.State.Driver = StateDriverPostgres },
		"lock without pg":   func(c *Config) { c.Scheduler.AdvisoryLockKey = 7 },
		"negative prelude":  func(c *Config) { c.Alerting.Prelude.Count = -1 },
		"missing token":     func(c *Config) { c.Alerting.Telegram.BotToken = "" },
		"missing chat":      func(c *Config) { c.Alerting.Telegram.ChatID = "" },
		"unknown transport": func(c *Config) { c.Alerting.Telegram.Transport = "smtp" },
		"metrics no listen": func(c *Config) { c.Metrics.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	disabled := base()
	disabled.Alerting.Enabled = false
	disabled.Alerting.Telegram = TelegramConfig{}
	assert.NoError(t, disabled.Validate())

	nonEVM := base()
	nonEVM.Watch.Assets = []string{"0x2::sui::SUI", "0x1::aptos_coin::AptosCoin", "0xdeadbeef"}
	assert.NoError(t, nonEVM.Validate())
}
