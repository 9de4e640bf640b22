package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Batch.Concurrency)
	assert.Equal(t, 180*time.Second, cfg.Batch.SiteTimeout())
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 60, cfg.Fetch.CeilingSecs)
	assert.Equal(t, 100, cfg.Fetch.MinBodyBytes)
	assert.Contains(t, cfg.Fetch.UserAgent, "Mozilla/5.0")
	assert.True(t, cfg.Browser.Enabled)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2000, cfg.Browser.SettleMs)
	assert.True(t, cfg.Captcha.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Submit.StrategyTimeout())
	assert.Equal(t, "none", cfg.Generator.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.InDelta(t, 1.0, cfg.RateLimit.PerHostRPS, 0.001)
	assert.Equal(t, 750, cfg.RateLimit.JitterMs)
	assert.InDelta(t, 0.25, cfg.Retry.JitterFraction, 0.001)
	assert.Equal(t, 2500, cfg.Verify.SettleMs)
	assert.Equal(t, 24, cfg.Monitor.LookbackWindowHours)
	assert.InDelta(t, 0.5, cfg.Monitor.FailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
  format: console
batch:
  concurrency: 25
browser:
  enabled: false
sender:
  name: Ada Lovelace
  email: ada@example.com
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 25, cfg.Batch.Concurrency)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, "Ada Lovelace", cfg.Sender.Name)
	assert.Equal(t, "ada@example.com", cfg.Sender.Email)
	// Defaults still apply for unset values
	assert.Equal(t, 180, cfg.Batch.SiteTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_STORE_DRIVER", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("batch: [unterminated"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation in every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Batch.Concurrency = 10
	cfg.Batch.SiteTimeoutSecs = 120
	cfg.Submit.StrategyTimeoutSecs = 30
	cfg.Server.Port = 8080
	cfg.Sender.Name = "Ada Lovelace"
	cfg.Sender.Email = "ada@example.com"
	cfg.Generator.Provider = "none"
	cfg.Cache.Backend = "memory"
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"submit", "batch", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_MissingSender(t *testing.T) {
	cfg := validDefaults()
	cfg.Sender = SenderConfig{}

	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender.email is required")
	assert.Contains(t, err.Error(), "sender.name is required")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("batch"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	assert.ErrorContains(t, cfg.Validate("batch"), "batch.concurrency must be between 1 and 50")

	cfg.Batch.Concurrency = 51
	assert.ErrorContains(t, cfg.Validate("batch"), "batch.concurrency must be between 1 and 50")

	cfg.Batch.Concurrency = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_StrategyTimeout(t *testing.T) {
	cfg := validDefaults()

	cfg.Submit.StrategyTimeoutSecs = 0
	assert.ErrorContains(t, cfg.Validate("batch"), "submit.strategy_timeout_secs must be > 0")

	cfg.Submit.StrategyTimeoutSecs = cfg.Batch.SiteTimeoutSecs
	assert.ErrorContains(t, cfg.Validate("batch"), "must be below batch.site_timeout_secs")

	cfg.Submit.StrategyTimeoutSecs = 60
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidate_GeneratorKeys(t *testing.T) {
	cfg := validDefaults()

	cfg.Generator.Provider = "anthropic"
	assert.ErrorContains(t, cfg.Validate("submit"), "anthropic.key is required")
	cfg.Anthropic.Key = "sk-ant"
	assert.NoError(t, cfg.Validate("submit"))

	cfg.Generator.Provider = "gemini"
	assert.ErrorContains(t, cfg.Validate("submit"), "gemini.key is required")

	cfg.Generator.Provider = "openai"
	assert.ErrorContains(t, cfg.Validate("submit"), "generator.provider must be one of")
}

func TestValidate_CacheBackend(t *testing.T) {
	cfg := validDefaults()

	cfg.Cache.Backend = "redis"
	assert.ErrorContains(t, cfg.Validate("batch"), "cache.redis_addr is required")
	cfg.Cache.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate("batch"))

	cfg.Cache.Backend = "memcached"
	assert.ErrorContains(t, cfg.Validate("batch"), "cache.backend must be one of")
}

func TestValidate_MinConfidence(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolver.MinConfidence = 1.5
	assert.ErrorContains(t, cfg.Validate("batch"), "resolver.min_confidence")
}
