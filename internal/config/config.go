package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Submit    SubmitConfig    `yaml:"submit" mapstructure:"submit"`
	Captcha   CaptchaConfig   `yaml:"captcha" mapstructure:"captcha"`
	Sender    SenderConfig    `yaml:"sender" mapstructure:"sender"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Generator GeneratorConfig `yaml:"generator" mapstructure:"generator"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit" mapstructure:"ratelimit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
}

// StoreConfig configures the attempt log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// BatchConfig configures batch submission.
type BatchConfig struct {
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	SiteTimeoutSecs int `yaml:"site_timeout_secs" mapstructure:"site_timeout_secs"`
	Limit           int `yaml:"limit" mapstructure:"limit"`
}

// SiteTimeout returns the per-site wall-clock ceiling.
func (b BatchConfig) SiteTimeout() time.Duration {
	return time.Duration(b.SiteTimeoutSecs) * time.Second
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
	CeilingSecs  int    `yaml:"ceiling_secs" mapstructure:"ceiling_secs"`
	MinBodyBytes int    `yaml:"min_body_bytes" mapstructure:"min_body_bytes"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
	ProfileRoot string `yaml:"profile_root" mapstructure:"profile_root"`
	SettleMs    int    `yaml:"settle_ms" mapstructure:"settle_ms"`
}

// SubmitConfig configures submission strategies.
type SubmitConfig struct {
	StrategyTimeoutSecs int `yaml:"strategy_timeout_secs" mapstructure:"strategy_timeout_secs"`
}

// StrategyTimeout returns the time box for a single strategy.
func (s SubmitConfig) StrategyTimeout() time.Duration {
	return time.Duration(s.StrategyTimeoutSecs) * time.Second
}

// CaptchaConfig configures challenge handling.
type CaptchaConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	AutoPassWaitSecs int  `yaml:"auto_pass_wait_secs" mapstructure:"auto_pass_wait_secs"`
}

// SenderConfig is the identity used to fill forms.
type SenderConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Email   string `yaml:"email" mapstructure:"email"`
	Phone   string `yaml:"phone" mapstructure:"phone"`
	Company string `yaml:"company" mapstructure:"company"`
	Website string `yaml:"website" mapstructure:"website"`
}

// ResolverConfig configures unknown-field resolution.
type ResolverConfig struct {
	MinConfidence  float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	DictionaryPath string  `yaml:"dictionary_path" mapstructure:"dictionary_path"`
}

// GeneratorConfig selects the generative-text provider.
type GeneratorConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "anthropic", "gemini", or "none"
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings (optional fetch fallback).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CacheConfig configures the page analysis cache.
type CacheConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // "memory", "redis", or "none"
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
	RedisAddr  string `yaml:"redis_addr" mapstructure:"redis_addr"`
}

// RateLimitConfig configures per-host outbound pacing.
type RateLimitConfig struct {
	PerHostRPS float64 `yaml:"per_host_rps" mapstructure:"per_host_rps"`
	JitterMs   int     `yaml:"jitter_ms" mapstructure:"jitter_ms"`
}

// RetryConfig configures retry with backoff for outbound HTTP calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// VerifyConfig configures outcome verification.
type VerifyConfig struct {
	SettleMs int `yaml:"settle_ms" mapstructure:"settle_ms"`
}

// MonitorConfig configures the background outcome checker used by serve.
type MonitorConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CaptchaRateThreshold float64 `yaml:"captcha_rate_threshold" mapstructure:"captcha_rate_threshold"`
	MinAttempts          int     `yaml:"min_attempts" mapstructure:"min_attempts"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 10)
	v.SetDefault("batch.site_timeout_secs", 180)
	v.SetDefault("batch.limit", 0)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.ceiling_secs", 60)
	v.SetDefault("fetch.min_body_bytes", 100)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle_ms", 2000)
	v.SetDefault("submit.strategy_timeout_secs", 45)
	v.SetDefault("captcha.enabled", true)
	v.SetDefault("captcha.auto_pass_wait_secs", 10)
	v.SetDefault("resolver.min_confidence", 0.0)
	v.SetDefault("generator.provider", "none")
	v.SetDefault("generator.max_tokens", 64)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("ratelimit.per_host_rps", 1.0)
	v.SetDefault("ratelimit.jitter_ms", 750)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("verify.settle_ms", 2500)
	v.SetDefault("monitor.failure_rate_threshold", 0.5)
	v.SetDefault("monitor.captcha_rate_threshold", 0.3)
	v.SetDefault("monitor.min_attempts", 10)
	v.SetDefault("monitor.lookback_window_hours", 24)
	v.SetDefault("monitor.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that cannot be defaulted for the given command mode
// ("submit", "batch", or "serve").
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "submit", "batch":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		problems = append(problems, "batch.concurrency must be between 1 and 50")
	}
	if c.Batch.SiteTimeoutSecs <= 0 {
		problems = append(problems, "batch.site_timeout_secs must be > 0")
	}
	switch {
	case c.Submit.StrategyTimeoutSecs <= 0:
		problems = append(problems, "submit.strategy_timeout_secs must be > 0")
	case c.Batch.SiteTimeoutSecs > 0 && c.Submit.StrategyTimeoutSecs >= c.Batch.SiteTimeoutSecs:
		problems = append(problems, "submit.strategy_timeout_secs must be below batch.site_timeout_secs")
	}
	if c.Sender.Email == "" {
		problems = append(problems, "sender.email is required (OUTREACH_SENDER_EMAIL)")
	}
	if c.Sender.Name == "" {
		problems = append(problems, "sender.name is required (OUTREACH_SENDER_NAME)")
	}

	switch c.Generator.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required for generator.provider=anthropic")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			problems = append(problems, "gemini.key is required for generator.provider=gemini")
		}
	case "none", "":
	default:
		problems = append(problems, "generator.provider must be one of anthropic, gemini, none")
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for cache.backend=redis")
		}
	case "memory", "none", "":
	default:
		problems = append(problems, "cache.backend must be one of memory, redis, none")
	}

	if c.Resolver.MinConfidence < 0 || c.Resolver.MinConfidence > 1 {
		problems = append(problems, "resolver.min_confidence must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
