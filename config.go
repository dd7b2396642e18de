package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config collects every tunable of the client. The zero value is not usable;
// start from DefaultConfig or LoadConfig and override fields.
type Config struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`

	Timeout time.Duration `mapstructure:"timeout"`

	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"`

	// RateLimit zero means auto: the keyless quota, or the keyed quota when
	// APIKey is set.
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`

	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`

	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheDisabled bool          `mapstructure:"cache_disabled"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	DedupDisabled bool `mapstructure:"dedup_disabled"`

	RetryBudget       int           `mapstructure:"retry_budget"`
	RetryBudgetWindow time.Duration `mapstructure:"retry_budget_window"`
}

// Published Registry quotas per rolling minute.
const (
	keylessRateLimit = 40
	keyedRateLimit   = 240
)

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://api.fda.gov",
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Multiplier:        2.0,
		Jitter:            0.1,
		RateWindow:        time.Minute,
		FailureThreshold:  5,
		RecoveryTimeout:   60 * time.Second,
		CacheTTL:          time.Hour,
		RetryBudget:       10,
		RetryBudgetWindow: time.Minute,
	}
}

// LoadConfig builds a Config from defaults, an optional config file and
// REGISTRY_* environment variables, in ascending precedence. path may be ""
// to skip file loading.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a registered default, or AutomaticEnv values are
	// invisible to Unmarshal.
	def := DefaultConfig()
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("api_key", "")
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("base_delay", def.BaseDelay)
	v.SetDefault("max_delay", def.MaxDelay)
	v.SetDefault("multiplier", def.Multiplier)
	v.SetDefault("jitter", def.Jitter)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_window", def.RateWindow)
	v.SetDefault("failure_threshold", def.FailureThreshold)
	v.SetDefault("recovery_timeout", def.RecoveryTimeout)
	v.SetDefault("cache_ttl", def.CacheTTL)
	v.SetDefault("cache_disabled", false)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("dedup_disabled", false)
	v.SetDefault("retry_budget", def.RetryBudget)
	v.SetDefault("retry_budget_window", def.RetryBudgetWindow)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// effectiveRateLimit resolves the auto quota.
func (c *Config) effectiveRateLimit() int {
	if c.RateLimit > 0 {
		return c.RateLimit
	}
	if c.APIKey != "" {
		return keyedRateLimit
	}
	return keylessRateLimit
}

// Validate rejects configurations that would misbehave at runtime. It runs
// eagerly at construction so a bad value fails New, not the first call.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be positive, got %v", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay %v must not be below base_delay %v", c.MaxDelay, c.BaseDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", c.Multiplier)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be within [0, 1], got %v", c.Jitter)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate_window must be positive, got %v", c.RateWindow)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery_timeout must be positive, got %v", c.RecoveryTimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %v", c.CacheTTL)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry_budget must not be negative, got %d", c.RetryBudget)
	}
	if c.RetryBudget > 0 && c.RetryBudgetWindow <= 0 {
		return fmt.Errorf("retry_budget_window must be positive when retry_budget is set")
	}
	return nil
}
