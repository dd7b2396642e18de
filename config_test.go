package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.RecoveryTimeout)
}

func TestEffectiveRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, keylessRateLimit, cfg.effectiveRateLimit())

	cfg.APIKey = "secret"
	assert.Equal(t, keyedRateLimit, cfg.effectiveRateLimit())

	// An explicit limit always wins.
	cfg.RateLimit = 7
	assert.Equal(t, 7, cfg.effectiveRateLimit())
}

func TestValidateRejectsBadValues(t *testing.T) {
	mutations := map[string]func(*Config){
		"empty base url":     func(c *Config) { c.BaseURL = "" },
		"non-http base url":  func(c *Config) { c.BaseURL = "redis://example" },
		"zero timeout":       func(c *Config) { c.Timeout = 0 },
		"negative retries":   func(c *Config) { c.MaxRetries = -1 },
		"zero base delay":    func(c *Config) { c.BaseDelay = 0 },
		"max below base":     func(c *Config) { c.MaxDelay = c.BaseDelay / 2 },
		"multiplier below 1": func(c *Config) { c.Multiplier = 0.5 },
		"jitter above 1":     func(c *Config) { c.Jitter = 1.5 },
		"negative rate":      func(c *Config) { c.RateLimit = -1 },
		"zero rate window":   func(c *Config) { c.RateWindow = 0 },
		"zero threshold":     func(c *Config) { c.FailureThreshold = 0 },
		"zero recovery":      func(c *Config) { c.RecoveryTimeout = 0 },
		"zero cache ttl":     func(c *Config) { c.CacheTTL = 0 },
		"budget sans window": func(c *Config) { c.RetryBudget = 5; c.RetryBudgetWindow = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("REGISTRY_API_KEY", "env-secret")
	t.Setenv("REGISTRY_MAX_RETRIES", "5")
	t.Setenv("REGISTRY_TIMEOUT", "10s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.APIKey)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	// Untouched values keep their defaults.
	assert.Equal(t, "https://api.fda.gov", cfg.BaseURL)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := []byte("base_url: https://registry.internal\nmax_retries: 1\ncache_ttl: 15m\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://registry.internal", cfg.BaseURL)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("REGISTRY_MAX_RETRIES", "-3")
	_, err := LoadConfig("")
	assert.Error(t, err)
}
