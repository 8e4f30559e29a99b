package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://admin.shopify.com", cfg.AdminBaseURL)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 60*time.Second, cfg.PageLoadTimeout())
	assert.Equal(t, 30*time.Second, cfg.SelectorTimeout())
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout())
	assert.Equal(t, 5*time.Minute, cfg.LoginWaitTimeout())
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryDelayDuration())

	min, max := cfg.HumanDelayBounds()
	assert.Equal(t, 500*time.Millisecond, min)
	assert.Equal(t, 2*time.Second, max)
	assert.Equal(t, EnginePlaywright, cfg.BrowserEngine)
}

func TestValidateRequiresStoreSlug(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreSlug = "   "
	require.Error(t, cfg.Validate())

	cfg.StoreSlug = "my-store"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.RetryAttempts = 0 }},
		{"min above max", func(c *Config) { c.HumanDelayMin = 3; c.HumanDelayMax = 1 }},
		{"unknown engine", func(c *Config) { c.BrowserEngine = "selenium" }},
		{"container without rod", func(c *Config) { c.BrowserContainer = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.StoreSlug = "my-store"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAdminURLs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreSlug = "my-store"

	assert.Equal(t, "https://admin.shopify.com/store/my-store", cfg.AdminStoreURL())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STORE_SLUG":         "env-store",
		"HEADLESS":           "true",
		"TIMEOUT_LOGIN_WAIT": "1000",
		"RETRY_DELAY":        "0.25",
		"PORT":               "9000",
	}
	cfg := DefaultConfig()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)

	assert.Equal(t, "env-store", cfg.StoreSlug)
	assert.True(t, cfg.Headless)
	assert.Equal(t, time.Second, cfg.LoginWaitTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelayDuration())
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
}

func TestApplyEnvInvalidNumber(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "RETRY_ATTEMPTS" {
			return "three", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestLoadFromYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_slug: yaml-store\nadmin_base_url: https://admin.example.com/\nretry_attempts: 5\n"), 0644))

	t.Setenv("RETRY_ATTEMPTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://admin.example.com", cfg.AdminBaseURL)
	assert.Equal(t, 7, cfg.RetryAttempts)
	if _, ok := os.LookupEnv("STORE_SLUG"); !ok {
		assert.Equal(t, "yaml-store", cfg.StoreSlug)
	}
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.DownloadDir = filepath.Join(root, "downloads")
	cfg.ScreenshotDir = filepath.Join(root, "screenshots")
	cfg.LogDir = filepath.Join(root, "logs")
	cfg.ProfileDir = filepath.Join(root, "profile")
	cfg.SnapshotDir = filepath.Join(root, "snapshots")

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.DownloadDir, cfg.ScreenshotDir, cfg.LogDir, cfg.ProfileDir, cfg.SnapshotDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
