package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/dmi-observation-cache/internal/observations/providers"
)

var allKeys = []string{
	"DMI_CONFIG_FILE", "DMI_CACHE_DIR", "DMI_START_CACHE_DATE", "DMI_API_URL", "DMI_API_KEY",
	"DMI_FETCH_INTERVAL", "DMI_HTTP_TIMEOUT", "DMI_FETCH_CONCURRENCY", "DMI_RATE_LIMIT_PER_MIN",
	"DMI_BREAKER_THRESHOLD", "DMI_READ_CACHE_TTL", "DMI_READ_CACHE_CAPACITY", "PORT", "LOG_LEVEL",
}

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dmi_cache", cfg.CacheDir)
	assert.Equal(t, providers.DefaultDMIURL, cfg.APIURL)
	assert.Equal(t, time.Hour, cfg.FetchInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 1, cfg.FetchConcurrency)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.StartDate)
	assert.True(t, cfg.Start().IsZero())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DMI_CACHE_DIR", "/var/cache/dmi")
	t.Setenv("DMI_START_CACHE_DATE", "2024-01-05")
	t.Setenv("DMI_API_URL", "http://localhost:9999/items")
	t.Setenv("DMI_API_KEY", "k")
	t.Setenv("DMI_FETCH_INTERVAL", "15m")
	t.Setenv("DMI_FETCH_CONCURRENCY", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/dmi", cfg.CacheDir)
	assert.Equal(t, "2024-01-05", cfg.Start().String())
	assert.Equal(t, "http://localhost:9999/items", cfg.APIURL)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, 15*time.Minute, cfg.FetchInterval)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "dmi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_dir: /data/dmi
start_date: "2023-06-01"
fetch_interval: 2h
breaker_threshold: 0
read_cache_ttl: 1m
port: "9090"
`), 0o644))
	t.Setenv("DMI_CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/dmi", cfg.CacheDir)
	assert.Equal(t, "2023-06-01", cfg.StartDate)
	assert.Equal(t, 2*time.Hour, cfg.FetchInterval)
	assert.Equal(t, 0, cfg.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.ReadCacheTTL)
	assert.Equal(t, "7070", cfg.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad start date":   {"DMI_START_CACHE_DATE", "05/01/2024"},
		"ancient start":    {"DMI_START_CACHE_DATE", "0001-01-01"},
		"pre-1900 start":   {"DMI_START_CACHE_DATE", "1899-12-31"},
		"bad interval":     {"DMI_FETCH_INTERVAL", "hourly"},
		"zero timeout":     {"DMI_HTTP_TIMEOUT", "0s"},
		"bad concurrency":  {"DMI_FETCH_CONCURRENCY", "0"},
		"non-numeric int":  {"DMI_RATE_LIMIT_PER_MIN", "lots"},
		"bad url":          {"DMI_API_URL", "not a url"},
		"unknown loglevel": {"LOG_LEVEL", "verbose"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DMI_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
