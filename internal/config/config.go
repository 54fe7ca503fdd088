package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
	"github.com/i474232898/dmi-observation-cache/internal/observations/providers"
)

var validate = validator.New()

// AppConfig is built once at startup and passed to every component. Nothing
// else in the module reads the environment.
type AppConfig struct {
	CacheDir string `validate:"required"`
	// StartDate enables background caching when set (YYYY-MM-DD).
	StartDate string `validate:"omitempty,datetime=2006-01-02"`

	APIURL string `validate:"required,url"`
	APIKey string

	FetchInterval     time.Duration `validate:"gt=0"`
	HTTPTimeout       time.Duration `validate:"gt=0"`
	FetchConcurrency  int           `validate:"gte=1,lte=32"`
	RateLimitPerMin   int           `validate:"gte=0"`
	BreakerThreshold  int           `validate:"gte=0"`
	ReadCacheTTL      time.Duration `validate:"gt=0"`
	ReadCacheCapacity int           `validate:"gt=0"`

	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *AppConfig {
	return &AppConfig{
		CacheDir:          "dmi_cache",
		APIURL:            providers.DefaultDMIURL,
		FetchInterval:     time.Hour,
		HTTPTimeout:       30 * time.Second,
		FetchConcurrency:  1,
		BreakerThreshold:  5,
		ReadCacheTTL:      10 * time.Minute,
		ReadCacheCapacity: 1000,
		Port:              "8080",
		LogLevel:          "info",
	}
}

// Load builds the configuration: defaults, then the optional YAML file named
// by DMI_CONFIG_FILE, then environment overrides.
func Load() (*AppConfig, error) {
	cfg := Defaults()

	if path := os.Getenv("DMI_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.StartDate != "" {
		// The zero Date means disabled, so very old dates cannot be represented.
		start, err := observations.ParseDate(cfg.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		if start.Before(observations.EarliestStart) {
			return nil, fmt.Errorf("invalid configuration: start date %s is before %s", start, observations.EarliestStart)
		}
	}
	return cfg, nil
}

// Start returns the parsed start date, or the zero Date when caching is off.
func (c *AppConfig) Start() observations.Date {
	if c.StartDate == "" {
		return observations.Date{}
	}
	d, err := observations.ParseDate(c.StartDate)
	if err != nil {
		// Load validates the format; a hand-built config can still get here.
		return observations.Date{}
	}
	return d
}

// Breaker returns the circuit breaker settings for the upstream provider.
func (c *AppConfig) Breaker() providers.BreakerConfig {
	return providers.BreakerConfig{
		ConsecutiveFailures: uint32(c.BreakerThreshold),
		OpenTimeout:         providers.DefaultOpenTimeout,
	}
}

// fileConfig mirrors AppConfig with durations as strings so YAML can use "1h".
type fileConfig struct {
	CacheDir          string `yaml:"cache_dir"`
	StartDate         string `yaml:"start_date"`
	APIURL            string `yaml:"api_url"`
	APIKey            string `yaml:"api_key"`
	FetchInterval     string `yaml:"fetch_interval"`
	HTTPTimeout       string `yaml:"http_timeout"`
	FetchConcurrency  int    `yaml:"fetch_concurrency"`
	RateLimitPerMin   int    `yaml:"rate_limit_per_min"`
	BreakerThreshold  *int   `yaml:"breaker_threshold"`
	ReadCacheTTL      string `yaml:"read_cache_ttl"`
	ReadCacheCapacity int    `yaml:"read_cache_capacity"`
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"log_level"`
}

func loadFile(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	setString(&cfg.CacheDir, fc.CacheDir)
	setString(&cfg.StartDate, fc.StartDate)
	setString(&cfg.APIURL, fc.APIURL)
	setString(&cfg.APIKey, fc.APIKey)
	setString(&cfg.Port, fc.Port)
	setString(&cfg.LogLevel, fc.LogLevel)
	if fc.FetchConcurrency != 0 {
		cfg.FetchConcurrency = fc.FetchConcurrency
	}
	if fc.RateLimitPerMin != 0 {
		cfg.RateLimitPerMin = fc.RateLimitPerMin
	}
	if fc.BreakerThreshold != nil {
		cfg.BreakerThreshold = *fc.BreakerThreshold
	}
	if fc.ReadCacheCapacity != 0 {
		cfg.ReadCacheCapacity = fc.ReadCacheCapacity
	}

	for _, d := range []struct {
		name string
		val  string
		dst  *time.Duration
	}{
		{"fetch_interval", fc.FetchInterval, &cfg.FetchInterval},
		{"http_timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"read_cache_ttl", fc.ReadCacheTTL, &cfg.ReadCacheTTL},
	} {
		if d.val == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, path, err)
		}
		*d.dst = parsed
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	setString(&cfg.CacheDir, os.Getenv("DMI_CACHE_DIR"))
	setString(&cfg.StartDate, os.Getenv("DMI_START_CACHE_DATE"))
	setString(&cfg.APIURL, os.Getenv("DMI_API_URL"))
	setString(&cfg.APIKey, os.Getenv("DMI_API_KEY"))
	setString(&cfg.Port, os.Getenv("PORT"))
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))

	var err error
	if cfg.FetchInterval, err = getenvDuration("DMI_FETCH_INTERVAL", cfg.FetchInterval); err != nil {
		return err
	}
	if cfg.HTTPTimeout, err = getenvDuration("DMI_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.ReadCacheTTL, err = getenvDuration("DMI_READ_CACHE_TTL", cfg.ReadCacheTTL); err != nil {
		return err
	}
	if cfg.FetchConcurrency, err = getenvInt("DMI_FETCH_CONCURRENCY", cfg.FetchConcurrency); err != nil {
		return err
	}
	if cfg.RateLimitPerMin, err = getenvInt("DMI_RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin); err != nil {
		return err
	}
	if cfg.BreakerThreshold, err = getenvInt("DMI_BREAKER_THRESHOLD", cfg.BreakerThreshold); err != nil {
		return err
	}
	if cfg.ReadCacheCapacity, err = getenvInt("DMI_READ_CACHE_CAPACITY", cfg.ReadCacheCapacity); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
