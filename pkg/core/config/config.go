// Package config loads the service configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration (config/rating.yaml).
type Config struct {
	SEC    SECConfig    `yaml:"sec"`
	Rating RatingConfig `yaml:"rating"`
	Cache  CacheConfig  `yaml:"cache"`
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`

	// ModelsFile points at the LLM provider routing file (config/models.yaml).
	ModelsFile    string `yaml:"models_file"`
	ResourcesPath string `yaml:"resources_path"`
}

// SECConfig controls access to the EDGAR endpoints.
type SECConfig struct {
	UserAgent       string   `yaml:"user_agent"`
	DataBaseURL     string   `yaml:"data_base_url"`
	ArchivesBaseURL string   `yaml:"archives_base_url"`
	TickersURL      string   `yaml:"tickers_url"`
	TickerTablePath string   `yaml:"ticker_table_path"`
	TickerRefresh   Duration `yaml:"ticker_refresh"`
	Timeout         Duration `yaml:"timeout"`
	RateLimit       float64  `yaml:"rate_limit"`
	MaxAttempts     int      `yaml:"max_attempts"`
	BaseBackoff     Duration `yaml:"base_backoff"`
	MaxBackoff      Duration `yaml:"max_backoff"`
}

// Weights are the aggregate weights per component.
type Weights struct {
	YoY       float64 `yaml:"yoy"`
	Profit    float64 `yaml:"profit"`
	Debt      float64 `yaml:"debt"`
	Income    float64 `yaml:"income"`
	Narrative float64 `yaml:"narrative"`
}

// RatingConfig controls the analysis run.
type RatingConfig struct {
	Weights           Weights  `yaml:"weights"`
	BranchTimeout     Duration `yaml:"branch_timeout"`
	MaxNarrativeChars int      `yaml:"max_narrative_chars"`
}

// CacheConfig selects the identifier-resolution cache backend.
type CacheConfig struct {
	Backend       string   `yaml:"backend"` // "memory", "redis" or "none"
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	TTL           Duration `yaml:"ttl"`
}

// StoreConfig enables report persistence when DatabaseURL is set.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SEC: SECConfig{
			UserAgent:       "FilingRating/1.0 (contact@example.com)",
			DataBaseURL:     "https://data.sec.gov",
			ArchivesBaseURL: "https://www.sec.gov/Archives/edgar/data",
			TickersURL:      "https://www.sec.gov/files/company_tickers.json",
			TickerRefresh:   Duration(24 * time.Hour),
			Timeout:         Duration(30 * time.Second),
			RateLimit:       8,
			MaxAttempts:     3,
			BaseBackoff:     Duration(500 * time.Millisecond),
			MaxBackoff:      Duration(8 * time.Second),
		},
		Rating: RatingConfig{
			Weights: Weights{
				YoY:       0.20,
				Profit:    0.20,
				Debt:      0.15,
				Income:    0.15,
				Narrative: 0.30,
			},
			BranchTimeout:     Duration(2 * time.Minute),
			MaxNarrativeChars: 60000,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration(24 * time.Hour),
		},
		Server:        ServerConfig{Addr: ":8080"},
		Log:           LogConfig{Level: "info"},
		ModelsFile:    "config/models.yaml",
		ResourcesPath: "resources",
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SEC_USER_AGENT"); v != "" {
		cfg.SEC.UserAgent = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.RedisDB = db
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate() error {
	if c.SEC.UserAgent == "" {
		return fmt.Errorf("sec.user_agent must be set (SEC requires an identifying User-Agent)")
	}
	if c.SEC.MaxAttempts < 1 {
		return fmt.Errorf("sec.max_attempts must be >= 1, got %d", c.SEC.MaxAttempts)
	}
	if c.SEC.RateLimit <= 0 {
		return fmt.Errorf("sec.rate_limit must be positive, got %v", c.SEC.RateLimit)
	}
	w := c.Rating.Weights
	sum := w.YoY + w.Profit + w.Debt + w.Income + w.Narrative
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("rating.weights must sum to 1, got %.4f", sum)
	}
	switch c.Cache.Backend {
	case "memory", "none", "":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}
