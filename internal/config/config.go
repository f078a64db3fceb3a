package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config holds the postcards API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	Cache        CacheConfig        `yaml:"cache"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	Marketplaces MarketplacesConfig `yaml:"marketplaces"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"` // empty = any origin
}

// CacheConfig selects the image text cache backend.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	TTLHours         int      `yaml:"ttl_hours"` // 0 = no expiry
}

// OpenAIConfig holds model provider settings. An empty APIKey disables
// extraction, query enhancement and model suggestions.
type OpenAIConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	VisionModel         string `yaml:"vision_model"`
	FallbackVisionModel string `yaml:"fallback_vision_model"`
	TextModel           string `yaml:"text_model"`
	TranslateQueries    bool   `yaml:"translate_queries"`
}

// ExtractionConfig tunes image download and transcription.
type ExtractionConfig struct {
	DownloadTimeoutSec int      `yaml:"download_timeout_sec"`
	MaxImageBytes      int64    `yaml:"max_image_bytes"`
	MaxAttempts        int      `yaml:"max_attempts"`
	InitialBackoffMs   int      `yaml:"initial_backoff_ms"`
	PlaceholderHosts   []string `yaml:"placeholder_hosts"`
}

// EnrichmentConfig bounds image text enrichment of search results.
type EnrichmentConfig struct {
	Concurrency           int  `yaml:"concurrency"`
	ImmediateBatch        int  `yaml:"immediate_batch"`
	BackgroundMaxListings int  `yaml:"background_max_listings"`
	BatchTimeoutSec       int  `yaml:"batch_timeout_sec"`
	PacingMs              int  `yaml:"pacing_ms"` // negative disables pacing
	JobBudgetSec          int  `yaml:"job_budget_sec"`
	PrioritizeImageText   bool `yaml:"prioritize_image_text"`
}

// MarketplacesConfig holds per-marketplace settings.
type MarketplacesConfig struct {
	EBay        EBayConfig        `yaml:"ebay"`
	Etsy        EtsyConfig        `yaml:"etsy"`
	HipPostcard HipPostcardConfig `yaml:"hippostcard"`
}

// ClientConfig holds the settings shared by every marketplace client.
type ClientConfig struct {
	Disabled    bool    `yaml:"disabled"`
	BaseURL     string  `yaml:"base_url"`
	AffiliateID string  `yaml:"affiliate_id"`
	RateLimit   float64 `yaml:"rate_limit_rps"` // 0 = client default, negative = unlimited
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// EBayConfig holds eBay Browse API credentials.
type EBayConfig struct {
	ClientConfig `yaml:",inline"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthToken    string `yaml:"auth_token"`
}

// EtsyConfig holds Etsy Open API settings.
type EtsyConfig struct {
	ClientConfig `yaml:",inline"`
	APIKey       string `yaml:"api_key"`
	TaxonomyID   string `yaml:"taxonomy_id"`
}

// HipPostcardConfig holds HipPostcard scraper settings.
type HipPostcardConfig struct {
	ClientConfig `yaml:",inline"`
	UserAgent    string `yaml:"user_agent"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables, then
// applies defaults and validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// Search responses wait for the immediate extraction batch.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = CacheDriverMemory
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Extraction.DownloadTimeoutSec <= 0 {
		c.Extraction.DownloadTimeoutSec = 10
	}
	if c.Extraction.MaxAttempts <= 0 {
		c.Extraction.MaxAttempts = 3
	}
	if c.Extraction.InitialBackoffMs <= 0 {
		c.Extraction.InitialBackoffMs = 1000
	}
	if c.Enrichment.Concurrency <= 0 {
		c.Enrichment.Concurrency = 5
	}
	if c.Enrichment.ImmediateBatch <= 0 {
		c.Enrichment.ImmediateBatch = 10
	}
	if c.Enrichment.BackgroundMaxListings <= 0 {
		c.Enrichment.BackgroundMaxListings = 50
	}
	if c.Enrichment.BatchTimeoutSec <= 0 {
		c.Enrichment.BatchTimeoutSec = 30
	}
	if c.Enrichment.PacingMs == 0 {
		c.Enrichment.PacingMs = 500
	}
	if c.Enrichment.JobBudgetSec <= 0 {
		c.Enrichment.JobBudgetSec = 60
	}
	for _, m := range []*ClientConfig{
		&c.Marketplaces.EBay.ClientConfig,
		&c.Marketplaces.Etsy.ClientConfig,
		&c.Marketplaces.HipPostcard.ClientConfig,
	} {
		if m.TimeoutSec <= 0 {
			m.TimeoutSec = 30
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be %q or %q, got %q", CacheDriverMemory, CacheDriverRedis, c.Cache.Driver)
	}
	if c.Enrichment.ImmediateBatch > c.Enrichment.BackgroundMaxListings {
		return fmt.Errorf(
			"enrichment.immediate_batch (%d) must not exceed enrichment.background_max_listings (%d)",
			c.Enrichment.ImmediateBatch, c.Enrichment.BackgroundMaxListings,
		)
	}
	if c.Enrichment.BatchTimeoutSec > c.Enrichment.JobBudgetSec {
		return fmt.Errorf(
			"enrichment.batch_timeout_sec (%d) must not exceed enrichment.job_budget_sec (%d)",
			c.Enrichment.BatchTimeoutSec, c.Enrichment.JobBudgetSec,
		)
	}
	return nil
}

// TTL returns the shared cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// DownloadTimeout returns the image download timeout.
func (c ExtractionConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}

// InitialBackoff returns the first retry delay.
func (c ExtractionConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// BatchTimeout returns the per-batch extraction timeout.
func (c EnrichmentConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSec) * time.Second
}

// Pacing returns the pause between background batches.
func (c EnrichmentConfig) Pacing() time.Duration {
	if c.PacingMs < 0 {
		return 0
	}
	return time.Duration(c.PacingMs) * time.Millisecond
}

// JobBudget returns the total runtime allowed for one background job.
func (c EnrichmentConfig) JobBudget() time.Duration {
	return time.Duration(c.JobBudgetSec) * time.Second
}

// Timeout returns the marketplace request timeout.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
