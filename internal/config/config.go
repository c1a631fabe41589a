// Package config provides configuration management for SectorIntel.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all SectorIntel configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Splunk    SplunkConfig    `yaml:"splunk"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Sectors   SectorsConfig   `yaml:"sectors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	DSNEnv string `yaml:"dsn_env"`
}

// StoreConfig selects where analyzed runs are persisted.
type StoreConfig struct {
	Backend   string        `yaml:"backend"` // memory, redis, postgres
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	IncludeHeaders    bool `yaml:"include_headers"`
}

// FeedsConfig holds feed adapter settings. Order fixes the sequence in which
// feeds are merged before deduplication.
type FeedsConfig struct {
	Order    []string         `yaml:"order"`
	Lookback time.Duration    `yaml:"lookback"`
	CISAAIS  SampleFeedConfig `yaml:"cisa_ais"`
	FSISAC   SampleFeedConfig `yaml:"fs_isac"`
	OSINT    SampleFeedConfig `yaml:"osint"`
	OTX      OTXConfig        `yaml:"otx"`
	MISP     MISPConfig       `yaml:"misp"`
}

// SampleFeedConfig toggles a built-in feed.
type SampleFeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// OTXConfig holds AlienVault OTX settings.
type OTXConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	PulseLimit int           `yaml:"pulse_limit"`
}

// MISPConfig holds MISP settings.
type MISPConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	VerifySSL     bool          `yaml:"verify_ssl"`
	Timeout       time.Duration `yaml:"timeout"`
	PublishedOnly bool          `yaml:"published_only"`
}

// SplunkConfig holds Splunk HEC settings.
type SplunkConfig struct {
	Receiver ReceiverConfig `yaml:"receiver"`
	Sender   SenderConfig   `yaml:"sender"`
}

// ReceiverConfig holds HEC receiver settings.
type ReceiverConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TokenEnv     string `yaml:"token_env"`
	MaxEventSize int    `yaml:"max_event_size"`
}

// SenderConfig holds HEC sender settings.
type SenderConfig struct {
	Enabled    bool          `yaml:"enabled"`
	HECURL     string        `yaml:"hec_url"`
	TokenEnv   string        `yaml:"token_env"`
	Index      string        `yaml:"index"`
	SourceType string        `yaml:"sourcetype"`
	Source     string        `yaml:"source"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
}

// PipelineConfig holds pipeline execution settings.
type PipelineConfig struct {
	Workers      int    `yaml:"workers"`
	TargetSector string `yaml:"target_sector"` // empty scores without a sector
	SeenCapacity int    `yaml:"seen_capacity"` // ids remembered across runs
}

// ScoringConfig holds the data-driven sector patterns used for sector
// relevance. Entries here replace or extend the built-in patterns.
type ScoringConfig struct {
	SectorPatterns map[string]SectorPatternConfig `yaml:"sector_patterns"`
}

// SectorPatternConfig lists the indicators of relevance for one sector.
type SectorPatternConfig struct {
	HighRiskTTPs     []string `yaml:"high_risk_ttps"`
	CriticalKeywords []string `yaml:"critical_keywords"`
}

// SectorsConfig holds sector analyzer settings.
type SectorsConfig struct {
	Financial   FinancialConfig   `yaml:"financial_services"`
	Agriculture AgricultureConfig `yaml:"agriculture"`
}

// FinancialConfig configures the financial-services analyzer.
type FinancialConfig struct {
	InstitutionType string   `yaml:"institution_type"`
	Frameworks      []string `yaml:"frameworks"`
}

// AgricultureConfig configures the agriculture analyzer.
type AgricultureConfig struct {
	FocusAreas []string `yaml:"focus_areas"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	File       string `yaml:"file"`   // empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig holds metrics and tracing settings.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name"`
	Environment    string  `yaml:"environment"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	SamplingRate   float64 `yaml:"sampling_rate"`
}

// Load reads configuration from a YAML file. A .env file next to the process
// is loaded first so *_env settings can resolve secrets from it.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the validated defaults when path is
// empty.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from the given files, or ".env" when
// none are given. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PasswordEnv: "REDIS_PASSWORD",
			DB:          0,
			PoolSize:    10,
		},
		Postgres: PostgresConfig{
			DSNEnv: "SECTORINTEL_POSTGRES_DSN",
		},
		Store: StoreConfig{
			Backend:   "memory",
			KeyPrefix: "sectorintel",
			TTL:       24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			IncludeHeaders:    true,
		},
		Feeds: FeedsConfig{
			Order:    []string{"CISA_AIS", "FS_ISAC", "OSINT", "OTX", "MISP"},
			Lookback: 7 * 24 * time.Hour,
			CISAAIS:  SampleFeedConfig{Enabled: false},
			FSISAC:   SampleFeedConfig{Enabled: false},
			OSINT:    SampleFeedConfig{Enabled: true},
			OTX: OTXConfig{
				Enabled:    false,
				BaseURL:    "https://otx.alienvault.com",
				APIKeyEnv:  "OTX_API_KEY",
				Timeout:    30 * time.Second,
				PulseLimit: 50,
			},
			MISP: MISPConfig{
				Enabled:       false,
				APIKeyEnv:     "MISP_API_KEY",
				VerifySSL:     true,
				Timeout:       30 * time.Second,
				PublishedOnly: true,
			},
		},
		Splunk: SplunkConfig{
			Receiver: ReceiverConfig{
				Enabled:      false,
				TokenEnv:     "SPLUNK_HEC_TOKEN_INBOUND",
				MaxEventSize: 1024 * 1024,
			},
			Sender: SenderConfig{
				Enabled:    false,
				TokenEnv:   "SPLUNK_HEC_TOKEN_OUTBOUND",
				Index:      "sectorintel",
				SourceType: "sectorintel:indicator",
				Source:     "sectorintel",
				Timeout:    30 * time.Second,
				RetryCount: 3,
			},
		},
		Pipeline: PipelineConfig{
			Workers:      8,
			SeenCapacity: 100000,
		},
		Sectors: SectorsConfig{
			Financial: FinancialConfig{
				InstitutionType: "credit_union",
				Frameworks:      []string{"FFIEC", "FCA"},
			},
			Agriculture: AgricultureConfig{
				FocusAreas: []string{"supply_chain", "iot_devices"},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "sectorintel",
			Environment:    "development",
			MetricsEnabled: true,
			TracingEnabled: false,
			SamplingRate:   1.0,
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Store.Backend)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be within [0,1], got %v", c.Telemetry.SamplingRate)
	}
	seen := make(map[string]bool, len(c.Feeds.Order))
	for _, name := range c.Feeds.Order {
		if seen[name] {
			return fmt.Errorf("feed %q listed twice in feeds.order", name)
		}
		seen[name] = true
	}
	return nil
}

// EnabledFeeds returns the enabled feeds in configured order.
func (c *Config) EnabledFeeds() []string {
	enabled := map[string]bool{
		"CISA_AIS": c.Feeds.CISAAIS.Enabled,
		"FS_ISAC":  c.Feeds.FSISAC.Enabled,
		"OSINT":    c.Feeds.OSINT.Enabled,
		"OTX":      c.Feeds.OTX.Enabled,
		"MISP":     c.Feeds.MISP.Enabled,
	}

	var feeds []string
	for _, name := range c.Feeds.Order {
		if enabled[name] {
			feeds = append(feeds, name)
		}
	}
	return feeds
}
