package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Load Tests
// =============================================================================

// TestLoad_OverridesDefaults verifies YAML values override defaults while
// unset values keep them.
func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9090
store:
  backend: redis
  ttl: 2h
pipeline:
  workers: 4
  target_sector: financial_services
feeds:
  cisa_ais:
    enabled: true
sectors:
  financial_services:
    institution_type: farm_credit
    frameworks: [FFIEC, GLBA]
scoring:
  sector_patterns:
    energy:
      high_risk_ttps: [T0800]
      critical_keywords: [grid]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should succeed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.TTL != 2*time.Hour {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Pipeline.TargetSector != "financial_services" {
		t.Errorf("unexpected target sector %q", cfg.Pipeline.TargetSector)
	}
	if cfg.Sectors.Financial.InstitutionType != "farm_credit" {
		t.Errorf("unexpected institution type %q", cfg.Sectors.Financial.InstitutionType)
	}
	if !reflect.DeepEqual(cfg.Sectors.Financial.Frameworks, []string{"FFIEC", "GLBA"}) {
		t.Errorf("unexpected frameworks %v", cfg.Sectors.Financial.Frameworks)
	}
	if p, ok := cfg.Scoring.SectorPatterns["energy"]; !ok || p.HighRiskTTPs[0] != "T0800" {
		t.Errorf("energy pattern not loaded: %+v", cfg.Scoring.SectorPatterns)
	}
}

// TestLoad_MissingFile verifies a missing file is reported.
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load should fail for a missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestLoadOrDefault verifies an empty path yields the defaults and a set path
// is loaded.
func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Error("empty path should return the defaults")
	}

	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("a missing file should still fail")
	}
}

// TestLoad_InvalidYAML verifies parse errors are reported.
func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail for invalid YAML")
	}
}

// TestLoadDotEnv verifies .env files populate the environment without
// overriding variables that are already set.
func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	body := "SECTORINTEL_TEST_NEW=from-file\nSECTORINTEL_TEST_SET=from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	os.Unsetenv("SECTORINTEL_TEST_NEW")
	t.Setenv("SECTORINTEL_TEST_SET", "from-env")
	defer os.Unsetenv("SECTORINTEL_TEST_NEW")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv should succeed: %v", err)
	}

	if got := os.Getenv("SECTORINTEL_TEST_NEW"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
	if got := os.Getenv("SECTORINTEL_TEST_SET"); got != "from-env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

// TestLoadDotEnv_MissingIgnored verifies a missing .env file is not an error.
func TestLoadDotEnv_MissingIgnored(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

// TestValidate verifies invalid settings are rejected.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad backend", func(c *Config) { c.Store.Backend = "s3" }, true},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, true},
		{"sampling above one", func(c *Config) { c.Telemetry.SamplingRate = 1.5 }, true},
		{"duplicate feed", func(c *Config) { c.Feeds.Order = []string{"OSINT", "OSINT"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestEnabledFeeds_ConfiguredOrder verifies enabled feeds follow feeds.order.
func TestEnabledFeeds_ConfiguredOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feeds.CISAAIS.Enabled = true
	cfg.Feeds.FSISAC.Enabled = true
	cfg.Feeds.Order = []string{"OSINT", "FS_ISAC", "CISA_AIS", "OTX"}

	got := cfg.EnabledFeeds()
	want := []string{"OSINT", "FS_ISAC", "CISA_AIS"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnabledFeeds() = %v, want %v", got, want)
	}
}

// TestDefaultConfig_FeedDefaults verifies only the OSINT feed is enabled by default.
func TestDefaultConfig_FeedDefaults(t *testing.T) {
	got := DefaultConfig().EnabledFeeds()
	if !reflect.DeepEqual(got, []string{"OSINT"}) {
		t.Errorf("expected only OSINT enabled, got %v", got)
	}
}
