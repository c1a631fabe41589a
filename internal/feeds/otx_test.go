package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

func newTestOTX(t *testing.T, baseURL string) *OTXCollector {
	t.Helper()
	t.Setenv("TEST_OTX_KEY", "test-api-key")

	cfg := DefaultOTXConfig()
	cfg.APIKeyEnv = "TEST_OTX_KEY"
	cfg.BaseURL = baseURL
	c, err := NewOTXCollector(cfg, nil)
	if err != nil {
		t.Fatalf("NewOTXCollector() error = %v", err)
	}
	return c
}

// =============================================================================
// Collector Creation Tests
// =============================================================================

// TestNewOTXCollector_MissingAPIKey verifies that creating a collector without
// an API key in the environment returns an error.
func TestNewOTXCollector_MissingAPIKey(t *testing.T) {
	t.Setenv("TEST_OTX_KEY", "")

	_, err := NewOTXCollector(OTXConfig{APIKeyEnv: "TEST_OTX_KEY"}, nil)
	if err == nil {
		t.Fatal("NewOTXCollector should fail when API key env var is empty")
	}
	if !strings.Contains(err.Error(), "OTX API key not found") {
		t.Errorf("error should mention missing API key, got: %v", err)
	}
}

// TestNewOTXCollector_Defaults verifies defaults fill an empty config.
func TestNewOTXCollector_Defaults(t *testing.T) {
	t.Setenv("TEST_OTX_KEY", "test-api-key")

	c, err := NewOTXCollector(OTXConfig{APIKeyEnv: "TEST_OTX_KEY"}, nil)
	if err != nil {
		t.Fatalf("NewOTXCollector should succeed: %v", err)
	}
	if c.config.BaseURL != otxDefaultBaseURL {
		t.Errorf("expected default base URL %q, got %q", otxDefaultBaseURL, c.config.BaseURL)
	}
	if c.config.PulseLimit != 50 {
		t.Errorf("expected default pulse limit 50, got %d", c.config.PulseLimit)
	}
	if c.Name() != FeedOTX {
		t.Errorf("expected name %q, got %q", FeedOTX, c.Name())
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

// TestOTXHealthCheck verifies status handling and the auth header.
func TestOTXHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"ok", http.StatusOK, ""},
		{"unauthorized", http.StatusUnauthorized, "invalid API key"},
		{"server error", http.StatusInternalServerError, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/user/me" {
					t.Errorf("expected path /api/v1/user/me, got %s", r.URL.Path)
				}
				if r.Header.Get("X-OTX-API-KEY") != "test-api-key" {
					t.Errorf("expected API key header, got %q", r.Header.Get("X-OTX-API-KEY"))
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newTestOTX(t, server.URL).HealthCheck(context.Background())
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("HealthCheck should succeed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// =============================================================================
// Collect Tests
// =============================================================================

// TestOTXCollect verifies pulses map onto raw records.
func TestOTXCollect(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pulses/subscribed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("modified_since"); got != "2024-01-01T00:00:00Z" {
			t.Errorf("modified_since = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q", got)
		}

		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("X-RateLimit-Limit", "60")
		json.NewEncoder(w).Encode(OTXPulseListResponse{
			Count: 2,
			Results: []OTXPulse{
				{
					ID:          "pulse-1",
					Name:        "Ransomware hitting credit unions",
					Description: "LockBit affiliate activity",
					Modified:    "2024-01-16T12:00:00.000000",
					Tags:        []string{"ransomware", "lockbit"},
					Industries:  []string{"Finance", "Banking", "Agriculture"},
					AttackIDs:   []OTXAttackID{{ID: "T1486"}, {ID: "t1566.001"}},
					Indicators: []OTXIndicator{
						{Indicator: "203.0.113.7", Type: "IPv4"},
						{Indicator: "bad.example", Type: "hostname"},
						{Indicator: "d41d8cd98f00b204e9800998ecf8427e", Type: "FileHash-MD5"},
						{Indicator: "C:\\evil.exe", Type: "filepath"},
					},
				},
				{
					ID:      "pulse-2",
					Name:    "Sensor firmware RCE",
					Created: "2024-01-10T08:00:00",
					Tags:    []string{"iot"},
					Indicators: []OTXIndicator{
						{Indicator: "CVE-2024-1234", Type: "CVE"},
					},
				},
			},
		})
	}))
	defer server.Close()

	c := newTestOTX(t, server.URL)
	records, err := c.Collect(context.Background(), since)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first.Source != FeedOTX || first.ThreatType != intel.ThreatTypeMalware || first.Severity != intel.SeverityCritical {
		t.Errorf("unexpected first record: %+v", first)
	}
	if len(first.Sectors) != 2 || first.Sectors[0] != intel.SectorFinancialServices || first.Sectors[1] != intel.SectorAgriculture {
		t.Errorf("Sectors = %v", first.Sectors)
	}
	if len(first.TTPs) != 2 || first.TTPs[1] != "T1566.001" {
		t.Errorf("TTPs = %v", first.TTPs)
	}
	if first.IOCs.Count() != 3 {
		t.Errorf("IOC count = %d, want 3 (filepath dropped)", first.IOCs.Count())
	}
	if first.Timestamp != "2024-01-16T12:00:00.000000" {
		t.Errorf("Timestamp = %q", first.Timestamp)
	}

	second := records[1]
	if second.ThreatType != intel.ThreatTypeVulnerability || len(second.CVE) != 1 {
		t.Errorf("unexpected second record: %+v", second)
	}
	if second.Severity != intel.SeverityLow {
		t.Errorf("Severity = %q, want low", second.Severity)
	}
	if second.Timestamp != "2024-01-10T08:00:00" {
		t.Errorf("Timestamp should fall back to created, got %q", second.Timestamp)
	}

	if rl := c.RateLimit(); rl.Remaining != 42 || rl.Limit != 60 {
		t.Errorf("RateLimit() = %+v", rl)
	}
}

// TestOTXCollect_ErrorStatus verifies non-200 responses surface as errors.
func TestOTXCollect_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail": "slow down"}`))
	}))
	defer server.Close()

	_, err := newTestOTX(t, server.URL).Collect(context.Background(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected 429 error, got %v", err)
	}
}

// TestOTXSeverity verifies the tag and adversary ladder.
func TestOTXSeverity(t *testing.T) {
	tests := []struct {
		name  string
		pulse OTXPulse
		want  string
	}{
		{"apt", OTXPulse{Tags: []string{"APT29"}}, intel.SeverityCritical},
		{"malware", OTXPulse{Tags: []string{"malware"}}, intel.SeverityHigh},
		{"phishing", OTXPulse{Tags: []string{"phishing"}}, intel.SeverityMedium},
		{"adversary", OTXPulse{Adversary: "FIN7"}, intel.SeverityHigh},
		{"nothing", OTXPulse{}, intel.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := otxSeverity(tt.pulse); got != tt.want {
				t.Errorf("otxSeverity() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestOTXThreatType verifies tag mapping onto pipeline threat types.
func TestOTXThreatType(t *testing.T) {
	tests := []struct {
		tags   []string
		hasCVE bool
		want   string
	}{
		{[]string{"Emotet", "malware"}, false, intel.ThreatTypeMalware},
		{[]string{"phishing"}, false, intel.ThreatTypeFraud},
		{[]string{"exploit"}, false, intel.ThreatTypeVulnerability},
		{nil, true, intel.ThreatTypeVulnerability},
		{[]string{"scanning"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.tags, ","), func(t *testing.T) {
			if got := otxThreatType(OTXPulse{Tags: tt.tags}, tt.hasCVE); got != tt.want {
				t.Errorf("otxThreatType() = %q, want %q", got, tt.want)
			}
		})
	}
}
