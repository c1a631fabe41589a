package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

const (
	otxDefaultBaseURL = "https://otx.alienvault.com"
	otxAPIPath        = "/api/v1"
	userAgent         = "SectorIntel/1.0"
)

// OTXConfig holds AlienVault OTX settings. APIKeyEnv names the environment
// variable holding the key.
type OTXConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	PulseLimit int           `yaml:"pulse_limit"`
}

// DefaultOTXConfig returns sensible defaults for OTX.
func DefaultOTXConfig() OTXConfig {
	return OTXConfig{
		BaseURL:    otxDefaultBaseURL,
		APIKeyEnv:  "OTX_API_KEY",
		Timeout:    30 * time.Second,
		PulseLimit: 50,
	}
}

// RateLimitStatus is the last rate limit reported by a feed.
type RateLimitStatus struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// OTXCollector turns subscribed OTX pulses into raw threat records.
type OTXCollector struct {
	config     OTXConfig
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	rateLimit  RateLimitStatus
	mu         sync.RWMutex
}

// NewOTXCollector creates an OTX collector. The API key must be present in
// the configured environment variable.
func NewOTXCollector(config OTXConfig, logger *zap.Logger) (*OTXCollector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey := os.Getenv(config.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("OTX API key not found in env var: %s", config.APIKeyEnv)
	}
	if config.BaseURL == "" {
		config.BaseURL = otxDefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PulseLimit <= 0 {
		config.PulseLimit = 50
	}

	return &OTXCollector{
		config:     config,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Name returns the feed identifier.
func (c *OTXCollector) Name() string {
	return FeedOTX
}

// HealthCheck verifies the API key against OTX.
func (c *OTXCollector) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/user/me")
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("OTX health check failed: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("OTX authentication failed: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OTX returned status %d", resp.StatusCode)
	}
	return nil
}

// RateLimit returns the last reported rate limit.
func (c *OTXCollector) RateLimit() RateLimitStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLimit
}

// Collect fetches pulses modified since the given time, one record per pulse.
func (c *OTXCollector) Collect(ctx context.Context, since time.Time) ([]intel.RawThreatRecord, error) {
	path := fmt.Sprintf("/pulses/subscribed?modified_since=%s&limit=%d",
		url.QueryEscape(since.UTC().Format(time.RFC3339)),
		c.config.PulseLimit,
	)

	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("creating pulses request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OTX pulses: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("OTX returned %d: %s", resp.StatusCode, string(body))
	}

	var pulses OTXPulseListResponse
	if err := json.NewDecoder(resp.Body).Decode(&pulses); err != nil {
		return nil, fmt.Errorf("decoding OTX response: %w", err)
	}

	records := make([]intel.RawThreatRecord, 0, len(pulses.Results))
	for _, pulse := range pulses.Results {
		records = append(records, pulseToRecord(pulse))
	}

	c.logger.Debug("Fetched OTX pulses",
		zap.Int("pulses", len(records)),
		zap.Int("total", pulses.Count),
	)
	return records, nil
}

func (c *OTXCollector) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + otxAPIPath + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-OTX-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *OTXCollector) updateRateLimit(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		var r int
		fmt.Sscanf(remaining, "%d", &r)
		c.rateLimit.Remaining = r
	}
	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		var l int
		fmt.Sscanf(limit, "%d", &l)
		c.rateLimit.Limit = l
	}
}

// pulseToRecord maps one pulse onto the raw record shape.
func pulseToRecord(pulse OTXPulse) intel.RawThreatRecord {
	rec := intel.RawThreatRecord{
		Source:      FeedOTX,
		Name:        pulse.Name,
		Description: pulse.Description,
		Severity:    otxSeverity(pulse),
		Sectors:     industrySectors(pulse.Industries),
		IOCs:        intel.IOCMap{},
		Timestamp:   pulse.Modified,
	}
	if rec.Timestamp == "" {
		rec.Timestamp = pulse.Created
	}

	for _, a := range pulse.AttackIDs {
		if a.ID != "" {
			rec.TTPs = append(rec.TTPs, strings.ToUpper(a.ID))
		}
	}

	for _, ind := range pulse.Indicators {
		category := otxIOCCategory(ind.Type)
		if category == "" {
			continue
		}
		rec.IOCs.Add(category, ind.Indicator)
		if category == intel.IOCCVE {
			rec.CVE = append(rec.CVE, ind.Indicator)
		}
	}

	rec.ThreatType = otxThreatType(pulse, len(rec.CVE) > 0)
	return rec
}

// otxIOCCategory maps an OTX indicator type onto an IOC category.
func otxIOCCategory(otxType string) string {
	switch otxType {
	case "IPv4", "IPv6":
		return intel.IOCIPAddresses
	case "domain", "hostname":
		return intel.IOCDomains
	case "URL", "URI":
		return intel.IOCURLs
	case "FileHash-MD5", "FileHash-SHA1", "FileHash-SHA256":
		return intel.IOCFileHashes
	case "email":
		return intel.IOCEmailAddresses
	case "CVE":
		return intel.IOCCVE
	default:
		return ""
	}
}

// otxThreatType maps pulse tags onto the pipeline threat types.
func otxThreatType(pulse OTXPulse, hasCVE bool) string {
	tags := strings.ToLower(strings.Join(pulse.Tags, " "))

	switch {
	case strings.Contains(tags, "ransomware"), strings.Contains(tags, "malware"),
		strings.Contains(tags, "trojan"), strings.Contains(tags, "c2"):
		return intel.ThreatTypeMalware
	case strings.Contains(tags, "phishing"), strings.Contains(tags, "bec"),
		strings.Contains(tags, "fraud"):
		return intel.ThreatTypeFraud
	case hasCVE, strings.Contains(tags, "vulnerability"), strings.Contains(tags, "exploit"):
		return intel.ThreatTypeVulnerability
	default:
		return ""
	}
}

// otxSeverity ranks a pulse by its tags, then by a named adversary.
func otxSeverity(pulse OTXPulse) string {
	tags := strings.ToLower(strings.Join(pulse.Tags, " "))

	switch {
	case strings.Contains(tags, "apt") || strings.Contains(tags, "ransomware"):
		return intel.SeverityCritical
	case strings.Contains(tags, "malware") || strings.Contains(tags, "c2"):
		return intel.SeverityHigh
	case strings.Contains(tags, "phishing") || strings.Contains(tags, "botnet"):
		return intel.SeverityMedium
	}

	if pulse.Adversary != "" {
		return intel.SeverityHigh
	}
	return intel.SeverityLow
}

// industrySectors maps free-text industry names onto supported sectors.
func industrySectors(industries []string) []string {
	var sectors []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			sectors = append(sectors, s)
		}
	}
	for _, industry := range industries {
		lower := strings.ToLower(industry)
		switch {
		case strings.Contains(lower, "financ"), strings.Contains(lower, "bank"),
			strings.Contains(lower, "insurance"):
			add(intel.SectorFinancialServices)
		case strings.Contains(lower, "agricult"), strings.Contains(lower, "food"),
			strings.Contains(lower, "farm"):
			add(intel.SectorAgriculture)
		}
	}
	return sectors
}

// OTX API types

// OTXPulseListResponse is the /pulses/subscribed response.
type OTXPulseListResponse struct {
	Results []OTXPulse `json:"results"`
	Count   int        `json:"count"`
	Next    string     `json:"next,omitempty"`
}

// OTXPulse represents an OTX pulse (threat report).
type OTXPulse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Created     string         `json:"created"`
	Modified    string         `json:"modified"`
	Tags        []string       `json:"tags"`
	Adversary   string         `json:"adversary,omitempty"`
	Industries  []string       `json:"industries,omitempty"`
	AttackIDs   []OTXAttackID  `json:"attack_ids,omitempty"`
	Indicators  []OTXIndicator `json:"indicators,omitempty"`
}

// OTXAttackID is an ATT&CK technique referenced by a pulse.
type OTXAttackID struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// OTXIndicator represents an indicator within a pulse.
type OTXIndicator struct {
	ID          int64  `json:"id"`
	Indicator   string `json:"indicator"`
	Type        string `json:"type"`
	Created     string `json:"created"`
	Description string `json:"description,omitempty"`
}
