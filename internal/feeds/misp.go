package feeds

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// MISPConfig holds MISP settings.
type MISPConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	VerifySSL     bool          `yaml:"verify_ssl"`
	Timeout       time.Duration `yaml:"timeout"`
	PublishedOnly bool          `yaml:"published_only"`
	Limit         int           `yaml:"limit"`
}

// DefaultMISPConfig returns sensible defaults for MISP.
func DefaultMISPConfig() MISPConfig {
	return MISPConfig{
		APIKeyEnv:     "MISP_API_KEY",
		VerifySSL:     true,
		Timeout:       30 * time.Second,
		PublishedOnly: true,
		Limit:         100,
	}
}

var techniqueIDPattern = regexp.MustCompile(`T\d{4}(?:\.\d{3})?`)

// MISPCollector turns MISP events into raw threat records.
type MISPCollector struct {
	config     MISPConfig
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMISPCollector creates a MISP collector.
func NewMISPCollector(config MISPConfig, logger *zap.Logger) (*MISPCollector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey := os.Getenv(config.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("MISP API key not found in env var: %s", config.APIKeyEnv)
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("MISP base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !config.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-hosted MISP with private CA
	}

	return &MISPCollector{
		config: config,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// Name returns the feed identifier.
func (c *MISPCollector) Name() string {
	return FeedMISP
}

// HealthCheck verifies connectivity to MISP.
func (c *MISPCollector) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/servers/getVersion", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("MISP health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("MISP returned status %d", resp.StatusCode)
	}
	return nil
}

// Collect searches events changed since the given time, one record per event.
func (c *MISPCollector) Collect(ctx context.Context, since time.Time) ([]intel.RawThreatRecord, error) {
	searchReq := MISPEventSearchRequest{
		ReturnFormat: "json",
		Timestamp:    since.Unix(),
		Published:    c.config.PublishedOnly,
		Limit:        c.config.Limit,
	}

	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/events/restSearch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MISP search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("MISP returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var searchResp MISPEventSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode MISP response: %w", err)
	}

	records := make([]intel.RawThreatRecord, 0, len(searchResp.Response))
	for _, wrapped := range searchResp.Response {
		records = append(records, eventToRecord(wrapped.Event))
	}

	c.logger.Debug("Fetched MISP events", zap.Int("events", len(records)))
	return records, nil
}

func (c *MISPCollector) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// eventToRecord maps one event onto the raw record shape.
func eventToRecord(event MISPEvent) intel.RawThreatRecord {
	rec := intel.RawThreatRecord{
		Source:      FeedMISP,
		Name:        event.Info,
		Description: event.Info,
		Severity:    threatLevelToSeverity(event.ThreatLevelID),
		IOCs:        intel.IOCMap{},
		Timestamp:   eventTimestamp(event),
	}

	tagNames := make([]string, 0, len(event.Tag))
	for _, t := range event.Tag {
		tagNames = append(tagNames, t.Name)
	}
	rec.Sectors = industrySectors(tagNames)
	rec.TTPs = eventTechniques(event)

	categories := make([]string, 0, len(event.Attribute))
	for _, attr := range event.Attribute {
		categories = append(categories, attr.Category)
		category, value := mispIOC(attr)
		if category == "" {
			continue
		}
		rec.IOCs.Add(category, value)
		if category == intel.IOCCVE {
			rec.CVE = append(rec.CVE, value)
		}
	}

	rec.ThreatType = mispThreatType(tagNames, categories, len(rec.CVE) > 0)
	return rec
}

// eventTechniques collects ATT&CK ids from galaxy clusters and tags, in
// first-seen order.
func eventTechniques(event MISPEvent) []string {
	var ttps []string
	seen := make(map[string]bool)
	add := func(text string) {
		for _, id := range techniqueIDPattern.FindAllString(text, -1) {
			if !seen[id] {
				seen[id] = true
				ttps = append(ttps, id)
			}
		}
	}

	for _, g := range event.Galaxy {
		if g.Type != "mitre-attack-pattern" {
			continue
		}
		for _, cluster := range g.GalaxyCluster {
			for _, id := range cluster.Meta.ExternalID {
				add(id)
			}
			add(cluster.Value)
		}
	}
	for _, t := range event.Tag {
		if strings.HasPrefix(t.Name, "misp-galaxy:mitre-attack-pattern") {
			add(t.Name)
		}
	}
	return ttps
}

// mispIOC maps an attribute onto an IOC category and value. Composite types
// such as "filename|sha256" keep the last component.
func mispIOC(attr MISPAttribute) (string, string) {
	value := attr.Value
	typ := attr.Type
	if i := strings.LastIndex(typ, "|"); i >= 0 {
		typ = typ[i+1:]
		if j := strings.LastIndex(value, "|"); j >= 0 {
			value = value[j+1:]
		}
	}

	switch typ {
	case "ip-src", "ip-dst":
		return intel.IOCIPAddresses, value
	case "domain", "hostname":
		return intel.IOCDomains, value
	case "url", "uri":
		return intel.IOCURLs, value
	case "md5", "sha1", "sha256":
		return intel.IOCFileHashes, value
	case "email", "email-src", "email-dst":
		return intel.IOCEmailAddresses, value
	case "vulnerability":
		return intel.IOCCVE, value
	default:
		return "", ""
	}
}

func mispThreatType(tags, categories []string, hasCVE bool) string {
	joined := strings.ToLower(strings.Join(tags, " "))
	switch {
	case strings.Contains(joined, "ransomware"), strings.Contains(joined, "malware"):
		return intel.ThreatTypeMalware
	case strings.Contains(joined, "phishing"), strings.Contains(joined, "fraud"):
		return intel.ThreatTypeFraud
	case hasCVE:
		return intel.ThreatTypeVulnerability
	}
	for _, c := range categories {
		switch c {
		case "Payload delivery", "Artifacts dropped", "Payload installation", "Persistence mechanism":
			return intel.ThreatTypeMalware
		}
	}
	return ""
}

func threatLevelToSeverity(level string) string {
	switch level {
	case "1":
		return intel.SeverityCritical
	case "2":
		return intel.SeverityHigh
	case "3":
		return intel.SeverityMedium
	default:
		return intel.SeverityLow
	}
}

// eventTimestamp prefers the unix modification time over the event date.
func eventTimestamp(event MISPEvent) string {
	if secs, err := strconv.ParseInt(event.Timestamp, 10, 64); err == nil && secs > 0 {
		return intel.FormatTimestamp(time.Unix(secs, 0))
	}
	return event.Date
}

// MISP API types

// MISPEventSearchRequest is the events/restSearch request body.
type MISPEventSearchRequest struct {
	ReturnFormat string `json:"returnFormat"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	Published    bool   `json:"published,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// MISPEventSearchResponse is the events/restSearch response.
type MISPEventSearchResponse struct {
	Response []struct {
		Event MISPEvent `json:"Event"`
	} `json:"response"`
}

// MISPEvent is a MISP event with its attributes, tags and galaxies.
type MISPEvent struct {
	ID            string          `json:"id"`
	UUID          string          `json:"uuid"`
	Info          string          `json:"info"`
	ThreatLevelID string          `json:"threat_level_id"`
	Published     bool            `json:"published"`
	Date          string          `json:"date"`
	Timestamp     string          `json:"timestamp"`
	Attribute     []MISPAttribute `json:"Attribute,omitempty"`
	Tag           []MISPTag       `json:"Tag,omitempty"`
	Galaxy        []MISPGalaxy    `json:"Galaxy,omitempty"`
}

// MISPAttribute represents a MISP attribute.
type MISPAttribute struct {
	UUID     string `json:"uuid"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Value    string `json:"value"`
	ToIDS    bool   `json:"to_ids"`
}

// MISPTag represents a MISP tag.
type MISPTag struct {
	Name string `json:"name"`
}

// MISPGalaxy is a galaxy attached to an event.
type MISPGalaxy struct {
	Type          string              `json:"type"`
	GalaxyCluster []MISPGalaxyCluster `json:"GalaxyCluster,omitempty"`
}

// MISPGalaxyCluster is one galaxy entry, such as an ATT&CK technique.
type MISPGalaxyCluster struct {
	Value string `json:"value"`
	Meta  struct {
		ExternalID []string `json:"external_id,omitempty"`
	} `json:"meta"`
}
