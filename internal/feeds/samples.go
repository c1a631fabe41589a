package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// SampleCollector serves a fixed set of records stamped with the collection
// time. It stands in for feeds that have no public API.
type SampleCollector struct {
	name    string
	records func() []intel.RawThreatRecord
	clock   func() time.Time
}

// NewSampleCollector returns the built-in collector for name, or an error for
// a feed without sample data.
func NewSampleCollector(name string, clock func() time.Time) (*SampleCollector, error) {
	if clock == nil {
		clock = time.Now
	}
	records, ok := sampleFeeds[name]
	if !ok {
		return nil, fmt.Errorf("no sample data for feed %q", name)
	}
	return &SampleCollector{name: name, records: records, clock: clock}, nil
}

// Name returns the feed identifier.
func (c *SampleCollector) Name() string {
	return c.name
}

// Collect returns the sample records. since is ignored.
func (c *SampleCollector) Collect(ctx context.Context, since time.Time) ([]intel.RawThreatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts := intel.FormatTimestamp(c.clock())
	records := c.records()
	for i := range records {
		records[i].Timestamp = ts
	}
	return records, nil
}

// HealthCheck always succeeds.
func (c *SampleCollector) HealthCheck(ctx context.Context) error {
	return nil
}

var sampleFeeds = map[string]func() []intel.RawThreatRecord{
	FeedCISAAIS: cisaAISRecords,
	FeedFSISAC:  fsISACRecords,
	FeedOSINT:   osintRecords,
}

func cisaAISRecords() []intel.RawThreatRecord {
	return []intel.RawThreatRecord{{
		Source:      FeedCISAAIS,
		ThreatType:  intel.ThreatTypeMalware,
		Name:        "Ransomware Campaign Targeting Financial Institutions",
		Description: "New ransomware variant targeting credit unions and community banks",
		Severity:    intel.SeverityCritical,
		Sectors:     []string{intel.SectorFinancialServices},
		IOCs: intel.IOCMap{
			intel.IOCIPAddresses: []string{"192.0.2.1", "198.51.100.1"},
			intel.IOCDomains:     []string{"malicious-domain.example", "phishing-site.example"},
			intel.IOCFileHashes:  []string{"a1b2c3d4e5f6...", "f6e5d4c3b2a1..."},
		},
		TTPs: []string{"T1486", "T1566.001"},
		CVE:  []string{},
	}}
}

func fsISACRecords() []intel.RawThreatRecord {
	return []intel.RawThreatRecord{{
		Source:      FeedFSISAC,
		ThreatType:  intel.ThreatTypeFraud,
		Name:        "Wire Transfer Fraud Campaign",
		Description: "Business email compromise targeting agricultural lenders",
		Severity:    intel.SeverityHigh,
		Sectors:     []string{intel.SectorFinancialServices, intel.SectorAgriculture},
		IOCs: intel.IOCMap{
			intel.IOCEmailAddresses: []string{"ceo@fake-domain.example"},
			intel.IOCDomains:        []string{"lookalike-bank.example"},
		},
		TTPs: []string{"T1566.002"},
		CVE:  []string{},
	}}
}

func osintRecords() []intel.RawThreatRecord {
	return []intel.RawThreatRecord{{
		Source:      FeedOSINT,
		ThreatType:  intel.ThreatTypeVulnerability,
		Name:        "Critical Vulnerability in Agricultural IoT Devices",
		Description: "Remote code execution vulnerability in widely-used farm sensors",
		Severity:    intel.SeverityCritical,
		Sectors:     []string{intel.SectorAgriculture},
		IOCs: intel.IOCMap{
			intel.IOCCVE: []string{"CVE-2024-XXXXX"},
		},
		TTPs:             []string{"T1190"},
		AffectedProducts: []string{"FarmSensor Pro v2.1", "AgriMonitor 3000"},
	}}
}
