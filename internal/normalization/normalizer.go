// Package normalization converts raw feed records into canonical indicators.
package normalization

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/parallel"
)

// SourceReliability maps a feed source to the confidence assigned to its
// records. Sources not listed get intel.DefaultConfidence.
var SourceReliability = map[string]int{
	"CISA_AIS": 95, // tier-1 government feed
	"FS_ISAC":  90, // sector sharing consortium
	"FBI_IC3":  90,
	"MISP":     80,
	"OSINT":    70,
	"OTX":      70,
}

// NormalizerConfig holds configuration for normalization
type NormalizerConfig struct {
	Workers int `yaml:"workers"`
	// SourceReliability overrides entries of the built-in table.
	SourceReliability map[string]int `yaml:"source_reliability"`
	// Clock supplies the normalization time; defaults to time.Now.
	Clock func() time.Time `yaml:"-"`
}

// Normalizer handles schema normalization
type Normalizer struct {
	config      NormalizerConfig
	reliability map[string]int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewNormalizer creates a new normalizer
func NewNormalizer(cfg NormalizerConfig, logger *zap.Logger, metrics *observability.Metrics) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	reliability := make(map[string]int, len(SourceReliability)+len(cfg.SourceReliability))
	for k, v := range SourceReliability {
		reliability[k] = v
	}
	for k, v := range cfg.SourceReliability {
		reliability[k] = v
	}

	return &Normalizer{
		config:      cfg,
		reliability: reliability,
		logger:      logger,
		metrics:     metrics,
	}
}

// Normalize converts a raw record to a canonical indicator. Missing fields
// take their documented defaults; no field is required. Severity is trimmed
// and lowercased.
//
// A record without a timestamp is stamped with the current time before its
// identifier is derived, so the same untimed record normalized twice gets two
// different identifiers.
func (n *Normalizer) Normalize(raw intel.RawThreatRecord) intel.Indicator {
	now := intel.FormatTimestamp(n.config.Clock())

	timestamp := raw.Timestamp
	if timestamp == "" {
		timestamp = now
	}

	name := raw.Name
	if name == "" {
		name = intel.DefaultName
	}
	severity := strings.ToLower(strings.TrimSpace(raw.Severity))
	if severity == "" {
		severity = intel.DefaultSeverity
	}
	source := raw.Source
	if source == "" {
		source = intel.DefaultSource
	}

	iocs := raw.IOCs.Clone()
	if iocs == nil {
		iocs = intel.IOCMap{}
	}

	return intel.Indicator{
		ID:          GenerateID(raw.Name, timestamp),
		Type:        intel.ObjectType,
		SpecVersion: intel.SpecVersion,
		Created:     timestamp,
		Modified:    now,
		Name:        name,
		Description: raw.Description,
		PatternType: intel.PatternType,
		ValidFrom:   timestamp,
		Labels:      labels(raw),
		Confidence:  n.confidence(raw.Source),
		ExternalReferences: []intel.ExternalReference{{
			SourceName:  source,
			Description: raw.Description,
		}},
		ObjectMarkingRefs: []string{intel.MarkingTLPAmber},
		Properties: intel.Properties{
			ThreatType: raw.ThreatType,
			Severity:   severity,
			Sectors:    nonNil(raw.Sectors),
			IOCs:       iocs,
			TTPs:       nonNil(raw.TTPs),
			CVE:        nonNil(raw.CVE),
		},
	}
}

// NormalizeAll normalizes every record concurrently. Output order matches
// input order; a record whose normalization fails is logged and skipped.
func (n *Normalizer) NormalizeAll(raws []intel.RawThreatRecord) []intel.Indicator {
	start := time.Now()
	defer n.metrics.ObserveStage("normalize", start)

	out, failed := parallel.Map(raws, n.config.Workers, func(raw intel.RawThreatRecord) (intel.Indicator, error) {
		return n.Normalize(raw), nil
	})

	for _, f := range failed {
		n.metrics.IncRecordFailure("normalize")
		n.logger.Error("Failed to normalize record",
			zap.Int("index", f.Index),
			zap.String("name", raws[f.Index].Name),
			zap.Error(f.Err),
		)
	}

	for _, raw := range raws {
		source := raw.Source
		if source == "" {
			source = intel.DefaultSource
		}
		n.metrics.IncIngested(source, 1)
	}

	n.logger.Debug("Normalized records",
		zap.Int("input", len(raws)),
		zap.Int("output", len(out)),
	)

	return out
}

// GenerateID derives the indicator identifier from the record name and
// timestamp.
func GenerateID(name, timestamp string) string {
	sum := md5.Sum([]byte(name + timestamp))
	return intel.IDPrefix + hex.EncodeToString(sum[:])
}

func (n *Normalizer) confidence(source string) int {
	if c, ok := n.reliability[source]; ok {
		return c
	}
	return intel.DefaultConfidence
}

// labels lists the threat type first, then sectors in their original order.
func labels(raw intel.RawThreatRecord) []string {
	out := make([]string, 0, len(raw.Sectors)+1)
	if raw.ThreatType != "" {
		out = append(out, raw.ThreatType)
	}
	return append(out, raw.Sectors...)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
