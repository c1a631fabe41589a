// Package intel defines the raw and canonical threat intelligence records that
// flow through the pipeline.
package intel

// Severity labels.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Priority tiers assigned by the scoring engine.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Supported sectors.
const (
	SectorFinancialServices = "financial_services"
	SectorAgriculture       = "agriculture"
)

// Threat types emitted by the feed adapters.
const (
	ThreatTypeMalware       = "malware"
	ThreatTypeFraud         = "fraud"
	ThreatTypeVulnerability = "vulnerability"
	ThreatTypeUnknown       = "unknown"
)

// Canonical schema constants.
const (
	ObjectType        = "indicator"
	SpecVersion       = "2.1"
	PatternType       = "stix"
	IDPrefix          = "indicator--"
	MarkingTLPAmber   = "marking-definition--tlp-amber"
	DefaultName       = "Unknown Threat"
	DefaultSource     = "unknown"
	DefaultSeverity   = SeverityMedium
	DefaultConfidence = 60
)

// RawThreatRecord is a record as produced by a feed adapter. Field presence
// varies by source; missing fields take documented defaults during
// normalization.
type RawThreatRecord struct {
	Source           string   `json:"source,omitempty"`
	ThreatType       string   `json:"threat_type,omitempty"`
	Name             string   `json:"name,omitempty"`
	Description      string   `json:"description,omitempty"`
	Severity         string   `json:"severity,omitempty"`
	Sectors          []string `json:"sectors,omitempty"`
	IOCs             IOCMap   `json:"iocs,omitempty"`
	Timestamp        string   `json:"timestamp,omitempty"`
	TTPs             []string `json:"ttps,omitempty"`
	CVE              []string `json:"cve,omitempty"`
	AffectedProducts []string `json:"affected_products,omitempty"`
}

// Indicator is the canonical normalized threat record. Later stages attach
// Analysis and the sector blocks to copies; existing fields never change.
type Indicator struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	PatternType        string              `json:"pattern_type"`
	ValidFrom          string              `json:"valid_from"`
	Labels             []string            `json:"labels"`
	Confidence         int                 `json:"confidence"`
	ExternalReferences []ExternalReference `json:"external_references"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs"`
	Properties         Properties          `json:"properties"`

	Analysis                  *Analysis            `json:"analysis,omitempty"`
	FinancialServicesAnalysis *FinancialAnalysis   `json:"financial_services_analysis,omitempty"`
	AgricultureAnalysis       *AgricultureAnalysis `json:"agriculture_analysis,omitempty"`
}

// ExternalReference names the feed an indicator came from.
type ExternalReference struct {
	SourceName  string `json:"source_name"`
	Description string `json:"description"`
}

// Properties carries the threat attributes used for scoring and enrichment.
type Properties struct {
	ThreatType string   `json:"threat_type,omitempty"`
	Severity   string   `json:"severity"`
	Sectors    []string `json:"sectors"`
	IOCs       IOCMap   `json:"iocs"`
	TTPs       []string `json:"ttps"`
	CVE        []string `json:"cve"`
}

// Analysis is the block attached by the scoring and classification stage.
type Analysis struct {
	RiskScore       float64        `json:"risk_score"`
	Priority        string         `json:"priority"`
	Classification  Classification `json:"classification"`
	Recommendations []string       `json:"recommendations"`
	SectorRelevance float64        `json:"sector_relevance"`
	AnalyzedAt      string         `json:"analyzed_at"`
}

// Classification describes what kind of threat an indicator is.
type Classification struct {
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	AttackVectors []string `json:"attack_vectors"`
	TargetAssets  []string `json:"target_assets"`
}

// HasSector reports whether the indicator is tagged with sector.
func (i *Indicator) HasSector(sector string) bool {
	for _, s := range i.Properties.Sectors {
		if s == sector {
			return true
		}
	}
	return false
}

// ThreatType returns the threat type or "unknown" when the feed did not set one.
func (i *Indicator) ThreatType() string {
	if i.Properties.ThreatType == "" {
		return ThreatTypeUnknown
	}
	return i.Properties.ThreatType
}

// RiskScore returns the analysis risk score, or 0 for an unscored indicator.
func (i *Indicator) RiskScore() float64 {
	if i.Analysis == nil {
		return 0
	}
	return i.Analysis.RiskScore
}

// Clone returns a deep copy so a stage can attach its block without touching
// the input.
func (i Indicator) Clone() Indicator {
	out := i
	out.Labels = cloneStrings(i.Labels)
	out.ExternalReferences = append([]ExternalReference(nil), i.ExternalReferences...)
	out.ObjectMarkingRefs = cloneStrings(i.ObjectMarkingRefs)
	out.Properties.Sectors = cloneStrings(i.Properties.Sectors)
	out.Properties.TTPs = cloneStrings(i.Properties.TTPs)
	out.Properties.CVE = cloneStrings(i.Properties.CVE)
	out.Properties.IOCs = i.Properties.IOCs.Clone()

	if i.Analysis != nil {
		a := *i.Analysis
		a.Recommendations = cloneStrings(a.Recommendations)
		a.Classification.AttackVectors = cloneStrings(a.Classification.AttackVectors)
		a.Classification.TargetAssets = cloneStrings(a.Classification.TargetAssets)
		out.Analysis = &a
	}
	if i.FinancialServicesAnalysis != nil {
		out.FinancialServicesAnalysis = i.FinancialServicesAnalysis.clone()
	}
	if i.AgricultureAnalysis != nil {
		out.AgricultureAnalysis = i.AgricultureAnalysis.clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
