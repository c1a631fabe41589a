// Package classify derives the classification block and the ordered
// recommendation list of an indicator.
package classify

import (
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/mitre"
)

// Categories assigned by Classify.
const (
	CategoryRansomware     = "ransomware"
	CategoryMalware        = "malware"
	CategoryFinancialFraud = "financial_fraud"
	CategoryExploitation   = "exploitation"
	CategoryOther          = "other"
)

// ransomwarePrefix re-labels malware as ransomware.
const ransomwarePrefix = "T1486"

// TargetAssets lists the assets at risk per sector.
var TargetAssets = map[string][]string{
	intel.SectorFinancialServices: {"core_banking", "wire_transfer", "customer_data", "authentication_systems"},
	intel.SectorAgriculture:       {"iot_devices", "supply_chain_systems", "financial_systems", "operational_technology"},
}

// DefaultTargetAssets is used when no sector, or an unknown one, is given.
var DefaultTargetAssets = []string{"network_infrastructure", "endpoints", "data_systems"}

// Classifier is stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the classification of ind for sector.
func (c *Classifier) Classify(ind intel.Indicator, sector string) intel.Classification {
	threatType := ind.ThreatType()

	return intel.Classification{
		Type:          threatType,
		Category:      Category(threatType, ind.Properties.TTPs),
		AttackVectors: mitre.AttackVectors(ind.Properties.TTPs),
		TargetAssets:  targetAssets(sector),
	}
}

// Recommend returns the recommendation list for ind. See rules.go for the
// group order.
func (c *Classifier) Recommend(ind intel.Indicator, sector string) []string {
	out := make([]string, 0, 8)
	for _, g := range ruleGroups {
		if g.applies(ind, sector) {
			out = append(out, g.recommendations...)
		}
	}
	return out
}

// Category maps a threat type and its TTPs to a category.
func Category(threatType string, ttps []string) string {
	switch threatType {
	case intel.ThreatTypeMalware:
		if mitre.HasTechniquePrefix(ttps, ransomwarePrefix) {
			return CategoryRansomware
		}
		return CategoryMalware
	case intel.ThreatTypeFraud:
		return CategoryFinancialFraud
	case intel.ThreatTypeVulnerability:
		return CategoryExploitation
	default:
		return CategoryOther
	}
}

func targetAssets(sector string) []string {
	assets, ok := TargetAssets[sector]
	if !ok {
		assets = DefaultTargetAssets
	}
	out := make([]string, len(assets))
	copy(out, assets)
	return out
}
