// Package scoring computes the weighted risk score and priority tier of an
// indicator.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// Sub-score weights. They sum to 1.0.
const (
	WeightSeverity        = 0.35
	WeightConfidence      = 0.25
	WeightSectorRelevance = 0.20
	WeightRecency         = 0.10
	WeightIOCCount        = 0.10
)

// Priority thresholds on the final risk score.
const (
	ThresholdCritical = 80.0
	ThresholdHigh     = 60.0
	ThresholdMedium   = 40.0
)

// Defaults used when an input is missing or unusable.
const (
	DefaultSectorRelevance = 50.0
	DefaultRecencyScore    = 50.0
	DefaultSeverityScore   = 50.0
)

// Sector relevance contributions.
const (
	sectorMatchPoints  = 50.0
	ttpMatchPoints     = 30.0
	keywordMatchPoints = 20.0
	maxSectorRelevance = 100.0
)

var severityScores = map[string]float64{
	intel.SeverityCritical: 100,
	intel.SeverityHigh:     75,
	intel.SeverityMedium:   50,
	intel.SeverityLow:      25,
}

// Breakdown lists every sub-score and the weighted total.
type Breakdown struct {
	Severity        float64 `json:"severity"`
	Confidence      float64 `json:"confidence"`
	SectorRelevance float64 `json:"sector_relevance"`
	Recency         float64 `json:"recency"`
	IOCCount        float64 `json:"ioc_count"`
	Total           float64 `json:"total"`
}

// Engine scores indicators against a set of sector patterns.
type Engine struct {
	patterns map[string]SectorPattern
}

// NewEngine creates an engine using the default sector patterns overlaid with
// overrides. An override replaces the whole pattern for its sector.
func NewEngine(overrides map[string]SectorPattern) *Engine {
	patterns := DefaultSectorPatterns()
	for sector, p := range overrides {
		patterns[sector] = p.normalized()
	}
	return &Engine{patterns: patterns}
}

// Pattern returns the pattern configured for sector.
func (e *Engine) Pattern(sector string) (SectorPattern, bool) {
	p, ok := e.patterns[sector]
	return p, ok
}

// Score returns the full breakdown for ind. sector may be empty, in which case
// sector relevance takes DefaultSectorRelevance.
func (e *Engine) Score(ind intel.Indicator, sector string, now time.Time) Breakdown {
	b := Breakdown{
		Severity:        SeverityScore(ind.Properties.Severity),
		Confidence:      float64(ind.Confidence),
		SectorRelevance: e.SectorRelevance(ind, sector),
		Recency:         RecencyScore(ind.Created, now),
		IOCCount:        IOCCountScore(ind.Properties.IOCs.Count()),
	}

	total := b.Severity*WeightSeverity +
		b.Confidence*WeightConfidence +
		b.SectorRelevance*WeightSectorRelevance +
		b.Recency*WeightRecency +
		b.IOCCount*WeightIOCCount

	b.Total = Round2(total)
	return b
}

// RiskScore returns the weighted risk score rounded to two decimals.
func (e *Engine) RiskScore(ind intel.Indicator, sector string, now time.Time) float64 {
	return e.Score(ind, sector, now).Total
}

// SectorRelevance scores how relevant ind is to sector, from 0 to 100. An
// empty sector returns DefaultSectorRelevance. A sector without a configured
// pattern can still earn the sector-match points.
func (e *Engine) SectorRelevance(ind intel.Indicator, sector string) float64 {
	if sector == "" {
		return DefaultSectorRelevance
	}

	score := 0.0
	if ind.HasSector(sector) {
		score += sectorMatchPoints
	}

	pattern, ok := e.patterns[sector]
	if ok {
		if pattern.matchesTTP(ind.Properties.TTPs) {
			score += ttpMatchPoints
		}
		if pattern.matchesKeyword(ind.Description) {
			score += keywordMatchPoints
		}
	}

	return math.Min(score, maxSectorRelevance)
}

// SeverityScore maps a severity label to its sub-score.
func SeverityScore(severity string) float64 {
	if s, ok := severityScores[strings.ToLower(severity)]; ok {
		return s
	}
	return DefaultSeverityScore
}

// RecencyScore scores the age of created, in whole days, relative to now.
// A missing or unparsable timestamp scores DefaultRecencyScore.
func RecencyScore(created string, now time.Time) float64 {
	t, err := intel.ParseTimestamp(created)
	if err != nil {
		return DefaultRecencyScore
	}

	days := math.Floor(now.Sub(t).Hours() / 24)
	switch {
	case days <= 1:
		return 100
	case days <= 7:
		return 80
	case days <= 30:
		return 60
	case days <= 90:
		return 40
	default:
		return 20
	}
}

// IOCCountScore scores the total number of IOC values.
func IOCCountScore(count int) float64 {
	switch {
	case count >= 10:
		return 100
	case count >= 5:
		return 75
	case count >= 3:
		return 50
	case count >= 1:
		return 25
	default:
		return 0
	}
}

// PriorityFor maps a risk score to its priority tier.
func PriorityFor(score float64) string {
	switch {
	case score >= ThresholdCritical:
		return intel.PriorityCritical
	case score >= ThresholdHigh:
		return intel.PriorityHigh
	case score >= ThresholdMedium:
		return intel.PriorityMedium
	default:
		return intel.PriorityLow
	}
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
