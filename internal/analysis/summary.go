package analysis

import (
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/scoring"
)

// Summary aggregates a scored collection.
type Summary struct {
	TotalThreats         int            `json:"total_threats"`
	AverageRiskScore     float64        `json:"average_risk_score"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
	SectorDistribution   map[string]int `json:"sector_distribution"`
	TypeDistribution     map[string]int `json:"type_distribution"`
	CriticalThreats      int            `json:"critical_threats"`
	HighThreats          int            `json:"high_threats"`
	GeneratedAt          string         `json:"generated_at"`
}

// Summarize aggregates indicators. Indicators without analysis count toward
// the totals with a zero score and no priority. An empty collection yields a
// zero summary.
func Summarize(indicators []intel.Indicator, now time.Time) Summary {
	s := Summary{
		TotalThreats:         len(indicators),
		PriorityDistribution: make(map[string]int),
		SectorDistribution:   make(map[string]int),
		TypeDistribution:     make(map[string]int),
		GeneratedAt:          intel.FormatTimestamp(now),
	}
	if len(indicators) == 0 {
		return s
	}

	total := 0.0
	for i := range indicators {
		ind := &indicators[i]
		total += ind.RiskScore()

		if ind.Analysis != nil {
			s.PriorityDistribution[ind.Analysis.Priority]++
			switch ind.Analysis.Priority {
			case intel.PriorityCritical:
				s.CriticalThreats++
			case intel.PriorityHigh:
				s.HighThreats++
			}
		}
		for _, sector := range ind.Properties.Sectors {
			s.SectorDistribution[sector]++
		}
		s.TypeDistribution[ind.ThreatType()]++
	}

	s.AverageRiskScore = scoring.Round2(total / float64(len(indicators)))
	return s
}

// ByPriority returns the indicators in the given priority tier.
func ByPriority(indicators []intel.Indicator, priority string) []intel.Indicator {
	return filter(indicators, func(ind *intel.Indicator) bool {
		return ind.Analysis != nil && ind.Analysis.Priority == priority
	})
}

// BySector returns the indicators tagged with sector.
func BySector(indicators []intel.Indicator, sector string) []intel.Indicator {
	return filter(indicators, func(ind *intel.Indicator) bool {
		return ind.HasSector(sector)
	})
}

// BySeverity returns the indicators with the given severity.
func BySeverity(indicators []intel.Indicator, severity string) []intel.Indicator {
	return filter(indicators, func(ind *intel.Indicator) bool {
		return ind.Properties.Severity == severity
	})
}

func filter(indicators []intel.Indicator, keep func(*intel.Indicator) bool) []intel.Indicator {
	out := make([]intel.Indicator, 0)
	for i := range indicators {
		if keep(&indicators[i]) {
			out = append(out, indicators[i])
		}
	}
	return out
}
