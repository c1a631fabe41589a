package compliance

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// TopItems is the number of high-priority items in a report.
const TopItems = 5

// Report is the compliance view over financial-services indicators.
type Report struct {
	GeneratedAt       string         `json:"generated_at"`
	TotalThreats      int            `json:"total_threats"`
	ComplianceSummary Summaries      `json:"compliance_summary"`
	HighPriorityItems []PriorityItem `json:"high_priority_items"`
}

// FrameworkSummary counts the threats touching one framework.
type FrameworkSummary struct {
	AffectedThreats int `json:"affected_threats"`
	RequiresAction  int `json:"requires_action"`
}

// Summaries holds the per-framework summaries keyed by framework id.
type Summaries map[string]FrameworkSummary

// IDs returns the framework ids in ReportFrameworks order, followed by any
// other ids sorted.
func (s Summaries) IDs() []string {
	ids := make([]string, 0, len(s))
	known := make(map[string]bool, len(ReportFrameworks))
	for _, id := range ReportFrameworks {
		known[id] = true
		if _, ok := s[id]; ok {
			ids = append(ids, id)
		}
	}
	var extra []string
	for id := range s {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

// MarshalJSON writes the summaries as an object whose keys follow IDs.
func (s Summaries) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.IDs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PriorityItem is one entry of the high-priority list.
type PriorityItem struct {
	ID                  string                    `json:"id"`
	Name                string                    `json:"name"`
	Priority            int                       `json:"priority"`
	AffectedAssets      []string                  `json:"affected_assets"`
	RegulatoryReporting intel.RegulatoryReporting `json:"regulatory_reporting"`
}

// BuildReport aggregates indicators carrying a financial-services block.
// Indicators without one are ignored. High-priority items are the top
// entries by mitigation priority; ties keep input order.
func BuildReport(indicators []intel.Indicator, now time.Time) Report {
	analyzed := make([]intel.Indicator, 0, len(indicators))
	for _, ind := range indicators {
		if ind.FinancialServicesAnalysis != nil {
			analyzed = append(analyzed, ind)
		}
	}

	report := Report{
		GeneratedAt:       intel.FormatTimestamp(now),
		TotalThreats:      len(analyzed),
		ComplianceSummary: make(Summaries, len(ReportFrameworks)),
		HighPriorityItems: make([]PriorityItem, 0, TopItems),
	}

	for _, id := range ReportFrameworks {
		var summary FrameworkSummary
		for _, ind := range analyzed {
			impact, ok := ind.FinancialServicesAnalysis.ComplianceImpact[id]
			if !ok {
				continue
			}
			summary.AffectedThreats++
			if impact.ReportingRequired {
				summary.RequiresAction++
			}
		}
		report.ComplianceSummary[id] = summary
	}

	sort.SliceStable(analyzed, func(i, j int) bool {
		return analyzed[i].FinancialServicesAnalysis.MitigationPriority >
			analyzed[j].FinancialServicesAnalysis.MitigationPriority
	})

	for i := 0; i < len(analyzed) && i < TopItems; i++ {
		fa := analyzed[i].FinancialServicesAnalysis
		report.HighPriorityItems = append(report.HighPriorityItems, PriorityItem{
			ID:                  analyzed[i].ID,
			Name:                analyzed[i].Name,
			Priority:            fa.MitigationPriority,
			AffectedAssets:      append([]string(nil), fa.AffectedAssets...),
			RegulatoryReporting: fa.RegulatoryReporting,
		})
	}

	return report
}
