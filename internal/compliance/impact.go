package compliance

import (
	"github.com/lvonguyen/sectorintel/internal/intel"
)

var businessImpacts = map[string]intel.BusinessImpact{
	intel.SeverityCritical: {Operational: "severe", Financial: "high", Reputational: "high", EstimatedDowntimeHours: 24},
	intel.SeverityHigh:     {Operational: "moderate", Financial: "moderate", Reputational: "moderate", EstimatedDowntimeHours: 8},
	intel.SeverityMedium:   {Operational: "low", Financial: "low", Reputational: "low", EstimatedDowntimeHours: 2},
}

// Reporting agencies and deadlines by severity.
var (
	criticalAgencies = []string{"NCUA", "FCA", "FinCEN", "FBI"}
	highAgencies     = []string{"NCUA", "FCA"}
)

const (
	criticalTimeframeHours = 24
	defaultTimeframeHours  = 72
)

// BusinessImpactFor returns the impact table entry for severity. Severities
// other than critical and high use the medium entry.
func BusinessImpactFor(severity string) intel.BusinessImpact {
	if b, ok := businessImpacts[severity]; ok {
		return b
	}
	return businessImpacts[intel.SeverityMedium]
}

// RegulatoryReportingFor returns the notification obligations for severity.
func RegulatoryReportingFor(severity string) intel.RegulatoryReporting {
	r := intel.RegulatoryReporting{
		Required:       RequiresReporting(severity),
		Agencies:       []string{},
		TimeframeHours: defaultTimeframeHours,
	}

	switch severity {
	case intel.SeverityCritical:
		r.Agencies = append(r.Agencies, criticalAgencies...)
		r.TimeframeHours = criticalTimeframeHours
	case intel.SeverityHigh:
		r.Agencies = append(r.Agencies, highAgencies...)
	}
	return r
}
