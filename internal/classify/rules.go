package classify

import (
	"github.com/lvonguyen/sectorintel/internal/intel"
)

// ruleGroup appends its recommendations when applies holds. Groups fire
// independently, in slice order, and identical strings are not collapsed.
type ruleGroup struct {
	name            string
	applies         func(ind intel.Indicator, sector string) bool
	recommendations []string
}

var ruleGroups = []ruleGroup{
	{
		name: "critical",
		applies: func(ind intel.Indicator, _ string) bool {
			return ind.Properties.Severity == intel.SeverityCritical
		},
		recommendations: []string{
			"IMMEDIATE ACTION REQUIRED: Activate incident response team",
			"Implement emergency blocking of known IOCs",
		},
	},
	{
		name: "ransomware",
		applies: func(ind intel.Indicator, _ string) bool {
			return ind.Properties.ThreatType == intel.ThreatTypeMalware || hasTTP(ind, "T1486")
		},
		recommendations: []string{
			"Verify backup integrity and offline backup availability",
			"Review and test ransomware response procedures",
			"Implement network segmentation to limit lateral movement",
		},
	},
	{
		name: "phishing",
		applies: func(ind intel.Indicator, _ string) bool {
			return ind.Properties.ThreatType == intel.ThreatTypeFraud || hasTTP(ind, "T1566")
		},
		recommendations: []string{
			"Conduct phishing awareness training for staff",
			"Implement email authentication (SPF, DKIM, DMARC)",
			"Review wire transfer authorization procedures",
		},
	},
	{
		name: "vulnerability",
		applies: func(ind intel.Indicator, _ string) bool {
			return ind.Properties.ThreatType == intel.ThreatTypeVulnerability
		},
		recommendations: []string{
			"Conduct vulnerability scan for affected systems",
			"Apply security patches immediately",
			"Implement compensating controls if patching not possible",
		},
	},
	{
		name: "financial_services",
		applies: func(_ intel.Indicator, sector string) bool {
			return sector == intel.SectorFinancialServices
		},
		recommendations: []string{
			"Review FFIEC Cybersecurity Assessment Tool controls",
			"Notify FS-ISAC of threat indicators",
		},
	},
	{
		name: "agriculture",
		applies: func(_ intel.Indicator, sector string) bool {
			return sector == intel.SectorAgriculture
		},
		recommendations: []string{
			"Review IoT device security configurations",
			"Assess supply chain partner security posture",
		},
	},
	{
		name:    "general",
		applies: func(intel.Indicator, string) bool { return true },
		recommendations: []string{
			"Update SIEM correlation rules with new IOCs",
			"Document threat in incident tracking system",
		},
	},
}

// hasTTP reports an exact TTP match; sub-techniques do not count.
func hasTTP(ind intel.Indicator, id string) bool {
	for _, ttp := range ind.Properties.TTPs {
		if ttp == id {
			return true
		}
	}
	return false
}
