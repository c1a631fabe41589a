package intel

// FinancialAnalysis is the block owned by the financial-services analyzer.
type FinancialAnalysis struct {
	InstitutionType     string                     `json:"institution_type"`
	AffectedAssets      []string                   `json:"affected_assets"`
	ComplianceImpact    map[string]FrameworkImpact `json:"compliance_impact"`
	BusinessImpact      BusinessImpact             `json:"business_impact"`
	RegulatoryReporting RegulatoryReporting        `json:"regulatory_reporting"`
	MitigationPriority  int                        `json:"mitigation_priority"`
}

// FrameworkImpact is the per-framework compliance assessment.
type FrameworkImpact struct {
	Affected          bool     `json:"affected"`
	ControlsToReview  []string `json:"controls_to_review"`
	ReportingRequired bool     `json:"reporting_required"`
}

// BusinessImpact gives qualitative impact levels for a severity.
type BusinessImpact struct {
	Operational            string `json:"operational"`
	Financial              string `json:"financial"`
	Reputational           string `json:"reputational"`
	EstimatedDowntimeHours int    `json:"estimated_downtime_hours"`
}

// RegulatoryReporting describes mandatory notification obligations.
type RegulatoryReporting struct {
	Required       bool     `json:"required"`
	Agencies       []string `json:"agencies"`
	TimeframeHours int      `json:"timeframe_hours"`
}

// AgricultureAnalysis is the block owned by the agriculture analyzer.
type AgricultureAnalysis struct {
	AffectedAreas        []string            `json:"affected_areas"`
	SupplyChainImpact    SupplyChainImpact   `json:"supply_chain_impact"`
	IoTVulnerability     IoTVulnerability    `json:"iot_vulnerability"`
	RuralConsiderations  RuralConsiderations `json:"rural_considerations"`
	MitigationChallenges []string            `json:"mitigation_challenges"`
}

// SupplyChainImpact assesses the effect on the agricultural supply chain.
type SupplyChainImpact struct {
	Severity       string   `json:"severity"`
	AffectedStages []string `json:"affected_stages"`
	FoodSafetyRisk bool     `json:"food_safety_risk"`
}

// IoTVulnerability flags relevance to farm IoT equipment.
type IoTVulnerability struct {
	IoTRelevant        bool     `json:"iot_relevant"`
	DeviceTypesAtRisk  []string `json:"device_types_at_risk"`
	PatchingDifficulty string   `json:"patching_difficulty"`
}

// RuralConsiderations lists constraints of rural operations.
type RuralConsiderations struct {
	LimitedConnectivity bool     `json:"limited_connectivity"`
	RemoteLocations     bool     `json:"remote_locations"`
	LimitedITResources  bool     `json:"limited_it_resources"`
	ResponseChallenges  []string `json:"response_challenges"`
}

func (f *FinancialAnalysis) clone() *FinancialAnalysis {
	out := *f
	out.AffectedAssets = cloneStrings(f.AffectedAssets)
	out.RegulatoryReporting.Agencies = cloneStrings(f.RegulatoryReporting.Agencies)
	if f.ComplianceImpact != nil {
		out.ComplianceImpact = make(map[string]FrameworkImpact, len(f.ComplianceImpact))
		for k, v := range f.ComplianceImpact {
			v.ControlsToReview = cloneStrings(v.ControlsToReview)
			out.ComplianceImpact[k] = v
		}
	}
	return &out
}

func (a *AgricultureAnalysis) clone() *AgricultureAnalysis {
	out := *a
	out.AffectedAreas = cloneStrings(a.AffectedAreas)
	out.SupplyChainImpact.AffectedStages = cloneStrings(a.SupplyChainImpact.AffectedStages)
	out.IoTVulnerability.DeviceTypesAtRisk = cloneStrings(a.IoTVulnerability.DeviceTypesAtRisk)
	out.RuralConsiderations.ResponseChallenges = cloneStrings(a.RuralConsiderations.ResponseChallenges)
	out.MitigationChallenges = cloneStrings(a.MitigationChallenges)
	return &out
}
