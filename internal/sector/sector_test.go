package sector

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

func scored(id, threatType, severity string, risk float64, description string, sectors ...string) intel.Indicator {
	return intel.Indicator{
		ID:          id,
		Name:        id,
		Description: description,
		Properties: intel.Properties{
			ThreatType: threatType,
			Severity:   severity,
			Sectors:    sectors,
			IOCs:       intel.IOCMap{},
		},
		Analysis: &intel.Analysis{RiskScore: risk},
	}
}

func ids(in []intel.Indicator) []string {
	out := make([]string, len(in))
	for i, ind := range in {
		out[i] = ind.ID
	}
	return out
}

// =============================================================================
// Financial Services Tests
// =============================================================================

// TestFinancialAnalyzer_SubsetAndOrder verifies filtering and priority ordering.
func TestFinancialAnalyzer_SubsetAndOrder(t *testing.T) {
	a, err := NewFinancialAnalyzer(FinancialConfig{}, nil, nil)
	if err != nil {
		t.Fatalf("NewFinancialAnalyzer() error = %v", err)
	}

	input := []intel.Indicator{
		scored("ag-only", "vulnerability", "critical", 95, "", "agriculture"),
		scored("fraud", "fraud", "high", 70.9, "", "financial_services", "agriculture"),
		scored("malware", "malware", "critical", 98.75, "", "financial_services"),
		scored("other", "", "low", 70.2, "", "financial_services"),
	}

	out, err := a.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if !reflect.DeepEqual(ids(out), []string{"malware", "fraud", "other"}) {
		t.Errorf("order = %v", ids(out))
	}
	for _, ind := range out {
		if !ind.HasSector("financial_services") {
			t.Errorf("%s is not a financial-services indicator", ind.ID)
		}
		if ind.FinancialServicesAnalysis == nil || ind.AgricultureAnalysis != nil {
			t.Errorf("%s has unexpected sector blocks", ind.ID)
		}
	}
	for _, ind := range input {
		if ind.FinancialServicesAnalysis != nil {
			t.Errorf("input %s was modified", ind.ID)
		}
	}
}

// TestFinancialAnalyzer_Block verifies the financial-services block contents.
func TestFinancialAnalyzer_Block(t *testing.T) {
	a, _ := NewFinancialAnalyzer(FinancialConfig{}, nil, nil)

	out, err := a.Analyze(context.Background(), []intel.Indicator{
		scored("m", "malware", "critical", 98.75, "", "financial_services"),
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	fa := out[0].FinancialServicesAnalysis

	if fa.InstitutionType != "credit_union" {
		t.Errorf("institution = %q", fa.InstitutionType)
	}
	if !reflect.DeepEqual(fa.AffectedAssets, []string{"core_banking", "endpoints", "file_servers"}) {
		t.Errorf("assets = %v", fa.AffectedAssets)
	}
	if len(fa.ComplianceImpact) != 2 || !fa.ComplianceImpact["FFIEC"].ReportingRequired {
		t.Errorf("compliance impact = %+v", fa.ComplianceImpact)
	}
	if fa.BusinessImpact.Operational != "severe" || fa.BusinessImpact.EstimatedDowntimeHours != 24 {
		t.Errorf("business impact = %+v", fa.BusinessImpact)
	}
	if !fa.RegulatoryReporting.Required || len(fa.RegulatoryReporting.Agencies) != 4 {
		t.Errorf("regulatory reporting = %+v", fa.RegulatoryReporting)
	}
	if fa.MitigationPriority != 98 {
		t.Errorf("mitigation priority = %d, want 98", fa.MitigationPriority)
	}
}

// TestFinancialAnalyzer_AffectedAssetsFallback verifies the institution fallback.
func TestFinancialAnalyzer_AffectedAssetsFallback(t *testing.T) {
	tests := []struct {
		institution string
		want        []string
	}{
		{"credit_union", []string{"core_banking", "online_banking"}},
		{"farm_credit", []string{"loan_origination", "agricultural_data"}},
		{"community_bank", []string{"core_banking", "commercial_lending"}},
	}

	for _, tt := range tests {
		t.Run(tt.institution, func(t *testing.T) {
			a, err := NewFinancialAnalyzer(FinancialConfig{InstitutionType: tt.institution}, nil, nil)
			if err != nil {
				t.Fatalf("NewFinancialAnalyzer() error = %v", err)
			}
			out, _ := a.Analyze(context.Background(), []intel.Indicator{
				scored("x", "espionage", "medium", 40, "", "financial_services"),
			})
			if got := out[0].FinancialServicesAnalysis.AffectedAssets; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("assets = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMitigationPriority verifies the high-risk multiplier and cap.
func TestMitigationPriority(t *testing.T) {
	a, _ := NewFinancialAnalyzer(FinancialConfig{InstitutionType: "credit_union"}, nil, nil)

	tests := []struct {
		name       string
		threatType string
		risk       float64
		want       int
	}{
		{"not high risk", "malware", 78.9, 78},
		{"high risk boosted", "ransomware", 50, 60},
		{"boost capped", "wire_fraud", 90, 100},
		{"unscored", "credential_theft", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := scored("x", tt.threatType, "high", tt.risk, "", "financial_services")
			if got := a.MitigationPriority(ind); got != tt.want {
				t.Errorf("MitigationPriority() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestNewFinancialAnalyzer_UnknownInstitution verifies construction fails.
func TestNewFinancialAnalyzer_UnknownInstitution(t *testing.T) {
	_, err := NewFinancialAnalyzer(FinancialConfig{InstitutionType: "hedge_fund"}, nil, nil)
	if !errors.Is(err, ErrUnknownInstitution) {
		t.Errorf("expected ErrUnknownInstitution, got %v", err)
	}
}

// =============================================================================
// Precondition Tests
// =============================================================================

// TestAnalyze_NotScored verifies a relevant unscored indicator fails the batch.
func TestAnalyze_NotScored(t *testing.T) {
	fin, _ := NewFinancialAnalyzer(FinancialConfig{}, nil, nil)
	ag, _ := NewAgricultureAnalyzer(AgricultureConfig{}, nil, nil)

	unscored := intel.Indicator{ID: "raw", Properties: intel.Properties{Sectors: []string{"financial_services", "agriculture"}}}

	for _, a := range []Analyzer{fin, ag} {
		t.Run(a.Sector(), func(t *testing.T) {
			_, err := a.Analyze(context.Background(), []intel.Indicator{unscored})
			if !errors.Is(err, ErrNotScored) {
				t.Errorf("expected ErrNotScored, got %v", err)
			}
		})
	}

	irrelevant := intel.Indicator{ID: "other", Properties: intel.Properties{Sectors: []string{"energy"}}}
	out, err := fin.Analyze(context.Background(), []intel.Indicator{irrelevant})
	if err != nil || len(out) != 0 {
		t.Errorf("irrelevant unscored indicator should be skipped: %v %v", out, err)
	}
}

// TestAnalyze_Empty verifies empty input is valid.
func TestAnalyze_Empty(t *testing.T) {
	fin, _ := NewFinancialAnalyzer(FinancialConfig{}, nil, nil)
	ag, _ := NewAgricultureAnalyzer(AgricultureConfig{}, nil, nil)

	for _, a := range []Analyzer{fin, ag} {
		out, err := a.Analyze(context.Background(), nil)
		if err != nil || out == nil || len(out) != 0 {
			t.Errorf("%s: expected empty output, got %v %v", a.Sector(), out, err)
		}
	}
}

// TestAnalyze_CanceledContext verifies a canceled context is reported.
func TestAnalyze_CanceledContext(t *testing.T) {
	ag, _ := NewAgricultureAnalyzer(AgricultureConfig{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ag.Analyze(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// =============================================================================
// Agriculture Tests
// =============================================================================

// TestAgricultureAnalyzer_IoTFilter verifies IoT records reach both sets and
// non-IoT records only the agriculture set.
func TestAgricultureAnalyzer_IoTFilter(t *testing.T) {
	a, _ := NewAgricultureAnalyzer(AgricultureConfig{}, nil, nil)

	input := []intel.Indicator{
		scored("iot", "vulnerability", "critical", 90, "Exploit against IoT sensor network", "agriculture"),
		scored("bec", "fraud", "high", 70, "Business email compromise targeting agricultural lenders", "agriculture", "financial_services"),
		scored("fin", "malware", "critical", 95, "IoT botnet", "financial_services"),
	}

	ag, err := a.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !reflect.DeepEqual(ids(ag), []string{"iot", "bec"}) {
		t.Errorf("agriculture set = %v", ids(ag))
	}

	iot := FilterIoT(ag)
	if !reflect.DeepEqual(ids(iot), []string{"iot"}) {
		t.Errorf("IoT set = %v", ids(iot))
	}
	if FilterIoT(input) == nil || len(FilterIoT(input)) != 0 {
		t.Error("indicators without an agriculture block must not pass the IoT filter")
	}
}

// TestAgricultureAnalyzer_Block verifies the agriculture block contents.
func TestAgricultureAnalyzer_Block(t *testing.T) {
	a, _ := NewAgricultureAnalyzer(AgricultureConfig{}, nil, nil)

	out, _ := a.Analyze(context.Background(), []intel.Indicator{
		scored("x", "vulnerability", "critical", 90, "IoT supply chain device_compromise", "agriculture"),
		scored("y", "fraud", "high", 70, "Invoice scam", "agriculture"),
	})

	x := out[0].AgricultureAnalysis
	if !reflect.DeepEqual(x.AffectedAreas, []string{"iot_devices"}) {
		t.Errorf("affected areas = %v", x.AffectedAreas)
	}
	if x.SupplyChainImpact.Severity != "high" || !x.SupplyChainImpact.FoodSafetyRisk {
		t.Errorf("supply chain impact = %+v", x.SupplyChainImpact)
	}
	if !x.IoTVulnerability.IoTRelevant || x.IoTVulnerability.PatchingDifficulty != "high" {
		t.Errorf("iot vulnerability = %+v", x.IoTVulnerability)
	}
	if len(x.MitigationChallenges) != 5 || x.MitigationChallenges[4] != "IoT device lifecycle management" {
		t.Errorf("challenges = %v", x.MitigationChallenges)
	}
	want := intel.RuralConsiderations{
		LimitedConnectivity: true,
		RemoteLocations:     true,
		LimitedITResources:  true,
		ResponseChallenges:  []string{"geographic_dispersion", "limited_bandwidth", "staff_availability"},
	}
	if !reflect.DeepEqual(x.RuralConsiderations, want) {
		t.Errorf("rural considerations = %+v", x.RuralConsiderations)
	}

	y := out[1].AgricultureAnalysis
	if !reflect.DeepEqual(y.AffectedAreas, []string{"supply_chain"}) {
		t.Errorf("fallback areas = %v", y.AffectedAreas)
	}
	if y.SupplyChainImpact.Severity != "medium" || y.SupplyChainImpact.FoodSafetyRisk {
		t.Errorf("supply chain impact = %+v", y.SupplyChainImpact)
	}
	if y.IoTVulnerability.IoTRelevant || len(y.MitigationChallenges) != 4 {
		t.Errorf("unexpected IoT assessment: %+v %v", y.IoTVulnerability, y.MitigationChallenges)
	}
}

// TestNewAgricultureAnalyzer_UnknownFocusArea verifies construction fails.
func TestNewAgricultureAnalyzer_UnknownFocusArea(t *testing.T) {
	_, err := NewAgricultureAnalyzer(AgricultureConfig{FocusAreas: []string{"aquaculture"}}, nil, nil)
	if !errors.Is(err, ErrUnknownFocusArea) {
		t.Errorf("expected ErrUnknownFocusArea, got %v", err)
	}
}

// TestRegistry verifies lookup by sector name.
func TestRegistry(t *testing.T) {
	fin, _ := NewFinancialAnalyzer(FinancialConfig{}, nil, nil)
	ag, _ := NewAgricultureAnalyzer(AgricultureConfig{}, nil, nil)
	r := NewRegistry(fin, ag)

	if got, err := r.Get("agriculture"); err != nil || got.Sector() != "agriculture" {
		t.Errorf("Get(agriculture) = %v, %v", got, err)
	}
	if _, err := r.Get("energy"); !errors.Is(err, ErrUnknownSector) {
		t.Errorf("expected ErrUnknownSector, got %v", err)
	}
	if !reflect.DeepEqual(r.Sectors(), []string{"agriculture", "financial_services"}) {
		t.Errorf("sectors = %v", r.Sectors())
	}
}
