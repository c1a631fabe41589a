package intel

import (
	"encoding/json"
	"testing"
)

// =============================================================================
// IOC Counting Tests
// =============================================================================

// TestIOCMap_Count verifies lists contribute their length and scalars count once.
func TestIOCMap_Count(t *testing.T) {
	tests := []struct {
		name string
		iocs IOCMap
		want int
	}{
		{"nil map", nil, 0},
		{"empty map", IOCMap{}, 0},
		{"string lists", IOCMap{IOCIPAddresses: []string{"a", "b"}, IOCDomains: []string{"c"}}, 3},
		{"decoded list", IOCMap{IOCDomains: []any{"a", "b", "c"}}, 3},
		{"scalar", IOCMap{IOCCVE: "CVE-2024-0001"}, 1},
		{"mixed", IOCMap{IOCCVE: "CVE-2024-0001", IOCDomains: []string{"x", "y"}}, 3},
		{"empty list", IOCMap{IOCDomains: []string{}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.iocs.Count(); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestIOCMap_DecodedFromJSON verifies JSON-decoded IOC maps count the same as
// typed ones.
func TestIOCMap_DecodedFromJSON(t *testing.T) {
	var raw RawThreatRecord
	body := `{"iocs":{"ip_addresses":["192.0.2.1","198.51.100.1"],"cve":"CVE-2024-1"}}`
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got := raw.IOCs.Count(); got != 3 {
		t.Errorf("expected 3 IOC values, got %d", got)
	}
	if got := raw.IOCs.Values(IOCIPAddresses); len(got) != 2 || got[0] != "192.0.2.1" {
		t.Errorf("unexpected ip values: %v", got)
	}
	if got := raw.IOCs.Values(IOCCVE); len(got) != 1 || got[0] != "CVE-2024-1" {
		t.Errorf("unexpected cve values: %v", got)
	}
}

// =============================================================================
// Clone Tests
// =============================================================================

// TestIndicator_CloneIsIndependent verifies a clone can be modified without
// affecting the original.
func TestIndicator_CloneIsIndependent(t *testing.T) {
	orig := Indicator{
		ID:     "indicator--1",
		Labels: []string{"malware"},
		Properties: Properties{
			Sectors: []string{SectorAgriculture},
			IOCs:    IOCMap{IOCDomains: []string{"a.example"}},
			TTPs:    []string{"T1190"},
		},
		Analysis: &Analysis{RiskScore: 50, Recommendations: []string{"x"}},
	}

	c := orig.Clone()
	c.Labels[0] = "changed"
	c.Properties.Sectors[0] = "changed"
	c.Properties.IOCs.Add(IOCDomains, "b.example")
	c.Analysis.RiskScore = 99
	c.Analysis.Recommendations[0] = "changed"

	if orig.Labels[0] != "malware" {
		t.Error("labels shared with clone")
	}
	if orig.Properties.Sectors[0] != SectorAgriculture {
		t.Error("sectors shared with clone")
	}
	if orig.Properties.IOCs.Count() != 1 {
		t.Error("iocs shared with clone")
	}
	if orig.Analysis.RiskScore != 50 || orig.Analysis.Recommendations[0] != "x" {
		t.Error("analysis shared with clone")
	}
}

// TestIndicator_JSONFieldNames verifies the exported representation uses the
// canonical field names and omits absent sector blocks.
func TestIndicator_JSONFieldNames(t *testing.T) {
	ind := Indicator{ID: "indicator--1", Type: ObjectType, Analysis: &Analysis{Priority: PriorityHigh}}

	data, err := json.Marshal(ind)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"id", "type", "spec_version", "created", "modified", "labels", "confidence", "external_references", "properties", "analysis"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	for _, key := range []string{"financial_services_analysis", "agriculture_analysis"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("unexpected key %q", key)
		}
	}
}

// TestIndicator_ThreatTypeDefault verifies an unset type reports "unknown".
func TestIndicator_ThreatTypeDefault(t *testing.T) {
	var ind Indicator
	if got := ind.ThreatType(); got != ThreatTypeUnknown {
		t.Errorf("expected %q, got %q", ThreatTypeUnknown, got)
	}
	if ind.HasSector(SectorAgriculture) {
		t.Error("empty indicator should not match any sector")
	}
}
