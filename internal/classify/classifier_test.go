package classify

import (
	"reflect"
	"sync"
	"testing"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// TestCategory verifies threat type to category mapping.
func TestCategory(t *testing.T) {
	tests := []struct {
		name       string
		threatType string
		ttps       []string
		want       string
	}{
		{"ransomware", "malware", []string{"T1566.001", "T1486"}, "ransomware"},
		{"ransomware sub-technique", "malware", []string{"T1486.001"}, "ransomware"},
		{"plain malware", "malware", []string{"T1059"}, "malware"},
		{"fraud", "fraud", nil, "financial_fraud"},
		{"vulnerability", "vulnerability", []string{"T1486"}, "exploitation"},
		{"unknown", "unknown", nil, "other"},
		{"empty", "", nil, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Category(tt.threatType, tt.ttps); got != tt.want {
				t.Errorf("Category() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestClassify verifies the full classification block.
func TestClassify(t *testing.T) {
	c := NewClassifier()
	ind := intel.Indicator{Properties: intel.Properties{
		ThreatType: "malware",
		TTPs:       []string{"T1486", "T1566.001"},
	}}

	got := c.Classify(ind, "financial_services")
	want := intel.Classification{
		Type:          "malware",
		Category:      "ransomware",
		AttackVectors: []string{"phishing"},
		TargetAssets:  []string{"core_banking", "wire_transfer", "customer_data", "authentication_systems"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Classify() = %+v, want %+v", got, want)
	}

	generic := c.Classify(intel.Indicator{}, "")
	if generic.Type != "unknown" || generic.Category != "other" {
		t.Errorf("unexpected generic classification: %+v", generic)
	}
	if !reflect.DeepEqual(generic.TargetAssets, DefaultTargetAssets) {
		t.Errorf("target assets = %v", generic.TargetAssets)
	}
	if generic.AttackVectors == nil || len(generic.AttackVectors) != 0 {
		t.Errorf("attack vectors = %v", generic.AttackVectors)
	}
}

// TestClassify_TargetAssetsNotShared verifies callers cannot mutate the table.
func TestClassify_TargetAssetsNotShared(t *testing.T) {
	c := NewClassifier()
	got := c.Classify(intel.Indicator{}, "agriculture")
	got.TargetAssets[0] = "changed"

	if TargetAssets["agriculture"][0] != "iot_devices" {
		t.Error("target asset table was mutated")
	}
}

// =============================================================================
// Recommendation Tests
// =============================================================================

// TestRecommend verifies rule group order and literals.
func TestRecommend(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name   string
		ind    intel.Indicator
		sector string
		want   []string
	}{
		{
			name: "general only",
			ind:  intel.Indicator{Properties: intel.Properties{Severity: "low"}},
			want: []string{
				"Update SIEM correlation rules with new IOCs",
				"Document threat in incident tracking system",
			},
		},
		{
			name:   "critical ransomware for financial services",
			ind:    intel.Indicator{Properties: intel.Properties{Severity: "critical", ThreatType: "malware", TTPs: []string{"T1486", "T1566.001"}}},
			sector: "financial_services",
			want: []string{
				"IMMEDIATE ACTION REQUIRED: Activate incident response team",
				"Implement emergency blocking of known IOCs",
				"Verify backup integrity and offline backup availability",
				"Review and test ransomware response procedures",
				"Implement network segmentation to limit lateral movement",
				"Review FFIEC Cybersecurity Assessment Tool controls",
				"Notify FS-ISAC of threat indicators",
				"Update SIEM correlation rules with new IOCs",
				"Document threat in incident tracking system",
			},
		},
		{
			name:   "vulnerability with phishing ttp for agriculture",
			ind:    intel.Indicator{Properties: intel.Properties{Severity: "high", ThreatType: "vulnerability", TTPs: []string{"T1566"}}},
			sector: "agriculture",
			want: []string{
				"Conduct phishing awareness training for staff",
				"Implement email authentication (SPF, DKIM, DMARC)",
				"Review wire transfer authorization procedures",
				"Conduct vulnerability scan for affected systems",
				"Apply security patches immediately",
				"Implement compensating controls if patching not possible",
				"Review IoT device security configurations",
				"Assess supply chain partner security posture",
				"Update SIEM correlation rules with new IOCs",
				"Document threat in incident tracking system",
			},
		},
		{
			name: "sub-technique does not trigger exact ttp groups",
			ind:  intel.Indicator{Properties: intel.Properties{TTPs: []string{"T1486.001", "T1566.002"}}},
			want: []string{
				"Update SIEM correlation rules with new IOCs",
				"Document threat in incident tracking system",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Recommend(tt.ind, tt.sector); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Recommend() =\n%v\nwant\n%v", got, tt.want)
			}
		})
	}
}

// TestRecommend_Concurrent verifies the classifier is safe to share.
func TestRecommend_Concurrent(t *testing.T) {
	c := NewClassifier()
	ind := intel.Indicator{Properties: intel.Properties{Severity: "critical", ThreatType: "fraud"}}
	want := c.Recommend(ind, "financial_services")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := c.Recommend(ind, "financial_services"); !reflect.DeepEqual(got, want) {
				t.Errorf("concurrent result differs: %v", got)
			}
		}()
	}
	wg.Wait()
}
