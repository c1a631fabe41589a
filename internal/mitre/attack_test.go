package mitre

import (
	"reflect"
	"testing"
)

// TestAttackVectors verifies prefix matching and ordering.
func TestAttackVectors(t *testing.T) {
	tests := []struct {
		name string
		ttps []string
		want []string
	}{
		{"none", nil, []string{}},
		{"unmatched", []string{"T1486"}, []string{}},
		{"sub-technique", []string{"T1566.002"}, []string{"phishing"}},
		{"ttp order", []string{"T1110", "T1190", "T1566.001"}, []string{"brute_force", "exploit_public_facing", "phishing"}},
		{"repeated", []string{"T1200", "T1200.001"}, []string{"hardware_additions", "hardware_additions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AttackVectors(tt.ttps); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AttackVectors(%v) = %v, want %v", tt.ttps, got, tt.want)
			}
		})
	}
}

// TestGetTechnique verifies lookup and sub-technique fallback.
func TestGetTechnique(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		id       string
		wantName string
		wantOK   bool
	}{
		{"T1486", "Data Encrypted for Impact", true},
		{"t1566.001", "Spearphishing Attachment", true},
		{"T1190.999", "Exploit Public-Facing Application", true},
		{"T9999", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			tech, ok := c.GetTechnique(tt.id)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && tech.Name != tt.wantName {
				t.Errorf("name = %q, want %q", tech.Name, tt.wantName)
			}
		})
	}
}

// TestGetTactic verifies lookup by id and short name.
func TestGetTactic(t *testing.T) {
	c := NewCatalog()
	for _, key := range []string{"TA0040", "impact"} {
		tac, ok := c.GetTactic(key)
		if !ok || tac.Name != "Impact" {
			t.Errorf("GetTactic(%q) = %+v, %v", key, tac, ok)
		}
	}
}

// TestGetTechniquesByTactic verifies filtering by tactic.
func TestGetTechniquesByTactic(t *testing.T) {
	c := NewCatalog()

	got := c.GetTechniquesByTactic("impact")
	var ids []string
	for _, tech := range got {
		ids = append(ids, tech.ID)
	}
	want := []string{"T1486", "T1498", "T1657"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("impact techniques = %v, want %v", ids, want)
	}
}

// TestCoverage verifies per-technique indicator counts.
func TestCoverage(t *testing.T) {
	c := NewCatalog()

	cov := c.Coverage([][]string{
		{"T1486", "T1566.001", "T1486"},
		{"T1486"},
		{"T4242"},
	})

	if len(cov) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(cov))
	}
	if cov[0].TechniqueID != "T1486" || cov[0].Indicators != 2 {
		t.Errorf("unexpected first entry: %+v", cov[0])
	}
	if cov[2].TechniqueID != "T4242" || cov[2].TechniqueName != "" {
		t.Errorf("unexpected unknown entry: %+v", cov[2])
	}
	if cov[0].TechniqueURL != "https://attack.mitre.org/techniques/T1486/" {
		t.Errorf("technique url = %q", cov[0].TechniqueURL)
	}
}

// TestByTactic verifies coverage is grouped under catalog tactics with the
// unobserved techniques listed.
func TestByTactic(t *testing.T) {
	c := NewCatalog()

	groups := c.ByTactic(c.Coverage([][]string{
		{"T1486", "T1566.001"},
		{"T1190"},
		{"T4242"},
	}))

	if len(groups) != 8 {
		t.Fatalf("expected 8 tactics, got %d", len(groups))
	}
	if groups[0].Tactic.ID != "TA0001" || groups[len(groups)-1].Tactic.ID != "TA0040" {
		t.Errorf("tactics out of order: first %s last %s", groups[0].Tactic.ID, groups[len(groups)-1].Tactic.ID)
	}

	byID := make(map[string]TacticCoverage, len(groups))
	for _, g := range groups {
		byID[g.Tactic.ID] = g
	}

	tests := []struct {
		tactic         string
		wantObserved   []string
		wantUnobserved []string
	}{
		{"TA0001", []string{"T1190", "T1566.001"}, []string{"T1078", "T1195", "T1200", "T1566", "T1566.002"}},
		{"TA0040", []string{"T1486"}, []string{"T1498", "T1657"}},
		{"TA0006", []string{}, []string{"T1110"}},
	}

	for _, tt := range tests {
		t.Run(tt.tactic, func(t *testing.T) {
			g := byID[tt.tactic]
			observed := make([]string, 0, len(g.Observed))
			for _, cov := range g.Observed {
				observed = append(observed, cov.TechniqueID)
			}
			if !reflect.DeepEqual(observed, tt.wantObserved) {
				t.Errorf("observed = %v, want %v", observed, tt.wantObserved)
			}
			if !reflect.DeepEqual(g.Unobserved, tt.wantUnobserved) {
				t.Errorf("unobserved = %v, want %v", g.Unobserved, tt.wantUnobserved)
			}
			if g.Tactic.URL == "" {
				t.Error("tactic url missing")
			}
		})
	}
}
