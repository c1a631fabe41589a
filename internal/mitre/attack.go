// Package mitre provides the MITRE ATT&CK technique catalog used to derive
// attack vectors and technique coverage from indicator TTPs.
package mitre

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Attack vectors derived from technique prefixes.
const (
	VectorPhishing            = "phishing"
	VectorExploitPublicFacing = "exploit_public_facing"
	VectorValidAccounts       = "valid_accounts"
	VectorBruteForce          = "brute_force"
	VectorHardwareAdditions   = "hardware_additions"
)

// VectorRule maps a technique id prefix to an attack vector.
type VectorRule struct {
	Prefix string
	Vector string
}

// VectorTable is evaluated in order for every TTP. Matches are independent.
var VectorTable = []VectorRule{
	{Prefix: "T1566", Vector: VectorPhishing},
	{Prefix: "T1190", Vector: VectorExploitPublicFacing},
	{Prefix: "T1078", Vector: VectorValidAccounts},
	{Prefix: "T1110", Vector: VectorBruteForce},
	{Prefix: "T1200", Vector: VectorHardwareAdditions},
}

// Catalog holds known techniques and tactics.
type Catalog struct {
	techniques map[string]*Technique
	tactics    map[string]*Tactic
	mu         sync.RWMutex
}

// Technique represents a MITRE ATT&CK technique
type Technique struct {
	ID      string   `json:"id"`   // e.g., "T1486"
	Name    string   `json:"name"` // e.g., "Data Encrypted for Impact"
	Tactics []string `json:"tactics"`
	URL     string   `json:"url"`
}

// Tactic represents a MITRE ATT&CK tactic
type Tactic struct {
	ID        string `json:"id"`         // e.g., "TA0040"
	Name      string `json:"name"`       // e.g., "Impact"
	ShortName string `json:"short_name"` // e.g., "impact"
	URL       string `json:"url"`
}

// Coverage counts how many indicators reference a technique.
type Coverage struct {
	TechniqueID   string   `json:"technique_id"`
	TechniqueName string   `json:"technique_name"`
	TechniqueURL  string   `json:"technique_url,omitempty"`
	Tactics       []string `json:"tactics"`
	Indicators    int      `json:"indicators"`
}

// TacticCoverage is the coverage of one tactic. Unobserved lists the catalog
// techniques of the tactic that no indicator referenced.
type TacticCoverage struct {
	Tactic     Tactic     `json:"tactic"`
	Observed   []Coverage `json:"observed"`
	Unobserved []string   `json:"unobserved"`
}

// NewCatalog creates a catalog seeded with the techniques the feeds report.
func NewCatalog() *Catalog {
	c := &Catalog{
		techniques: make(map[string]*Technique),
		tactics:    make(map[string]*Tactic),
	}
	c.initializeTechniques()
	c.initializeTactics()
	return c
}

// AttackVectors returns the vectors matched by ttps, in TTP order then table
// order. A TTP may match zero or more vectors.
func AttackVectors(ttps []string) []string {
	vectors := make([]string, 0)
	for _, ttp := range ttps {
		for _, rule := range VectorTable {
			if strings.HasPrefix(ttp, rule.Prefix) {
				vectors = append(vectors, rule.Vector)
			}
		}
	}
	return vectors
}

// HasTechniquePrefix reports whether any TTP starts with prefix.
func HasTechniquePrefix(ttps []string, prefix string) bool {
	for _, ttp := range ttps {
		if strings.HasPrefix(ttp, prefix) {
			return true
		}
	}
	return false
}

// GetTechnique returns a technique by ID. A sub-technique not in the catalog
// resolves to its parent.
func (c *Catalog) GetTechnique(id string) (*Technique, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id = strings.ToUpper(strings.TrimSpace(id))
	if t, ok := c.techniques[id]; ok {
		return t, true
	}
	if parent, _, found := strings.Cut(id, "."); found {
		t, ok := c.techniques[parent]
		return t, ok
	}
	return nil, false
}

// GetTactic returns a tactic by ID or short name
func (c *Catalog) GetTactic(id string) (*Tactic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tactics[strings.ToLower(id)]
	return t, ok
}

// GetTechniquesByTactic returns all techniques for a given tactic, sorted by id.
func (c *Catalog) GetTechniquesByTactic(tactic string) []*Technique {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Technique, 0)
	short := strings.ToLower(tactic)

	for _, t := range c.techniques {
		for _, tt := range t.Tactics {
			if tt == short {
				result = append(result, t)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Register adds or replaces a technique.
func (c *Catalog) Register(t Technique) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.URL == "" {
		t.URL = techniqueURL(t.ID)
	}
	c.techniques[strings.ToUpper(t.ID)] = &t
}

// Coverage counts, per TTP as reported, the number of indicator TTP lists
// that reference it. A TTP is counted once per list. Unknown techniques are
// kept with an empty name. Results are sorted by count descending, then id.
func (c *Catalog) Coverage(ttpLists [][]string) []Coverage {
	counts := make(map[string]int)
	for _, ttps := range ttpLists {
		seen := make(map[string]bool, len(ttps))
		for _, ttp := range ttps {
			id := strings.ToUpper(strings.TrimSpace(ttp))
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			counts[id]++
		}
	}

	out := make([]Coverage, 0, len(counts))
	for id, n := range counts {
		cov := Coverage{TechniqueID: id, Tactics: []string{}, Indicators: n}
		if t, ok := c.GetTechnique(id); ok {
			cov.TechniqueName = t.Name
			cov.TechniqueURL = t.URL
			cov.Tactics = append(cov.Tactics, t.Tactics...)
		}
		out = append(out, cov)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Indicators != out[j].Indicators {
			return out[i].Indicators > out[j].Indicators
		}
		return out[i].TechniqueID < out[j].TechniqueID
	})
	return out
}

// Tactics returns the catalog tactics sorted by id.
func (c *Catalog) Tactics() []Tactic {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Tactic, 0, len(c.tactics)/2)
	for key, t := range c.tactics {
		if key == t.ShortName {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByTactic groups coverage under every catalog tactic, in tactic id order. A
// technique with several tactics appears under each; tactics unknown to the
// catalog are dropped.
func (c *Catalog) ByTactic(coverage []Coverage) []TacticCoverage {
	observed := make(map[string][]Coverage)
	for _, cov := range coverage {
		for _, name := range cov.Tactics {
			tac, ok := c.GetTactic(name)
			if !ok {
				continue
			}
			observed[tac.ID] = append(observed[tac.ID], cov)
		}
	}

	tactics := c.Tactics()
	out := make([]TacticCoverage, 0, len(tactics))
	for _, tac := range tactics {
		tc := TacticCoverage{
			Tactic:     tac,
			Observed:   observed[tac.ID],
			Unobserved: []string{},
		}
		if tc.Observed == nil {
			tc.Observed = []Coverage{}
		}
		seen := make(map[string]bool, len(tc.Observed))
		for _, cov := range tc.Observed {
			seen[cov.TechniqueID] = true
		}
		for _, t := range c.GetTechniquesByTactic(tac.ShortName) {
			if !seen[t.ID] {
				tc.Unobserved = append(tc.Unobserved, t.ID)
			}
		}
		out = append(out, tc)
	}
	return out
}

func (c *Catalog) initializeTechniques() {
	techniques := []Technique{
		{ID: "T1486", Name: "Data Encrypted for Impact", Tactics: []string{"impact"}},
		{ID: "T1498", Name: "Network Denial of Service", Tactics: []string{"impact"}},
		{ID: "T1566", Name: "Phishing", Tactics: []string{"initial-access"}},
		{ID: "T1566.001", Name: "Spearphishing Attachment", Tactics: []string{"initial-access"}},
		{ID: "T1566.002", Name: "Spearphishing Link", Tactics: []string{"initial-access"}},
		{ID: "T1190", Name: "Exploit Public-Facing Application", Tactics: []string{"initial-access"}},
		{ID: "T1200", Name: "Hardware Additions", Tactics: []string{"initial-access"}},
		{ID: "T1078", Name: "Valid Accounts", Tactics: []string{"initial-access", "persistence", "privilege-escalation", "defense-evasion"}},
		{ID: "T1110", Name: "Brute Force", Tactics: []string{"credential-access"}},
		{ID: "T1195", Name: "Supply Chain Compromise", Tactics: []string{"initial-access"}},
		{ID: "T1059", Name: "Command and Scripting Interpreter", Tactics: []string{"execution"}},
		{ID: "T1071", Name: "Application Layer Protocol", Tactics: []string{"command-and-control"}},
		{ID: "T1204", Name: "User Execution", Tactics: []string{"execution"}},
		{ID: "T1657", Name: "Financial Theft", Tactics: []string{"impact"}},
	}

	for _, t := range techniques {
		c.Register(t)
	}
}

func (c *Catalog) initializeTactics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	tactics := []*Tactic{
		{ID: "TA0001", Name: "Initial Access", ShortName: "initial-access"},
		{ID: "TA0002", Name: "Execution", ShortName: "execution"},
		{ID: "TA0003", Name: "Persistence", ShortName: "persistence"},
		{ID: "TA0004", Name: "Privilege Escalation", ShortName: "privilege-escalation"},
		{ID: "TA0005", Name: "Defense Evasion", ShortName: "defense-evasion"},
		{ID: "TA0006", Name: "Credential Access", ShortName: "credential-access"},
		{ID: "TA0011", Name: "Command and Control", ShortName: "command-and-control"},
		{ID: "TA0040", Name: "Impact", ShortName: "impact"},
	}

	for _, t := range tactics {
		t.URL = fmt.Sprintf("https://attack.mitre.org/tactics/%s/", t.ID)
		c.tactics[t.ShortName] = t
		c.tactics[strings.ToLower(t.ID)] = t
	}
}

func techniqueURL(id string) string {
	return fmt.Sprintf("https://attack.mitre.org/techniques/%s/", strings.ReplaceAll(id, ".", "/"))
}
