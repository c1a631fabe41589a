package scoring

import (
	"strings"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// SectorPattern lists what makes an indicator relevant to one sector.
type SectorPattern struct {
	HighRiskTTPs     []string `yaml:"high_risk_ttps" json:"high_risk_ttps"`
	CriticalKeywords []string `yaml:"critical_keywords" json:"critical_keywords"`
}

// DefaultSectorPatterns returns the built-in patterns. Callers own the result.
func DefaultSectorPatterns() map[string]SectorPattern {
	return map[string]SectorPattern{
		intel.SectorFinancialServices: {
			HighRiskTTPs:     []string{"T1486", "T1566", "T1078", "T1110"},
			CriticalKeywords: []string{"wire fraud", "ransomware", "credential theft", "insider threat"},
		},
		intel.SectorAgriculture: {
			HighRiskTTPs:     []string{"T1190", "T1498", "T1200"},
			CriticalKeywords: []string{"iot", "supply chain", "scada", "operational technology"},
		},
	}
}

// matchesTTP reports an exact intersection between ttps and the high-risk set.
func (p SectorPattern) matchesTTP(ttps []string) bool {
	for _, ttp := range ttps {
		for _, hr := range p.HighRiskTTPs {
			if ttp == hr {
				return true
			}
		}
	}
	return false
}

func (p SectorPattern) matchesKeyword(description string) bool {
	desc := strings.ToLower(description)
	for _, kw := range p.CriticalKeywords {
		if kw != "" && strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func (p SectorPattern) normalized() SectorPattern {
	out := SectorPattern{
		HighRiskTTPs:     make([]string, 0, len(p.HighRiskTTPs)),
		CriticalKeywords: make([]string, 0, len(p.CriticalKeywords)),
	}
	for _, t := range p.HighRiskTTPs {
		out.HighRiskTTPs = append(out.HighRiskTTPs, strings.ToUpper(strings.TrimSpace(t)))
	}
	for _, k := range p.CriticalKeywords {
		out.CriticalKeywords = append(out.CriticalKeywords, strings.ToLower(strings.TrimSpace(k)))
	}
	return out
}
