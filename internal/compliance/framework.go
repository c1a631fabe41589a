// Package compliance provides the regulatory framework catalog, severity
// driven reporting and impact tables, and the compliance report for
// financial-services indicators.
package compliance

import (
	"github.com/lvonguyen/sectorintel/internal/intel"
)

// Framework identifiers.
const (
	FrameworkFFIEC = "FFIEC"
	FrameworkFCA   = "FCA"
	FrameworkGLBA  = "GLBA"
)

// Framework is a compliance framework and the controls a threat puts under
// review.
type Framework struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Controls []string `json:"controls"`
}

// Frameworks is the catalog of supported frameworks.
var Frameworks = map[string]Framework{
	FrameworkFFIEC: {
		ID:       FrameworkFFIEC,
		Name:     "FFIEC Cybersecurity Assessment Tool",
		Controls: []string{"access_control", "data_protection", "incident_response"},
	},
	FrameworkFCA: {
		ID:       FrameworkFCA,
		Name:     "Farm Credit Administration Requirements",
		Controls: []string{"cybersecurity_program", "vendor_management", "business_continuity"},
	},
	FrameworkGLBA: {
		ID:       FrameworkGLBA,
		Name:     "Gramm-Leach-Bliley Act",
		Controls: []string{"customer_data_protection", "privacy_notices", "safeguards_rule"},
	},
}

// ReportFrameworks is the order frameworks appear in the compliance report.
var ReportFrameworks = []string{FrameworkFFIEC, FrameworkFCA, FrameworkGLBA}

// Lookup returns a framework by id.
func Lookup(id string) (Framework, bool) {
	f, ok := Frameworks[id]
	return f, ok
}

// RequiresReporting reports whether severity triggers mandatory reporting.
func RequiresReporting(severity string) bool {
	return severity == intel.SeverityCritical || severity == intel.SeverityHigh
}

// Impact assesses each known framework in frameworks for a threat of the
// given severity. Unknown framework ids are skipped.
func Impact(frameworks []string, severity string) map[string]intel.FrameworkImpact {
	impact := make(map[string]intel.FrameworkImpact, len(frameworks))
	for _, id := range frameworks {
		f, ok := Frameworks[id]
		if !ok {
			continue
		}
		controls := make([]string, len(f.Controls))
		copy(controls, f.Controls)
		impact[id] = intel.FrameworkImpact{
			Affected:          true,
			ControlsToReview:  controls,
			ReportingRequired: RequiresReporting(severity),
		}
	}
	return impact
}
