package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lvonguyen/sectorintel/internal/compliance"
	"github.com/lvonguyen/sectorintel/internal/intel"
)

func sampleReport() compliance.Report {
	return compliance.Report{
		GeneratedAt:  "2025-06-01T12:00:00Z",
		TotalThreats: 1,
		ComplianceSummary: map[string]compliance.FrameworkSummary{
			"FFIEC": {AffectedThreats: 1, RequiresAction: 1},
			"FCA":   {AffectedThreats: 1, RequiresAction: 1},
			"GLBA":  {},
		},
		HighPriorityItems: []compliance.PriorityItem{{
			ID:             "indicator--abc",
			Name:           "Ransomware Campaign",
			Priority:       10,
			AffectedAssets: []string{"core_banking", "customer_data"},
			RegulatoryReporting: intel.RegulatoryReporting{
				Required:       true,
				Agencies:       []string{"FFIEC", "OCC", "FDIC"},
				TimeframeHours: 24,
			},
		}},
	}
}

// =============================================================================
// JSON Tests
// =============================================================================

// TestWriteJSON verifies indented output that decodes back to the input.
func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"total_threats\": 1") {
		t.Errorf("output not indented:\n%s", buf.String())
	}

	var got compliance.Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.HighPriorityItems[0].Name != "Ransomware Campaign" {
		t.Errorf("unexpected decoded report: %+v", got)
	}
}

// TestSaveJSON verifies file output.
func TestSaveJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.json")
	if err := SaveJSON(path, []string{"a", "b"}); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "[\n  \"a\"") {
		t.Errorf("unexpected file content: %s", data)
	}
}

// TestSaveJSON_BadPath verifies a missing directory is reported.
func TestSaveJSON_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.json")
	if err := SaveJSON(path, 1); err == nil {
		t.Error("expected error for missing directory")
	}
}

// =============================================================================
// PDF Tests
// =============================================================================

// TestWriteCompliancePDF verifies a PDF document is produced.
func TestWriteCompliancePDF(t *testing.T) {
	tests := []struct {
		name string
		rep  compliance.Report
	}{
		{"with items", sampleReport()},
		{"empty", compliance.Report{GeneratedAt: "2025-06-01T12:00:00Z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteCompliancePDF(&buf, tt.rep); err != nil {
				t.Fatalf("WriteCompliancePDF() error = %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
				t.Error("output is not a PDF")
			}
		})
	}
}

// TestSaveCompliancePDF verifies file output.
func TestSaveCompliancePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compliance.pdf")
	if err := SaveCompliancePDF(path, sampleReport()); err != nil {
		t.Fatalf("SaveCompliancePDF() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("PDF file is empty")
	}
}
