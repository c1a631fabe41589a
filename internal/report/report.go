// Package report exports analysis results as JSON documents and PDF reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/lvonguyen/sectorintel/internal/compliance"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// SaveJSON writes v as indented JSON to path.
func SaveJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteJSON(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCompliancePDF renders the compliance report as a PDF document.
func WriteCompliancePDF(w io.Writer, rep compliance.Report) error {
	pdf := buildCompliancePDF(rep)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF report: %w", err)
	}
	return nil
}

// SaveCompliancePDF renders the compliance report to a PDF file.
func SaveCompliancePDF(path string, rep compliance.Report) error {
	pdf := buildCompliancePDF(rep)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write PDF report: %w", err)
	}
	return nil
}

func buildCompliancePDF(rep compliance.Report) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Financial Services Compliance Report")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(40, 6, fmt.Sprintf("Generated: %s", rep.GeneratedAt))
	pdf.Ln(6)
	pdf.Cell(40, 6, fmt.Sprintf("Threats analyzed: %d", rep.TotalThreats))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(40, 8, "Compliance Summary")
	pdf.Ln(9)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(50, 7, "Framework", "1", 0, "", false, 0, "")
	pdf.CellFormat(50, 7, "Affected Threats", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 7, "Requires Action", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, id := range rep.ComplianceSummary.IDs() {
		s := rep.ComplianceSummary[id]
		pdf.CellFormat(50, 7, id, "1", 0, "", false, 0, "")
		pdf.CellFormat(50, 7, fmt.Sprintf("%d", s.AffectedThreats), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 7, fmt.Sprintf("%d", s.RequiresAction), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(40, 8, "High Priority Items")
	pdf.Ln(9)

	if len(rep.HighPriorityItems) == 0 {
		pdf.SetFont("Arial", "I", 11)
		pdf.Cell(40, 6, "No financial services threats in this run.")
		pdf.Ln(6)
		return pdf
	}

	for i, item := range rep.HighPriorityItems {
		pdf.SetFont("Arial", "B", 11)
		pdf.MultiCell(190, 6, fmt.Sprintf("%d. %s (priority %d)", i+1, item.Name, item.Priority), "", "", false)

		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(190, 5, fmt.Sprintf("ID: %s", item.ID), "", "", false)
		if len(item.AffectedAssets) > 0 {
			pdf.MultiCell(190, 5, "Affected assets: "+strings.Join(item.AffectedAssets, ", "), "", "", false)
		}
		if rr := item.RegulatoryReporting; rr.Required {
			line := fmt.Sprintf("Regulatory reporting required within %dh to %s",
				rr.TimeframeHours, strings.Join(rr.Agencies, ", "))
			pdf.MultiCell(190, 5, line, "", "", false)
		} else {
			pdf.MultiCell(190, 5, "No regulatory reporting required", "", "", false)
		}
		pdf.Ln(3)
	}
	return pdf
}
