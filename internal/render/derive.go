// Package render lays out a report once, as a format-agnostic block list,
// and translates that list into PDF and DOCX. Every derivation both formats
// share (sort order, colours, rating, matrix counts, presence rules) lives in
// this file so the two outputs cannot drift apart.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CosmoTheDev/assessmaker/models"
)

// RGB is an sRGB colour.
type RGB struct{ R, G, B uint8 }

// Hex returns the colour as RRGGBB, the form OOXML expects.
func (c RGB) Hex() string { return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B) }

var (
	ColorCritical = RGB{0x94, 0x00, 0x00}
	ColorHigh     = RGB{0xFF, 0x00, 0x00}
	ColorMedium   = RGB{0xFF, 0xA5, 0x00}
	ColorLow      = RGB{0xFF, 0xFF, 0x00}
	ColorInfo     = RGB{0xAD, 0xD8, 0xE6}
	ColorNone     = RGB{0x80, 0x80, 0x80}

	ColorHeaderFill = RGB{0xCC, 0xCC, 0xCC}
	ColorTotalFill  = RGB{0xC0, 0xC0, 0xC0}
	ColorWhite      = RGB{0xFF, 0xFF, 0xFF}
	ColorBlack      = RGB{0x00, 0x00, 0x00}
)

// SeverityColor maps a severity (or the None rating) to its fill colour.
func SeverityColor(s models.SeverityLevel) RGB {
	switch s {
	case models.SeverityCritical:
		return ColorCritical
	case models.SeverityHigh:
		return ColorHigh
	case models.SeverityMedium:
		return ColorMedium
	case models.SeverityLow:
		return ColorLow
	case models.SeverityInfo:
		return ColorInfo
	default:
		return ColorNone
	}
}

// TextColor is the text colour drawn over SeverityColor(s).
func TextColor(s models.SeverityLevel) RGB {
	if s == models.SeverityCritical || s == models.SeverityHigh {
		return ColorWhite
	}
	return ColorBlack
}

// SortFindings returns a copy of findings ordered Critical first. Findings
// of equal severity keep their stored order.
func SortFindings(findings []models.Finding) []models.Finding {
	out := append([]models.Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}

// RiskRating is the highest severity among OPEN findings, or SeverityNone.
func RiskRating(findings []models.Finding) models.SeverityLevel {
	best := models.SeverityNone
	for i := range findings {
		if !findings[i].IsOpen() || !findings[i].Severity.Valid() {
			continue
		}
		if best == models.SeverityNone || findings[i].Severity.Rank() < best.Rank() {
			best = findings[i].Severity
		}
	}
	return best
}

// Compliant reports whether the assessor statement may say "Compliant":
// no finding is OPEN.
func Compliant(findings []models.Finding) bool {
	return RiskRating(findings) == models.SeverityNone
}

// MatrixPolicy selects which findings the severity matrix counts.
type MatrixPolicy int

const (
	// MatrixCountsOpenOnly counts OPEN findings only, matching the risk
	// rating. The findings table still lists every finding.
	MatrixCountsOpenOnly MatrixPolicy = iota
	// MatrixCountsAll counts findings regardless of status.
	MatrixCountsAll
)

// MatrixCell is one shaded cell of the severity matrix.
type MatrixCell struct {
	Label string
	Count int
	Fill  RGB
	Text  RGB
}

// Matrix is the fixed 2x3 severity grid: Critical/High/Medium on the first
// row, Low/Informational/Total on the second.
type Matrix [2][3]MatrixCell

// CountMatrix builds the severity matrix under policy.
func CountMatrix(findings []models.Finding, policy MatrixPolicy) Matrix {
	counts := make(map[models.SeverityLevel]int, len(models.Severities))
	total := 0
	for i := range findings {
		if policy == MatrixCountsOpenOnly && !findings[i].IsOpen() {
			continue
		}
		if !findings[i].Severity.Valid() {
			continue
		}
		counts[findings[i].Severity]++
		total++
	}
	cell := func(s models.SeverityLevel) MatrixCell {
		return MatrixCell{Label: string(s), Count: counts[s], Fill: SeverityColor(s), Text: TextColor(s)}
	}
	return Matrix{
		{cell(models.SeverityCritical), cell(models.SeverityHigh), cell(models.SeverityMedium)},
		{cell(models.SeverityLow), cell(models.SeverityInfo), {Label: "Total", Count: total, Fill: ColorTotalFill, Text: ColorBlack}},
	}
}

// Present reports whether an optional text field should be rendered.
func Present(s string) bool { return strings.TrimSpace(s) != "" }

// findingStatus is the label shown in the findings table.
func findingStatus(f *models.Finding) string {
	if f.Status == "" {
		return string(models.StatusOpen)
	}
	return string(f.Status)
}
