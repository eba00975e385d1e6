package models

import "strings"

// SeverityLevel is the severity of a finding. The order Critical, High,
// Medium, Low, Informational is total and drives sorting and rating.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "Critical"
	SeverityHigh     SeverityLevel = "High"
	SeverityMedium   SeverityLevel = "Medium"
	SeverityLow      SeverityLevel = "Low"
	SeverityInfo     SeverityLevel = "Informational"
)

// SeverityNone is the rating of a report with no OPEN findings. It is never a
// valid finding severity.
const SeverityNone SeverityLevel = "None"

// Severities lists every finding severity in display order.
var Severities = []SeverityLevel{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// Rank returns the position of s in display order (0 = Critical).
// Unknown values rank after Informational.
func (s SeverityLevel) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	default:
		return 5
	}
}

// Valid reports whether s is one of the five finding severities.
func (s SeverityLevel) Valid() bool {
	return s.Rank() < len(Severities)
}

func (s SeverityLevel) String() string {
	return string(s)
}

// MapSeverity normalises user or legacy severity strings to SeverityLevel.
// Unrecognised input is returned as-is so validation can reject it.
func MapSeverity(raw string) SeverityLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "informational", "info", "information":
		return SeverityInfo
	default:
		return SeverityLevel(strings.TrimSpace(raw))
	}
}
