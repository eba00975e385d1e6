package models

import "time"

// FindingStatus tracks whether a finding is still outstanding.
type FindingStatus string

const (
	StatusOpen   FindingStatus = "OPEN"
	StatusClosed FindingStatus = "CLOSED"
)

// Finding is one vulnerability entry owned by exactly one Report.
type Finding struct {
	ID                int64         `json:"id"`
	ReportID          string        `json:"reportId"`
	Title             string        `json:"title"`
	Category          string        `json:"category"`
	Severity          SeverityLevel `json:"severity"`
	Description       string        `json:"description"`
	Impact            string        `json:"impact"`
	Mitigation        string        `json:"mitigation"`
	Status            FindingStatus `json:"status"`
	AffectedEndpoints []string      `json:"affectedEndpoints"`
	PocImages         []Image       `json:"pocImages"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// IsOpen reports whether f counts towards the report risk rating.
// An empty status is treated as OPEN, the default.
func (f *Finding) IsOpen() bool {
	return f.Status == StatusOpen || f.Status == ""
}

// FindingPatch carries a field-level update; nil fields are left untouched.
type FindingPatch struct {
	Title             *string        `json:"title"`
	Category          *string        `json:"category"`
	Severity          *SeverityLevel `json:"severity"`
	Description       *string        `json:"description"`
	Impact            *string        `json:"impact"`
	Mitigation        *string        `json:"mitigation"`
	Status            *FindingStatus `json:"status"`
	AffectedEndpoints *[]string      `json:"affectedEndpoints"`
}

// LibraryEntry is a reusable finding template.
type LibraryEntry struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Category    string        `json:"category"`
	Severity    SeverityLevel `json:"severity"`
	Description string        `json:"description"`
	Impact      string        `json:"impact"`
	Mitigation  string        `json:"mitigation"`
	CreatedAt   time.Time     `json:"createdAt"`
}
