package models

import (
	"strconv"
	"strings"
	"time"
)

// AssessmentType distinguishes first engagements from follow-up retests.
type AssessmentType string

const (
	AssessmentInitial      AssessmentType = "Initial"
	AssessmentReassessment AssessmentType = "Reassessment"
)

// Known project statuses. The field is an open enum: other values are stored as-is.
const (
	ProjectInProgress             = "In Progress"
	ProjectComplete               = "Complete"
	ProjectCompletedWithException = "Completed with Exception"
	ProjectWaitingForFixes        = "Waiting for Fixes"
	ProjectWaitingForClient       = "Waiting for Client Response"
	ProjectOnHold                 = "On Hold"
	ProjectCancelled              = "Cancelled"
	ProjectReadyForReview         = "Ready for Review"
	ProjectUnderReview            = "Under Review"
)

// Report is one penetration-test engagement at one version.
type Report struct {
	ID                 string          `json:"id"`
	ProjectName        string          `json:"projectName"`
	Version            string          `json:"version"`
	AssessmentType     AssessmentType  `json:"assessmentType"`
	StartDate          string          `json:"startDate"`
	EndDate            string          `json:"endDate"`
	AssessorName       string          `json:"assessorName"`
	Platform           string          `json:"platform"`
	URLs               string          `json:"urls"`
	Credentials        string          `json:"credentials"`
	TicketNumber       string          `json:"ticketNumber"`
	BuildVersions      string          `json:"buildVersions"`
	ProjectStatus      string          `json:"projectStatus"`
	FixByDate          string          `json:"fixByDate"`
	RequestedBy        string          `json:"requestedBy"`
	ExecutiveSummary   string          `json:"executiveSummary"`
	Scope              string          `json:"scope"`
	Methodology        string          `json:"methodology"`
	Conclusion         string          `json:"conclusion"`
	Logo               []byte          `json:"logo,omitempty"`
	ParentAssessmentID string          `json:"parentAssessmentId,omitempty"`
	ParentAssessment   *ParentSnapshot `json:"parentAssessmentData,omitempty"`
	Findings           []Finding       `json:"detailedFindings"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// IsReassessment reports whether r supersedes an earlier report.
func (r *Report) IsReassessment() bool {
	return r.AssessmentType == AssessmentReassessment
}

// Endpoint is one line of a report's URL list.
type Endpoint struct {
	Method string `json:"method,omitempty"`
	URL    string `json:"url"`
}

func (e Endpoint) String() string {
	if e.Method == "" {
		return e.URL
	}
	return e.Method + " " + e.URL
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "TRACE": true, "CONNECT": true,
}

// Endpoints parses the newline-delimited URL list. A leading HTTP method
// token is split off; blank lines are skipped.
func (r *Report) Endpoints() []Endpoint {
	var out []Endpoint
	for _, line := range strings.Split(r.URLs, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ep := Endpoint{URL: line}
		if method, rest, ok := strings.Cut(line, " "); ok && httpMethods[strings.ToUpper(method)] {
			ep.Method = strings.ToUpper(method)
			ep.URL = strings.TrimSpace(rest)
		}
		out = append(out, ep)
	}
	return out
}

// ParentSnapshot is a frozen copy of the report a reassessment supersedes.
type ParentSnapshot struct {
	ID          string            `json:"id"`
	ProjectName string            `json:"projectName"`
	Version     string            `json:"version"`
	StartDate   string            `json:"startDate"`
	EndDate     string            `json:"endDate"`
	Findings    []SnapshotFinding `json:"findings"`
}

// SnapshotFinding is the text of a parent finding; image bytes are not copied.
type SnapshotFinding struct {
	Title             string        `json:"title"`
	Category          string        `json:"category"`
	Severity          SeverityLevel `json:"severity"`
	Description       string        `json:"description"`
	Impact            string        `json:"impact"`
	Mitigation        string        `json:"mitigation"`
	Status            FindingStatus `json:"status"`
	AffectedEndpoints []string      `json:"affectedEndpoints"`
	ImageNames        []string      `json:"imageNames,omitempty"`
}

// Snapshot deep-copies r into a ParentSnapshot.
func (r *Report) Snapshot() *ParentSnapshot {
	s := &ParentSnapshot{
		ID:          r.ID,
		ProjectName: r.ProjectName,
		Version:     r.Version,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Findings:    make([]SnapshotFinding, 0, len(r.Findings)),
	}
	for _, f := range r.Findings {
		sf := SnapshotFinding{
			Title:             f.Title,
			Category:          f.Category,
			Severity:          f.Severity,
			Description:       f.Description,
			Impact:            f.Impact,
			Mitigation:        f.Mitigation,
			Status:            f.Status,
			AffectedEndpoints: append([]string(nil), f.AffectedEndpoints...),
		}
		for _, img := range f.PocImages {
			sf.ImageNames = append(sf.ImageNames, img.OriginalName)
		}
		s.Findings = append(s.Findings, sf)
	}
	return s
}

// NextVersion returns version+1 with one decimal. Unparseable or zero
// versions are treated as 1.0.
func NextVersion(version string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(version), 64)
	if err != nil || v == 0 {
		v = 1.0
	}
	return strconv.FormatFloat(v+1, 'f', 1, 64)
}

// ReportSummary is the light listing row: no findings bodies, no logo.
type ReportSummary struct {
	ID                 string         `json:"id"`
	ProjectName        string         `json:"projectName"`
	Version            string         `json:"version"`
	AssessmentType     AssessmentType `json:"assessmentType"`
	StartDate          string         `json:"startDate"`
	EndDate            string         `json:"endDate"`
	AssessorName       string         `json:"assessorName"`
	ProjectStatus      string         `json:"projectStatus"`
	ParentAssessmentID string         `json:"parentAssessmentId,omitempty"`
	FindingsCount      int            `json:"findingsCount"`
	OpenFindingsCount  int            `json:"openFindingsCount"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// ReportPatch carries a field-level update; nil fields are left untouched.
// The parent snapshot is frozen at creation and has no patch field.
type ReportPatch struct {
	ProjectName      *string `json:"projectName"`
	Version          *string `json:"version"`
	StartDate        *string `json:"startDate"`
	EndDate          *string `json:"endDate"`
	AssessorName     *string `json:"assessorName"`
	Platform         *string `json:"platform"`
	URLs             *string `json:"urls"`
	Credentials      *string `json:"credentials"`
	TicketNumber     *string `json:"ticketNumber"`
	BuildVersions    *string `json:"buildVersions"`
	ProjectStatus    *string `json:"projectStatus"`
	FixByDate        *string `json:"fixByDate"`
	RequestedBy      *string `json:"requestedBy"`
	ExecutiveSummary *string `json:"executiveSummary"`
	Scope            *string `json:"scope"`
	Methodology      *string `json:"methodology"`
	Conclusion       *string `json:"conclusion"`
	Logo             *[]byte `json:"logo"`
}

// ReassessmentInput overrides fields of the report created by a reassessment.
// Empty fields inherit from the parent.
type ReassessmentInput struct {
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	AssessorName string `json:"assessorName"`
	TicketNumber string `json:"ticketNumber"`
	RequestedBy  string `json:"requestedBy"`
}
