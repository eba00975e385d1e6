package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/models"
)

// Row types mirror the tables. Columns tagged seal:"text" pass through the
// codec as strings, seal:"blob" as binary. The text tags of each full row
// type must equal fieldcrypt.Sensitive for its entity.

type reportRow struct {
	ID                   string `db:"id"`
	ProjectName          string `db:"project_name"           seal:"text"`
	Version              string `db:"version"`
	AssessmentType       string `db:"assessment_type"`
	StartDate            string `db:"start_date"`
	EndDate              string `db:"end_date"`
	AssessorName         string `db:"assessor_name"          seal:"text"`
	Platform             string `db:"platform"               seal:"text"`
	URLs                 string `db:"urls"                   seal:"text"`
	Credentials          string `db:"credentials"            seal:"text"`
	TicketNumber         string `db:"ticket_number"          seal:"text"`
	BuildVersions        string `db:"build_versions"         seal:"text"`
	ProjectStatus        string `db:"project_status"`
	FixByDate            string `db:"fix_by_date"`
	RequestedBy          string `db:"requested_by"           seal:"text"`
	ExecutiveSummary     string `db:"executive_summary"      seal:"text"`
	Scope                string `db:"scope"                  seal:"text"`
	Methodology          string `db:"methodology"            seal:"text"`
	Conclusion           string `db:"conclusion"             seal:"text"`
	Logo                 []byte `db:"logo"`
	ParentAssessmentID   string `db:"parent_assessment_id"`
	ParentAssessmentData string `db:"parent_assessment_data" seal:"text"`
	CreatedAt            string `db:"created_at"`
	UpdatedAt            string `db:"updated_at"`
}

type summaryRow struct {
	ID                 string `db:"id"`
	ProjectName        string `db:"project_name"  seal:"text"`
	Version            string `db:"version"`
	AssessmentType     string `db:"assessment_type"`
	StartDate          string `db:"start_date"`
	EndDate            string `db:"end_date"`
	AssessorName       string `db:"assessor_name" seal:"text"`
	ProjectStatus      string `db:"project_status"`
	ParentAssessmentID string `db:"parent_assessment_id"`
	FindingsCount      int64  `db:"findings_count"`
	OpenFindingsCount  int64  `db:"open_findings_count"`
	CreatedAt          string `db:"created_at"`
	UpdatedAt          string `db:"updated_at"`
}

type findingRow struct {
	ID                int64  `db:"id"`
	ReportID          string `db:"report_id"`
	Title             string `db:"title"              seal:"text"`
	Category          string `db:"category"`
	Severity          string `db:"severity"`
	Description       string `db:"description"        seal:"text"`
	Impact            string `db:"impact"             seal:"text"`
	Mitigation        string `db:"mitigation"         seal:"text"`
	Status            string `db:"status"`
	AffectedEndpoints string `db:"affected_endpoints" seal:"text"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

type imageRow struct {
	ID           int64  `db:"id"`
	FindingID    int64  `db:"finding_id"`
	Filename     string `db:"filename"      seal:"text"`
	OriginalName string `db:"original_name" seal:"text"`
	MimeType     string `db:"mime_type"`
	FileSize     int64  `db:"file_size"`
	ImageData    []byte `db:"image_data"    seal:"blob"`
	CreatedAt    string `db:"created_at"`
}

type libraryRow struct {
	ID          int64  `db:"id"`
	Title       string `db:"title"`
	Category    string `db:"category"`
	Severity    string `db:"severity"`
	Description string `db:"description"`
	Impact      string `db:"impact"`
	Mitigation  string `db:"mitigation"`
	CreatedAt   string `db:"created_at"`
}

const (
	reportTable  = "reports"
	findingTable = "findings"
	imageTable   = "images"
	libraryTable = "findings_library"

	imageMetaColumns = "id, finding_id, filename, original_name, mime_type, file_size, created_at"
)

// sealRow encrypts every seal-tagged field of the struct pointed to by row.
func sealRow(c *fieldcrypt.Codec, row any) error {
	return eachSealed(row, func(col, kind string, f reflect.Value) error {
		switch kind {
		case "text":
			enc, err := c.Encrypt(f.String())
			if err != nil {
				return fmt.Errorf("%s: %w", col, err)
			}
			f.SetString(enc)
		case "blob":
			enc, err := c.EncryptImage(f.Bytes())
			if err != nil {
				return fmt.Errorf("%s: %w", col, err)
			}
			f.SetBytes(enc)
		}
		return nil
	})
}

// openRow decrypts every seal-tagged field of the struct pointed to by row.
func openRow(c *fieldcrypt.Codec, row any) error {
	return eachSealed(row, func(col, kind string, f reflect.Value) error {
		switch kind {
		case "text":
			dec, err := c.Decrypt(f.String())
			if err != nil {
				return fmt.Errorf("%s: %w", col, err)
			}
			f.SetString(dec)
		case "blob":
			dec, err := c.DecryptImage(f.Bytes())
			if err != nil {
				return fmt.Errorf("%s: %w", col, err)
			}
			f.SetBytes(dec)
		}
		return nil
	})
}

func eachSealed(row any, fn func(col, kind string, f reflect.Value) error) error {
	v := reflect.ValueOf(row).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		kind := t.Field(i).Tag.Get("seal")
		if kind == "" {
			continue
		}
		if err := fn(t.Field(i).Tag.Get("db"), kind, v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

// sealedColumns lists the db columns of row's type carrying the given seal kind.
func sealedColumns(row any, kind string) []string {
	var cols []string
	t := reflect.TypeOf(row)
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("seal") == kind {
			cols = append(cols, t.Field(i).Tag.Get("db"))
		}
	}
	return cols
}

// --- model conversion ---

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func newReportRow(r *models.Report) (reportRow, error) {
	row := reportRow{
		ID:                 r.ID,
		ProjectName:        r.ProjectName,
		Version:            r.Version,
		AssessmentType:     string(r.AssessmentType),
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		AssessorName:       r.AssessorName,
		Platform:           r.Platform,
		URLs:               r.URLs,
		Credentials:        r.Credentials,
		TicketNumber:       r.TicketNumber,
		BuildVersions:      r.BuildVersions,
		ProjectStatus:      r.ProjectStatus,
		FixByDate:          r.FixByDate,
		RequestedBy:        r.RequestedBy,
		ExecutiveSummary:   r.ExecutiveSummary,
		Scope:              r.Scope,
		Methodology:        r.Methodology,
		Conclusion:         r.Conclusion,
		Logo:               r.Logo,
		ParentAssessmentID: r.ParentAssessmentID,
		CreatedAt:          formatTime(r.CreatedAt),
		UpdatedAt:          formatTime(r.UpdatedAt),
	}
	if r.ParentAssessment != nil {
		data, err := json.Marshal(r.ParentAssessment)
		if err != nil {
			return reportRow{}, fmt.Errorf("encoding parent snapshot: %w", err)
		}
		row.ParentAssessmentData = string(data)
	}
	return row, nil
}

func (row reportRow) model() (*models.Report, error) {
	r := &models.Report{
		ID:                 row.ID,
		ProjectName:        row.ProjectName,
		Version:            row.Version,
		AssessmentType:     models.AssessmentType(row.AssessmentType),
		StartDate:          row.StartDate,
		EndDate:            row.EndDate,
		AssessorName:       row.AssessorName,
		Platform:           row.Platform,
		URLs:               row.URLs,
		Credentials:        row.Credentials,
		TicketNumber:       row.TicketNumber,
		BuildVersions:      row.BuildVersions,
		ProjectStatus:      row.ProjectStatus,
		FixByDate:          row.FixByDate,
		RequestedBy:        row.RequestedBy,
		ExecutiveSummary:   row.ExecutiveSummary,
		Scope:              row.Scope,
		Methodology:        row.Methodology,
		Conclusion:         row.Conclusion,
		Logo:               row.Logo,
		ParentAssessmentID: row.ParentAssessmentID,
		Findings:           []models.Finding{},
		CreatedAt:          parseTime(row.CreatedAt),
		UpdatedAt:          parseTime(row.UpdatedAt),
	}
	if row.ParentAssessmentData != "" {
		var snap models.ParentSnapshot
		if err := json.Unmarshal([]byte(row.ParentAssessmentData), &snap); err != nil {
			return nil, fmt.Errorf("decoding parent snapshot: %w", err)
		}
		r.ParentAssessment = &snap
	}
	return r, nil
}

func (row summaryRow) model() models.ReportSummary {
	return models.ReportSummary{
		ID:                 row.ID,
		ProjectName:        row.ProjectName,
		Version:            row.Version,
		AssessmentType:     models.AssessmentType(row.AssessmentType),
		StartDate:          row.StartDate,
		EndDate:            row.EndDate,
		AssessorName:       row.AssessorName,
		ProjectStatus:      row.ProjectStatus,
		ParentAssessmentID: row.ParentAssessmentID,
		FindingsCount:      int(row.FindingsCount),
		OpenFindingsCount:  int(row.OpenFindingsCount),
		CreatedAt:          parseTime(row.CreatedAt),
		UpdatedAt:          parseTime(row.UpdatedAt),
	}
}

func newFindingRow(reportID string, f *models.Finding) (findingRow, error) {
	eps := f.AffectedEndpoints
	if eps == nil {
		eps = []string{}
	}
	data, err := json.Marshal(eps)
	if err != nil {
		return findingRow{}, fmt.Errorf("encoding affected endpoints: %w", err)
	}
	return findingRow{
		ID:                f.ID,
		ReportID:          reportID,
		Title:             f.Title,
		Category:          f.Category,
		Severity:          string(f.Severity),
		Description:       f.Description,
		Impact:            f.Impact,
		Mitigation:        f.Mitigation,
		Status:            string(f.Status),
		AffectedEndpoints: string(data),
		CreatedAt:         formatTime(f.CreatedAt),
		UpdatedAt:         formatTime(f.UpdatedAt),
	}, nil
}

func (row findingRow) model() (models.Finding, error) {
	f := models.Finding{
		ID:                row.ID,
		ReportID:          row.ReportID,
		Title:             row.Title,
		Category:          row.Category,
		Severity:          models.SeverityLevel(row.Severity),
		Description:       row.Description,
		Impact:            row.Impact,
		Mitigation:        row.Mitigation,
		Status:            models.FindingStatus(row.Status),
		AffectedEndpoints: []string{},
		PocImages:         []models.Image{},
		CreatedAt:         parseTime(row.CreatedAt),
		UpdatedAt:         parseTime(row.UpdatedAt),
	}
	if row.AffectedEndpoints != "" {
		if err := json.Unmarshal([]byte(row.AffectedEndpoints), &f.AffectedEndpoints); err != nil {
			return models.Finding{}, fmt.Errorf("decoding affected endpoints: %w", err)
		}
	}
	return f, nil
}

func newImageRow(findingID int64, img *models.Image) imageRow {
	return imageRow{
		ID:           img.ID,
		FindingID:    findingID,
		Filename:     img.Filename,
		OriginalName: img.OriginalName,
		MimeType:     img.MimeType,
		FileSize:     int64(len(img.Data)),
		ImageData:    img.Data,
		CreatedAt:    formatTime(img.CreatedAt),
	}
}

func (row imageRow) model() models.Image {
	return models.Image{
		ID:           row.ID,
		FindingID:    row.FindingID,
		Filename:     row.Filename,
		OriginalName: row.OriginalName,
		MimeType:     row.MimeType,
		FileSize:     row.FileSize,
		Data:         row.ImageData,
		CreatedAt:    parseTime(row.CreatedAt),
	}
}

func (row libraryRow) model() models.LibraryEntry {
	return models.LibraryEntry{
		ID:          row.ID,
		Title:       row.Title,
		Category:    row.Category,
		Severity:    models.SeverityLevel(row.Severity),
		Description: row.Description,
		Impact:      row.Impact,
		Mitigation:  row.Mitigation,
		CreatedAt:   parseTime(row.CreatedAt),
	}
}
