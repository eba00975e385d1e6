package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/templates"
	"github.com/CosmoTheDev/assessmaker/models"
)

// ReportTitle is the cover title and running header text.
const ReportTitle = "Penetration Test Report"

// Settings are the caller-supplied rendering options. All are optional.
type Settings struct {
	// Logo is the default logo; a report's own logo takes precedence.
	Logo         []byte
	Organization string
	Division     string
	Policy       MatrixPolicy
}

// DocumentBuildError reports a rendering failure. Fatal errors abort the
// document; non-fatal ones are collected in Document.Warnings.
type DocumentBuildError struct {
	Fatal bool
	Item  string
	Err   error
}

func (e *DocumentBuildError) Error() string {
	if e.Item == "" {
		return "render: " + e.Err.Error()
	}
	return fmt.Sprintf("render: %s: %v", e.Item, e.Err)
}

func (e *DocumentBuildError) Unwrap() error { return e.Err }

func fatalf(format string, args ...any) error {
	return &DocumentBuildError{Fatal: true, Err: fmt.Errorf(format, args...)}
}

// Align is a horizontal alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
)

// Block is one element of the document flow.
type Block interface{ block() }

// Heading levels.
const (
	LevelTitle   = 0
	LevelSection = 1
	LevelSub     = 2
	LevelFinding = 3
	LevelCover   = 4
)

type Heading struct {
	Level int
	Text  string
	Align Align
}

// Run is a span of uniformly styled text.
type Run struct {
	Text  string
	Bold  bool
	Color *RGB
}

type Paragraph struct {
	Runs  []Run
	Align Align
}

// Field is a labelled value. Multi-line values render one line each below
// the label.
type Field struct {
	Label string
	Lines []string
}

// KeyValueTable is a two-column table with bold labels.
type KeyValueTable struct {
	Rows [][2]string
}

// FindingsTable is the four-column summary: No, Vulnerability, Severity,
// Status. Each row is shaded by its severity.
type FindingsTable struct {
	Header [4]string
	Fill   RGB
	Rows   []FindingRow
}

type FindingRow struct {
	Cells [4]string
	Fill  RGB
	Text  RGB
}

type MatrixBlock struct {
	Matrix Matrix
}

// Picture is a decoded image ready for embedding: JPEG or 8-bit PNG.
type Picture struct {
	Name   string
	Format string // "jpeg" or "png"
	Data   []byte
	Width  int
	Height int
}

// ImageBlock embeds Picture no wider than MaxWidthMM (PDF) or MaxWidthPx (DOCX).
type ImageBlock struct {
	Picture    Picture
	MaxWidthMM float64
	MaxWidthPx int
	Center     bool
}

// Placeholder stands in for an image that failed to decode.
type Placeholder struct {
	Text string
}

type PageBreak struct{}

func (Heading) block()       {}
func (Paragraph) block()     {}
func (Field) block()         {}
func (KeyValueTable) block() {}
func (FindingsTable) block() {}
func (MatrixBlock) block()   {}
func (ImageBlock) block()    {}
func (Placeholder) block()   {}
func (PageBreak) block()     {}

// Display widths.
const (
	ImageMaxWidthMM   = 150.0
	ImageMaxWidthPx   = 500
	LogoMaxWidthMM    = 50.0
	LogoMaxWidthPx    = 200
	HeaderLogoWidthMM = 12.0
	HeaderLogoWidthPx = 50
)

// Document is the laid-out report shared by every renderer.
type Document struct {
	Title    string
	Author   string
	Subject  string
	Created  time.Time
	Logo     *Picture
	Blocks   []Block
	Rating   models.SeverityLevel
	Findings []models.Finding
	Warnings []error
}

// Build validates r and lays it out. The report is not modified.
func Build(ctx context.Context, r *models.Report, settings Settings) (*Document, error) {
	if r == nil {
		return nil, fatalf("no report")
	}
	if !Present(r.ProjectName) {
		return nil, fatalf("projectName is required")
	}
	if !Present(r.AssessorName) {
		return nil, fatalf("assessorName is required")
	}
	for i := range r.Findings {
		if !r.Findings[i].Severity.Valid() {
			return nil, &DocumentBuildError{
				Fatal: true,
				Item:  fmt.Sprintf("finding %q", r.Findings[i].Title),
				Err:   fmt.Errorf("unknown severity %q", r.Findings[i].Severity),
			}
		}
	}

	findings := SortFindings(r.Findings)
	d := &Document{
		Title:    r.ProjectName + " - " + ReportTitle,
		Author:   r.AssessorName,
		Subject:  ReportTitle,
		Created:  r.UpdatedAt.UTC(),
		Rating:   RiskRating(findings),
		Findings: findings,
	}
	if d.Created.IsZero() {
		d.Created = r.CreatedAt.UTC()
	}

	logo := r.Logo
	if len(logo) == 0 {
		logo = settings.Logo
	}
	if len(logo) > 0 {
		pic, err := decodePicture("logo", logo)
		if err != nil {
			d.warn("logo", err)
		} else {
			d.Logo = &pic
		}
	}

	d.cover(r, settings)
	d.executiveSummary(r)
	d.highLevelSummary(r)
	d.detailedFindings(findings, settings.Policy)
	if err := d.vulnerabilities(ctx, findings); err != nil {
		return nil, err
	}
	d.assessorStatement(r, findings)
	return d, nil
}

func (d *Document) add(b ...Block) { d.Blocks = append(d.Blocks, b...) }

func (d *Document) warn(item string, err error) {
	d.Warnings = append(d.Warnings, &DocumentBuildError{Item: item, Err: err})
}

// ImageFailures counts the images replaced by placeholders.
func (d *Document) ImageFailures() int {
	n := 0
	for _, w := range d.Warnings {
		var be *DocumentBuildError
		if errors.As(w, &be) && be.Item != "logo" {
			n++
		}
	}
	return n
}

func (d *Document) cover(r *models.Report, s Settings) {
	if d.Logo != nil {
		d.add(ImageBlock{Picture: *d.Logo, MaxWidthMM: LogoMaxWidthMM, MaxWidthPx: LogoMaxWidthPx, Center: true})
	}
	d.add(Heading{Level: LevelTitle, Text: ReportTitle, Align: AlignCenter})
	if Present(s.Organization) {
		d.add(Heading{Level: LevelSection, Text: s.Organization, Align: AlignCenter})
	}
	if Present(s.Division) {
		d.add(Heading{Level: LevelCover, Text: s.Division, Align: AlignCenter})
	}

	name := r.ProjectName
	if r.IsReassessment() {
		name += " (Reassessment)"
	}
	rows := [][2]string{
		{"Project Name", name},
		{"Version", r.Version},
		{"Date", firstPresent(r.EndDate, r.StartDate)},
		{"Assessor", r.AssessorName},
	}
	if Present(r.TicketNumber) {
		rows = append(rows, [2]string{"Ticket Number", r.TicketNumber})
	}
	if Present(r.BuildVersions) {
		rows = append(rows, [2]string{"Build Versions", r.BuildVersions})
	}
	d.add(KeyValueTable{Rows: rows}, PageBreak{})
}

func (d *Document) executiveSummary(r *models.Report) {
	d.add(
		Heading{Level: LevelSection, Text: "1. Executive Summary"},
		Heading{Level: LevelSub, Text: "1.1 Assessment Overview"},
	)
	overview := templates.Substitute(r.ExecutiveSummary, r.ProjectName)
	if !Present(overview) {
		overview = defaultOverview(r)
	}
	d.add(text(overview))

	d.add(Heading{Level: LevelSub, Text: "1.2 Scope"})
	if Present(r.Scope) {
		d.add(text(templates.Substitute(r.Scope, r.ProjectName)))
	}
	var rows [][2]string
	if Present(r.Platform) {
		rows = append(rows, [2]string{"Platform", r.Platform})
	}
	if Present(r.URLs) {
		lines := make([]string, 0)
		for _, ep := range r.Endpoints() {
			lines = append(lines, ep.String())
		}
		rows = append(rows, [2]string{"IP Address/URLs", strings.Join(lines, "\n")})
	}
	if Present(r.Credentials) {
		rows = append(rows, [2]string{"Credentials", r.Credentials})
	}
	if len(rows) > 0 {
		d.add(KeyValueTable{Rows: rows})
	}
}

func defaultOverview(r *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The assessment of %s", r.ProjectName)
	switch {
	case Present(r.StartDate) && Present(r.EndDate):
		fmt.Fprintf(&b, " commenced on %s and concluded on %s.", r.StartDate, r.EndDate)
	case Present(r.StartDate):
		fmt.Fprintf(&b, " commenced on %s.", r.StartDate)
	default:
		b.WriteString(" was performed as a point in time security review.")
	}
	b.WriteString("\n\nThe results provided are the output of the security assessment performed and should be used as input into a larger risk management process. ")
	b.WriteString("They reflect the system and environment as presented for testing. Any changes could yield a different set of results.")
	return b.String()
}

func (d *Document) highLevelSummary(r *models.Report) {
	d.add(Heading{Level: LevelSection, Text: "2. High Level Summary"})
	if Present(r.Methodology) {
		d.add(text(templates.Substitute(r.Methodology, r.ProjectName)))
	}
}

func (d *Document) detailedFindings(findings []models.Finding, policy MatrixPolicy) {
	color := SeverityColor(d.Rating)
	d.add(
		Heading{Level: LevelSection, Text: "3. Detailed Findings"},
		Paragraph{Runs: []Run{
			{Text: "The overall information security risk rating was calculated as: "},
			{Text: string(d.Rating), Bold: true, Color: &color},
			{Text: "."},
		}},
	)

	table := FindingsTable{
		Header: [4]string{"No", "Vulnerability", "Severity", "Status"},
		Fill:   ColorHeaderFill,
		Rows:   make([]FindingRow, 0, len(findings)),
	}
	for i := range findings {
		f := &findings[i]
		table.Rows = append(table.Rows, FindingRow{
			Cells: [4]string{strconv.Itoa(i + 1), f.Title, string(f.Severity), findingStatus(f)},
			Fill:  SeverityColor(f.Severity),
			Text:  TextColor(f.Severity),
		})
	}
	d.add(table, MatrixBlock{Matrix: CountMatrix(findings, policy)})
}

func (d *Document) vulnerabilities(ctx context.Context, findings []models.Finding) error {
	d.add(Heading{Level: LevelSub, Text: "3.1 Vulnerabilities Found"})
	for i := range findings {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := &findings[i]
		d.add(
			Heading{Level: LevelFinding, Text: fmt.Sprintf("%d. %s", i+1, f.Title)},
			field("Category", f.Category),
			field("Severity", string(f.Severity)),
			field("Description", f.Description),
		)
		if Present(f.Impact) {
			d.add(field("Impact", f.Impact))
		}
		if Present(f.Mitigation) {
			d.add(field("Mitigation", f.Mitigation))
		}
		var eps []string
		for _, ep := range f.AffectedEndpoints {
			if Present(ep) {
				eps = append(eps, strings.TrimSpace(ep))
			}
		}
		if len(eps) > 0 {
			d.add(Field{Label: "Affected Endpoints", Lines: eps})
		}
		if len(f.PocImages) == 0 {
			continue
		}
		d.add(Paragraph{Runs: []Run{{Text: "Proof of Concept", Bold: true}}})
		for k := range f.PocImages {
			if err := ctx.Err(); err != nil {
				return err
			}
			img := &f.PocImages[k]
			name := firstPresent(img.OriginalName, img.Filename, fmt.Sprintf("image %d", k+1))
			pic, err := decodePicture(name, img.Data)
			if err != nil {
				d.warn(fmt.Sprintf("finding %d image %q", i+1, name), err)
				d.add(Placeholder{Text: fmt.Sprintf("[Image: %s] - Failed to load", name)})
				continue
			}
			d.add(ImageBlock{Picture: pic, MaxWidthMM: ImageMaxWidthMM, MaxWidthPx: ImageMaxWidthPx})
		}
	}
	return nil
}

func (d *Document) assessorStatement(r *models.Report, findings []models.Finding) {
	result := "Non-Compliant."
	if Compliant(findings) {
		result = "Compliant."
	}
	d.add(
		Heading{Level: LevelSection, Text: "4. Assessor Statement"},
		Paragraph{Runs: []Run{
			{Text: r.AssessorName, Bold: true},
			{Text: " has completed a Security Assessment of "},
			{Text: r.ProjectName, Bold: true},
			{Text: " in accordance with: OWASP top 10, PCI-DSS, ISO 27001 and the result is " + result},
		}},
	)
	if Present(r.Conclusion) {
		d.add(text(templates.Substitute(r.Conclusion, r.ProjectName)))
	}
}

func text(s string) Paragraph { return Paragraph{Runs: []Run{{Text: s}}} }

func field(label, value string) Field { return Field{Label: label, Lines: []string{value}} }

func firstPresent(values ...string) string {
	for _, v := range values {
		if Present(v) {
			return v
		}
	}
	return ""
}
