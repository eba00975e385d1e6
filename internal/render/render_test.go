package render

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func sampleReport(t *testing.T) *models.Report {
	t.Helper()
	return &models.Report{
		ID:            "r-1",
		ProjectName:   "Acme Portal",
		Version:       "1.0",
		StartDate:     "2026-03-01",
		EndDate:       "2026-03-05",
		AssessorName:  "Dana Reyes",
		Platform:      "Web",
		URLs:          "GET https://acme.test/login\nhttps://acme.test/api",
		TicketNumber:  "SEC-42",
		Scope:         "Internet facing services.",
		Methodology:   "We attacked {PROJECT_NAME} from the internet.",
		ProjectStatus: models.ProjectInProgress,
		UpdatedAt:     time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC),
		Findings: []models.Finding{
			{Title: "Verbose errors", Category: "Config", Severity: models.SeverityLow, Status: models.StatusOpen, Description: "Stack traces are shown.", Impact: "Information disclosure"},
			{Title: "SQL injection", Category: "Injection", Severity: models.SeverityCritical, Status: models.StatusClosed, Description: "Login form is injectable.",
				AffectedEndpoints: []string{"GET https://acme.test/login"},
				PocImages:         []models.Image{{OriginalName: "sqli.png", Data: pngBytes(t, 40, 20)}}},
			{Title: "Missing security headers", Category: "Config", Severity: models.SeverityInfo, Status: models.StatusOpen, Description: "No CSP."},
			{Title: "Stored XSS", Category: "Injection", Severity: models.SeverityHigh, Status: models.StatusOpen, Description: "Comments are not encoded.",
				PocImages: []models.Image{{OriginalName: "xss.jpg", Data: jpegBytes(t, 30, 30)}}},
			{Title: "Weak TLS", Category: "Transport", Severity: models.SeverityMedium, Description: "CBC suites enabled.", Mitigation: "Disable CBC suites."},
		},
	}
}

func titles(fs []models.Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Title)
	}
	return out
}

func TestSortFindingsBySeverity(t *testing.T) {
	r := sampleReport(t)
	sorted := SortFindings(r.Findings)
	var got []models.SeverityLevel
	for _, f := range sorted {
		got = append(got, f.Severity)
	}
	assert.Equal(t, []models.SeverityLevel{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo,
	}, got)
	assert.Equal(t, "Verbose errors", r.Findings[0].Title, "input is not reordered")
}

func TestSortFindingsIsStable(t *testing.T) {
	fs := []models.Finding{
		{Title: "b", Severity: models.SeverityHigh},
		{Title: "a", Severity: models.SeverityHigh},
		{Title: "c", Severity: models.SeverityCritical},
	}
	assert.Equal(t, []string{"c", "b", "a"}, titles(SortFindings(fs)))
}

func TestRiskRating(t *testing.T) {
	tests := []struct {
		name     string
		findings []models.Finding
		want     models.SeverityLevel
	}{
		{"closed critical ignored", []models.Finding{
			{Severity: models.SeverityCritical, Status: models.StatusClosed},
			{Severity: models.SeverityMedium, Status: models.StatusOpen},
		}, models.SeverityMedium},
		{"all closed", []models.Finding{
			{Severity: models.SeverityHigh, Status: models.StatusClosed},
			{Severity: models.SeverityLow, Status: models.StatusClosed},
		}, models.SeverityNone},
		{"no findings", nil, models.SeverityNone},
		{"empty status counts as open", []models.Finding{{Severity: models.SeverityLow}}, models.SeverityLow},
		{"highest open wins", []models.Finding{
			{Severity: models.SeverityInfo, Status: models.StatusOpen},
			{Severity: models.SeverityHigh, Status: models.StatusOpen},
		}, models.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskRating(tt.findings))
			assert.Equal(t, tt.want == models.SeverityNone, Compliant(tt.findings))
		})
	}
}

func TestSeverityColors(t *testing.T) {
	assert.Equal(t, "940000", SeverityColor(models.SeverityCritical).Hex())
	assert.Equal(t, "FF0000", SeverityColor(models.SeverityHigh).Hex())
	assert.Equal(t, "FFA500", SeverityColor(models.SeverityMedium).Hex())
	assert.Equal(t, "FFFF00", SeverityColor(models.SeverityLow).Hex())
	assert.Equal(t, "ADD8E6", SeverityColor(models.SeverityInfo).Hex())
	assert.Equal(t, "808080", SeverityColor(models.SeverityNone).Hex())
	assert.Equal(t, ColorWhite, TextColor(models.SeverityCritical))
	assert.Equal(t, ColorBlack, TextColor(models.SeverityMedium))
}

func TestCountMatrix(t *testing.T) {
	fs := sampleReport(t).Findings

	m := CountMatrix(fs, MatrixCountsOpenOnly)
	assert.Equal(t, 0, m[0][0].Count, "closed critical is not counted")
	assert.Equal(t, 1, m[0][1].Count)
	assert.Equal(t, 1, m[0][2].Count)
	assert.Equal(t, 1, m[1][0].Count)
	assert.Equal(t, 1, m[1][1].Count)
	assert.Equal(t, "Total", m[1][2].Label)
	assert.Equal(t, 4, m[1][2].Count)
	assert.Equal(t, ColorTotalFill, m[1][2].Fill)

	all := CountMatrix(fs, MatrixCountsAll)
	assert.Equal(t, 1, all[0][0].Count)
	assert.Equal(t, 5, all[1][2].Count)
}

func TestBuildFatalErrors(t *testing.T) {
	ctx := context.Background()
	for name, mutate := range map[string]func(*models.Report){
		"missing project":  func(r *models.Report) { r.ProjectName = " " },
		"missing assessor": func(r *models.Report) { r.AssessorName = "" },
		"bad severity":     func(r *models.Report) { r.Findings[0].Severity = "Severe" },
	} {
		t.Run(name, func(t *testing.T) {
			r := sampleReport(t)
			mutate(r)
			_, err := Build(ctx, r, Settings{})
			var be *DocumentBuildError
			require.True(t, errors.As(err, &be), "got %v", err)
			assert.True(t, be.Fatal)
		})
	}
}

func headings(d *Document) []string {
	var out []string
	for _, b := range d.Blocks {
		if h, ok := b.(Heading); ok {
			out = append(out, h.Text)
		}
	}
	return out
}

func TestBuildSectionOrder(t *testing.T) {
	d, err := Build(context.Background(), sampleReport(t), Settings{Organization: "Acme Bank", Division: "Assessment Unit"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		ReportTitle, "Acme Bank", "Assessment Unit",
		"1. Executive Summary", "1.1 Assessment Overview", "1.2 Scope",
		"2. High Level Summary",
		"3. Detailed Findings", "3.1 Vulnerabilities Found",
		"1. SQL injection", "2. Stored XSS", "3. Weak TLS", "4. Verbose errors", "5. Missing security headers",
		"4. Assessor Statement",
	}, headings(d))
	assert.Equal(t, models.SeverityHigh, d.Rating)
	assert.Equal(t, time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC), d.Created)
	assert.Empty(t, d.Warnings)
}

func paragraphText(d *Document) string {
	var b strings.Builder
	for _, blk := range d.Blocks {
		if p, ok := blk.(Paragraph); ok {
			for _, r := range p.Runs {
				b.WriteString(r.Text)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestAssessorStatementWording(t *testing.T) {
	r := sampleReport(t)
	d, err := Build(context.Background(), r, Settings{})
	require.NoError(t, err)
	assert.Contains(t, paragraphText(d),
		"Dana Reyes has completed a Security Assessment of Acme Portal in accordance with: OWASP top 10, PCI-DSS, ISO 27001 and the result is Non-Compliant.")
	assert.Contains(t, paragraphText(d), "The overall information security risk rating was calculated as: High.")
	assert.Contains(t, paragraphText(d), "We attacked Acme Portal from the internet.")

	for i := range r.Findings {
		r.Findings[i].Status = models.StatusClosed
	}
	d, err = Build(context.Background(), r, Settings{})
	require.NoError(t, err)
	assert.Contains(t, paragraphText(d), "and the result is Compliant.")
	assert.Contains(t, paragraphText(d), "calculated as: None.")
}

func TestCoverDetailsOmitEmptyOptionalRows(t *testing.T) {
	r := sampleReport(t)
	r.AssessmentType = models.AssessmentReassessment
	d, err := Build(context.Background(), r, Settings{})
	require.NoError(t, err)
	cover, ok := d.Blocks[1].(KeyValueTable)
	require.True(t, ok, "details table follows the title")
	assert.Equal(t, [2]string{"Project Name", "Acme Portal (Reassessment)"}, cover.Rows[0])
	assert.Equal(t, [2]string{"Date", "2026-03-05"}, cover.Rows[2])
	assert.Equal(t, [2]string{"Ticket Number", "SEC-42"}, cover.Rows[4])
	assert.Len(t, cover.Rows, 5, "empty build versions row is omitted")
}

func TestBadImageBecomesPlaceholder(t *testing.T) {
	r := sampleReport(t)
	r.Findings[1].PocImages = append(r.Findings[1].PocImages, models.Image{OriginalName: "broken.png", Data: []byte("not an image")})
	d, err := Build(context.Background(), r, Settings{})
	require.NoError(t, err)

	var placeholders []string
	for _, b := range d.Blocks {
		if p, ok := b.(Placeholder); ok {
			placeholders = append(placeholders, p.Text)
		}
	}
	assert.Equal(t, []string{"[Image: broken.png] - Failed to load"}, placeholders)
	require.Len(t, d.Warnings, 1)
	assert.Equal(t, 1, d.ImageFailures())

	for _, rd := range []Renderer{&PDFRenderer{}, &DOCXRenderer{}} {
		out, err := rd.Render(context.Background(), d)
		require.NoError(t, err, rd.Format())
		assert.NotEmpty(t, out)
	}
}

func TestLogoFallback(t *testing.T) {
	r := sampleReport(t)
	d, err := Build(context.Background(), r, Settings{})
	require.NoError(t, err)
	assert.Nil(t, d.Logo)
	_, isHeading := d.Blocks[0].(Heading)
	assert.True(t, isHeading, "text-only title block without a logo")

	d, err = Build(context.Background(), r, Settings{Logo: []byte("garbage")})
	require.NoError(t, err)
	assert.Nil(t, d.Logo)
	assert.Len(t, d.Warnings, 1)
	assert.Zero(t, d.ImageFailures())

	d, err = Build(context.Background(), r, Settings{Logo: pngBytes(t, 400, 100)})
	require.NoError(t, err)
	require.NotNil(t, d.Logo)
	img, ok := d.Blocks[0].(ImageBlock)
	require.True(t, ok)
	assert.True(t, img.Center)

	for _, rd := range []Renderer{&PDFRenderer{}, &DOCXRenderer{}} {
		_, err := rd.Render(context.Background(), d)
		require.NoError(t, err, rd.Format())
	}
}

func TestBuildAndRenderHonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, sampleReport(t), Settings{})
	assert.ErrorIs(t, err, context.Canceled)

	d, err := Build(context.Background(), sampleReport(t), Settings{})
	require.NoError(t, err)
	for _, rd := range []Renderer{&PDFRenderer{}, &DOCXRenderer{}} {
		_, err := rd.Render(ctx, d)
		assert.ErrorIs(t, err, context.Canceled, rd.Format())
	}
}

func renderBoth(t *testing.T, r *models.Report) (pdf string, docx string) {
	t.Helper()
	d, err := Build(context.Background(), r, Settings{})
	require.NoError(t, err)
	p, err := (&PDFRenderer{Uncompressed: true}).Render(context.Background(), d)
	require.NoError(t, err)
	w, err := (&DOCXRenderer{}).Render(context.Background(), d)
	require.NoError(t, err)
	return string(p), docxPart(t, w, "word/document.xml")
}

func docxPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatalf("part %s missing", name)
	return ""
}

func between(t *testing.T, s, from, to string) string {
	t.Helper()
	i := strings.Index(s, from)
	require.GreaterOrEqual(t, i, 0, "missing %q", from)
	j := strings.Index(s[i:], to)
	require.GreaterOrEqual(t, j, 0, "missing %q", to)
	return s[i : i+j]
}

var (
	pdfTitleRe  = regexp.MustCompile(`\((\d+)\. ([^()]*)\) Tj`)
	docxTitleRe = regexp.MustCompile(`<w:t xml:space="preserve">(\d+)\. ([^<]*)</w:t>`)
)

func findingTitles(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1]+". "+m[2])
	}
	return out
}

func pdfFill(c RGB) string {
	return fmt.Sprintf("%.3f %.3f %.3f rg", float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
}

func TestCrossFormatEquivalence(t *testing.T) {
	r := sampleReport(t)
	pdf, docx := renderBoth(t, r)
	require.True(t, strings.HasPrefix(pdf, "%PDF-"))

	pdfTitles := findingTitles(pdfTitleRe, between(t, pdf, "(3.1 Vulnerabilities Found) Tj", "(4. Assessor Statement) Tj"))
	docxTitles := findingTitles(docxTitleRe, between(t, docx, ">3.1 Vulnerabilities Found<", ">4. Assessor Statement<"))
	want := []string{"1. SQL injection", "2. Stored XSS", "3. Weak TLS", "4. Verbose errors", "5. Missing security headers"}
	assert.Equal(t, want, pdfTitles)
	assert.Equal(t, want, docxTitles)

	for _, s := range models.Severities {
		c := SeverityColor(s)
		assert.Contains(t, pdf, pdfFill(c), "pdf fill for %s", s)
		assert.Contains(t, docx, `w:fill="`+c.Hex()+`"`, "docx fill for %s", s)
	}
	assert.Contains(t, docx, `w:fill="`+ColorHeaderFill.Hex()+`"`)
	assert.Contains(t, docx, `w:fill="`+ColorTotalFill.Hex()+`"`)
	assert.Contains(t, docx, "We attacked Acme Portal from the internet.")
	assert.Contains(t, pdf, "(1 of ")
}

func TestOptionalFieldOmission(t *testing.T) {
	r := sampleReport(t)
	r.Findings = []models.Finding{{Title: "Only one", Category: "Misc", Severity: models.SeverityLow, Description: "d"}}
	pdf, docx := renderBoth(t, r)
	for _, label := range []string{"Impact", "Mitigation", "Affected Endpoints"} {
		assert.Zero(t, strings.Count(pdf, "("+label+": ) Tj"), label)
		assert.Zero(t, strings.Count(docx, `>`+label+`: </w:t>`), label)
	}

	r.Findings[0].Impact = "Account takeover"
	pdf, docx = renderBoth(t, r)
	assert.Equal(t, 1, strings.Count(pdf, "(Impact: ) Tj"))
	assert.Equal(t, 1, strings.Count(docx, `>Impact: </w:t>`))
}

func TestDOCXPackageIsWellFormed(t *testing.T) {
	r := sampleReport(t)
	d, err := Build(context.Background(), r, Settings{Logo: pngBytes(t, 300, 80)})
	require.NoError(t, err)
	out, err := (&DOCXRenderer{}).Render(context.Background(), d)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
		if !strings.HasSuffix(f.Name, ".xml") && !strings.HasSuffix(f.Name, ".rels") {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		dec := xml.NewDecoder(rc)
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, f.Name)
		}
		rc.Close()
	}
	for _, part := range []string{
		"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml",
		"word/header1.xml", "word/footer1.xml", "word/_rels/document.xml.rels", "word/_rels/header1.xml.rels",
		"docProps/core.xml", "word/media/header_logo.png", "word/media/image1.png", "word/media/image3.jpeg",
	} {
		assert.True(t, names[part], part)
	}

	doc := docxPart(t, out, "word/document.xml")
	assert.Contains(t, doc, "<w:titlePg/>")
	// 40px wide PoC image stays at natural size: 40 * 9525 EMU.
	assert.Contains(t, doc, `cx="381000"`)
	assert.Contains(t, docxPart(t, out, "docProps/core.xml"), "2026-03-06T12:00:00Z")

	again, err := (&DOCXRenderer{}).Render(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, out, again, "output is deterministic")
}

func TestDecodePicture(t *testing.T) {
	j := jpegBytes(t, 16, 8)
	p, err := decodePicture("a.jpg", j)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", p.Format)
	assert.Equal(t, j, p.Data, "jpeg is embedded unchanged")
	assert.Equal(t, 16, p.Width)

	var g bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 10, 5), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&g, pal, nil))
	p, err = decodePicture("a.gif", g.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", p.Format)
	assert.Equal(t, 10, p.Width)
	_, err = png.Decode(bytes.NewReader(p.Data))
	assert.NoError(t, err)

	_, err = decodePicture("empty", nil)
	assert.Error(t, err)
	_, err = decodePicture("junk", []byte("GIF89a-but-not-really"))
	assert.Error(t, err)
	_, err = decodePicture("truncated", j[:len(j)/2])
	assert.Error(t, err)
}

func TestFitCapsWidthAndKeepsAspect(t *testing.T) {
	wide := Picture{Width: 2000, Height: 1000}
	w, h := fitPx(wide, ImageMaxWidthPx)
	assert.Equal(t, 500, w)
	assert.Equal(t, 250, h)
	mw, mh := fitMM(wide, ImageMaxWidthMM)
	assert.Equal(t, 150.0, mw)
	assert.Equal(t, 75.0, mh)

	small := Picture{Width: 96, Height: 48}
	mw, mh = fitMM(small, ImageMaxWidthMM)
	assert.InDelta(t, 25.4, mw, 0.001)
	assert.InDelta(t, 12.7, mh, 0.001)
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, ".pdf", r.Extension())
	r, err = ForFormat("docx")
	require.NoError(t, err)
	assert.Equal(t, "docx", r.Format())
	_, err = ForFormat("odt")
	assert.Error(t, err)
}
