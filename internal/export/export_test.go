package export

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC) }

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sampleReport(t *testing.T) *models.Report {
	t.Helper()
	pic := testPNG(t)
	return &models.Report{
		ID:           "r-1",
		ProjectName:  "Acme   Customer\tPortal",
		Version:      "1.0",
		AssessorName: "Dana Reyes",
		EndDate:      "2026-04-01",
		UpdatedAt:    time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC),
		Findings: []models.Finding{
			{Title: "Verbose errors", Category: "Config", Severity: models.SeverityLow, Status: models.StatusOpen,
				PocImages: []models.Image{{Filename: "1b2c.PNG", OriginalName: "trace.png", MimeType: "image/png", Data: pic}}},
			{Title: "SQL injection", Category: "Injection", Severity: models.SeverityCritical, Status: models.StatusOpen,
				PocImages: []models.Image{
					{OriginalName: "login", MimeType: "image/jpeg", Data: pic},
					{OriginalName: "dump.png", MimeType: "image/png", Data: pic},
				}},
		},
	}
}

func TestFilename(t *testing.T) {
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Acme Customer Portal - Penetration Test Report_2026-04-02.pdf",
		Filename("  Acme   Customer\tPortal ", DocumentKind, date, ".pdf"))
	assert.Equal(t, "ab - Penetration Test Report_2026-04-02.docx",
		Filename("a/b", DocumentKind, date, ".docx"))
	assert.Equal(t, "Q3 audit - Penetration Test Report_2026-04-02.pdf",
		Filename(`Q3 <audit>?*:"|`, DocumentKind, date, ".pdf"))
	assert.Equal(t, "Report - Penetration Test Report_2026-04-02.pdf",
		Filename("../..", DocumentKind, date, ".pdf"))

	// NFD input "e" + combining acute is composed to a single rune.
	assert.Equal(t, "Caf\u00e9 - Penetration Test Report_2026-04-02.pdf",
		Filename("Cafe\u0301", DocumentKind, date, ".pdf"))
}

func TestFolder(t *testing.T) {
	assert.Equal(t, "Acme_Customer_Portal", Folder("Acme   Customer\tPortal"))
	assert.Equal(t, "SQL_injection", Folder(" SQL injection "))
	assert.Equal(t, "Report", Folder("  "))
}

func TestExportSingleFormat(t *testing.T) {
	r := sampleReport(t)

	f, err := Export(context.Background(), "pdf", r, render.Settings{}, WithClock(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, "Acme Customer Portal - Penetration Test Report_2026-04-02.pdf", f.Name)
	assert.Equal(t, ContentTypePDF, f.ContentType)
	assert.True(t, bytes.HasPrefix(f.Data, []byte("%PDF-")))

	f, err = Export(context.Background(), "docx", r, render.Settings{}, WithClock(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, ContentTypeDOCX, f.ContentType)
	assert.True(t, strings.HasSuffix(f.Name, ".docx"))

	_, err = Export(context.Background(), "odt", r, render.Settings{})
	assert.Error(t, err)
}

func TestExportFatalBuildError(t *testing.T) {
	r := sampleReport(t)
	r.AssessorName = ""
	_, err := Export(context.Background(), "zip", r, render.Settings{})
	var be *render.DocumentBuildError
	require.ErrorAs(t, err, &be)
	assert.True(t, be.Fatal)
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestBundleLayout(t *testing.T) {
	r := sampleReport(t)
	var mu sync.Mutex
	seen := map[string]bool{}
	obs := func(format string, _ time.Duration, d *render.Document, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		assert.NotNil(t, d)
		seen[format] = true
	}

	f, err := Bundle(context.Background(), r, render.Settings{}, WithClock(fixedNow), WithObserver(obs))
	require.NoError(t, err)
	assert.Equal(t, "Acme_Customer_Portal_Assessment.zip", f.Name)
	assert.Equal(t, ContentTypeZIP, f.ContentType)
	assert.Equal(t, map[string]bool{"pdf": true, "docx": true}, seen)

	assert.Equal(t, []string{
		"Acme_Customer_Portal/Acme_Customer_Portal_assessment.docx",
		"Acme_Customer_Portal/Acme_Customer_Portal_assessment.pdf",
		"Acme_Customer_Portal/findingsImages/finding_1_SQL_injection_1.jpg",
		"Acme_Customer_Portal/findingsImages/finding_1_SQL_injection_2.png",
		"Acme_Customer_Portal/findingsImages/finding_2_Verbose_errors_1.png",
	}, zipNames(t, f.Data))
}

func TestBundleReassessmentNames(t *testing.T) {
	r := sampleReport(t)
	r.AssessmentType = models.AssessmentReassessment
	f, err := Bundle(context.Background(), r, render.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "Acme_Customer_Portal_Reassessment.zip", f.Name)
	assert.Contains(t, zipNames(t, f.Data), "Acme_Customer_Portal/Acme_Customer_Portal_reassessment.pdf")
}

func TestBundleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Bundle(ctx, sampleReport(t), render.Settings{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := WriteFile(dir, "a.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.pdf"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	for _, bad := range []string{"", ".", "..", "../a.pdf", "sub/a.pdf", "/etc/passwd"} {
		_, err := WriteFile(dir, bad, []byte("x"))
		assert.Error(t, err, bad)
	}
}
