package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/assessmaker/internal/backup"
	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/metrics"
	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/internal/templates"
	"github.com/CosmoTheDev/assessmaker/models"
)

type testGateway struct {
	gw      *Gateway
	db      database.DB
	handler http.Handler
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	m := metrics.New(false)
	key, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	codec, err := fieldcrypt.New(key, fieldcrypt.WithIterations(1000), fieldcrypt.WithObserver(m.CodecObserver()))
	require.NoError(t, err)
	st := store.New(db, codec, store.WithSkipObserver(m.SkipObserver()))
	tpl, err := templates.Defaults()
	require.NoError(t, err)

	cfg := &config.Config{Gateway: config.GatewayConfig{MaxUploadMB: 1}}
	gw := New(cfg, st,
		WithMetrics(m),
		WithTemplates(tpl),
		WithBackupOptions(backup.WithSealer(codec)),
	)
	return &testGateway{gw: gw, db: db, handler: buildHandler(gw)}
}

func (tg *testGateway) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	tg.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func (tg *testGateway) createReport(t *testing.T) models.Report {
	t.Helper()
	rr := tg.do(t, http.MethodPost, "/api/reports", map[string]any{
		"projectName":  "Acme Portal",
		"assessorName": "Dana Reyes",
		"urls":         "https://acme.test/login",
		"credentials":  "admin / hunter2",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[models.Report](t, rr)
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.NRGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHealthAndEncryptionStatus(t *testing.T) {
	tg := newTestGateway(t)

	rr := tg.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = tg.do(t, http.MethodGet, "/api/encryption/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[fieldcrypt.Status](t, rr)
	assert.Equal(t, "AES-256-GCM", st.Algorithm)
	assert.Contains(t, st.EncryptedFields[fieldcrypt.EntityReport], "credentials")
}

func TestCreateGetListReport(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)
	assert.NotEmpty(t, rep.ID)
	assert.Contains(t, rep.Methodology, "OWASP", "empty sections are filled from templates")

	var raw string
	require.NoError(t, tg.db.Get(context.Background(), &raw, `SELECT credentials FROM reports WHERE id = ?`, rep.ID))
	assert.True(t, strings.HasPrefix(raw, fieldcrypt.Marker))

	rr := tg.do(t, http.MethodGet, "/api/reports/"+rep.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[models.Report](t, rr)
	assert.Equal(t, "admin / hunter2", got.Credentials)

	rr = tg.do(t, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[listReportsResponse](t, rr)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Acme Portal", list.Items[0].ProjectName)
	assert.Empty(t, list.Skipped)
}

func TestReportErrorsMapToStatusCodes(t *testing.T) {
	tg := newTestGateway(t)

	rr := tg.do(t, http.MethodGet, "/api/reports/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = tg.do(t, http.MethodPost, "/api/reports", map[string]any{"assessorName": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = tg.do(t, http.MethodPost, "/api/reports", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = tg.do(t, http.MethodGet, "/api/findings/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUndecryptableReportIs422AndSkippedInList(t *testing.T) {
	tg := newTestGateway(t)
	bad := tg.createReport(t)
	tg.createReport(t)
	require.NoError(t, tg.db.Exec(context.Background(),
		`UPDATE reports SET project_name = ? WHERE id = ?`, "ENC:not-a-payload", bad.ID))

	rr := tg.do(t, http.MethodGet, "/api/reports/"+bad.ID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "unable to decrypt this record", decode[map[string]string](t, rr)["error"])

	rr = tg.do(t, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[listReportsResponse](t, rr)
	assert.Len(t, list.Items, 1)
	require.Len(t, list.Skipped, 1)
	assert.Equal(t, bad.ID, list.Skipped[0].ID)
}

func TestFindingAndImageLifecycle(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)

	rr := tg.do(t, http.MethodPost, "/api/reports/"+rep.ID+"/findings", map[string]any{
		"title":             "SQL injection",
		"severity":          "High",
		"affectedEndpoints": []string{"https://acme.test/login"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	f := decode[models.Finding](t, rr)

	rr = tg.do(t, http.MethodPost, "/api/reports/"+rep.ID+"/findings", map[string]any{
		"title":             "Stray endpoint",
		"severity":          "Low",
		"affectedEndpoints": []string{"https://elsewhere.test"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	id := itoa(f.ID)
	rr = tg.do(t, http.MethodPost, "/api/findings/"+id+"/images", models.ImageUpload{Name: "poc.png", Data: pngDataURL(t)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	img := decode[models.Image](t, rr)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Empty(t, img.Data)

	rr = tg.do(t, http.MethodPost, "/api/findings/"+id+"/images", models.ImageUpload{Name: "x.txt", Data: "data:text/plain;base64,aGVsbG8="})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = tg.do(t, http.MethodGet, "/api/images/"+itoa(img.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = tg.do(t, http.MethodPut, "/api/findings/"+id, map[string]any{"status": "CLOSED"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, models.StatusClosed, decode[models.Finding](t, rr).Status)

	rr = tg.do(t, http.MethodGet, "/api/reports/"+rep.ID+"/findings", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[listFindingsResponse](t, rr).Items, 1)

	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodDelete, "/api/images/"+itoa(img.ID), nil).Code)
	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodDelete, "/api/findings/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, tg.do(t, http.MethodGet, "/api/findings/"+id, nil).Code)
}

func TestExportFormats(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)

	rr := tg.do(t, http.MethodGet, "/api/reports/"+rep.ID+"/export/pdf", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "Acme Portal - Penetration Test Report_")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")))

	rr = tg.do(t, http.MethodGet, "/api/reports/"+rep.ID+"/export/zip", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "Acme_Portal_Assessment.zip")

	rr = tg.do(t, http.MethodGet, "/api/reports/"+rep.ID+"/export/odt", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	empty := ""
	rr = tg.do(t, http.MethodPut, "/api/reports/"+rep.ID, models.ReportPatch{AssessorName: &empty})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = tg.do(t, http.MethodGet, "/api/reports/"+rep.ID+"/export/docx", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "export failed")
}

func TestReassessmentRoute(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)

	rr := tg.do(t, http.MethodPost, "/api/reports/"+rep.ID+"/reassessment", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	child := decode[models.Report](t, rr)
	assert.Equal(t, models.AssessmentReassessment, child.AssessmentType)
	assert.Equal(t, rep.ID, child.ParentAssessmentID)

	rr = tg.do(t, http.MethodGet, "/api/reports?parent="+rep.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[listReportsResponse](t, rr).Items, 1)
}

func TestLibraryInstantiate(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)

	rr := tg.do(t, http.MethodPost, "/api/library", models.LibraryEntry{Title: "Weak TLS", Severity: models.SeverityMedium})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	entry := decode[models.LibraryEntry](t, rr)

	rr = tg.do(t, http.MethodPost, "/api/library/"+itoa(entry.ID)+"/instantiate", map[string]string{"reportId": rep.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	f := decode[models.Finding](t, rr)
	assert.Equal(t, "Weak TLS", f.Title)
	assert.Equal(t, models.StatusOpen, f.Status)

	rr = tg.do(t, http.MethodPost, "/api/library/"+itoa(entry.ID)+"/instantiate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = tg.do(t, http.MethodGet, "/api/library", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[map[string][]models.LibraryEntry](t, rr)["items"], 1)

	assert.Equal(t, http.StatusOK, tg.do(t, http.MethodDelete, "/api/library/"+itoa(entry.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, tg.do(t, http.MethodDelete, "/api/library/"+itoa(entry.ID), nil).Code)
}

func TestBackupRoundTrip(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)

	rr := tg.do(t, http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	archive := rr.Body.Bytes()
	assert.True(t, bytes.HasPrefix(archive, []byte(fieldcrypt.Marker)))
	assert.NotContains(t, string(archive), "hunter2")

	rr = tg.do(t, http.MethodPost, "/api/backup/restore", archive)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[restoreResponse](t, rr)
	assert.Equal(t, 1, res.Summary.Reports.Imported)
	assert.NotEmpty(t, res.Summary.Reports.Renamed[rep.ID], "colliding id is renamed")

	rr = tg.do(t, http.MethodPost, "/api/backup/restore", `{"format":"other","version":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	tg := newTestGateway(t)
	rep := tg.createReport(t)
	tg.do(t, http.MethodGet, "/api/reports/"+rep.ID, nil)
	tg.do(t, http.MethodGet, "/api/reports/"+rep.ID+"/export/pdf", nil)

	rr := tg.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `assessmaker_http_requests_total{code="200",route="GET /api/reports/{id}"} 1`)
	assert.Contains(t, body, `assessmaker_http_requests_total{code="201",route="POST /api/reports"} 1`)
	assert.Contains(t, body, `assessmaker_codec_operations_total{op="encrypt",result="ok"}`)
	assert.Contains(t, body, `assessmaker_render_duration_seconds_count{format="pdf"} 1`)
}
