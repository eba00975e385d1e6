package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/models"
)

func TestCodecObserverCountsResults(t *testing.T) {
	m := New(false)
	c, err := fieldcrypt.New([]byte("0123456789abcdef0123456789abcdef"),
		fieldcrypt.WithIterations(1000), fieldcrypt.WithObserver(m.CodecObserver()))
	require.NoError(t, err)

	enc, err := c.Encrypt("secret")
	require.NoError(t, err)
	_, err = c.Decrypt(enc)
	require.NoError(t, err)
	_, err = c.Decrypt("ENC:not-a-payload")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.codecOps.WithLabelValues("encrypt", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codecOps.WithLabelValues("decrypt", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codecOps.WithLabelValues("decrypt", "malformed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.codecDuration))
}

func TestSkipAndHTTPCounters(t *testing.T) {
	m := New(false)
	skip := m.SkipObserver()
	skip(fieldcrypt.EntityReport)
	skip(fieldcrypt.EntityReport)
	m.ObserveHTTP("GET /api/reports", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.skipped.WithLabelValues("reports")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET /api/reports", "200")))
}

func TestObserveRenderCountsImageFailures(t *testing.T) {
	m := New(false)
	r := &models.Report{
		ProjectName:  "Acme",
		AssessorName: "Dana Reyes",
		Findings: []models.Finding{{
			Title: "XSS", Severity: models.SeverityHigh,
			PocImages: []models.Image{{OriginalName: "bad.png", Data: []byte("nope")}},
		}},
	}
	d, err := render.Build(context.Background(), r, render.Settings{})
	require.NoError(t, err)

	m.ObserveRender("pdf", 20*time.Millisecond, d, nil)
	m.ObserveRender("docx", 10*time.Millisecond, nil, context.Canceled)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.imageFailures))
	assert.Equal(t, 2, testutil.CollectAndCount(m.renderTime))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New(true)
	m.ObserveHTTP("GET /health", 200)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `assessmaker_http_requests_total{code="200",route="GET /health"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
