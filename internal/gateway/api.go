package gateway

import (
	"net/http"
	"time"
)

// buildHandler wires all REST routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", gw.handleRoot)
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/encryption/status", gw.handleEncryptionStatus)

	// Reports
	mux.HandleFunc("GET /api/reports", gw.handleListReports)
	mux.HandleFunc("POST /api/reports", gw.handleCreateReport)
	mux.HandleFunc("GET /api/reports/{id}", gw.handleGetReport)
	mux.HandleFunc("PUT /api/reports/{id}", gw.handleUpdateReport)
	mux.HandleFunc("DELETE /api/reports/{id}", gw.handleDeleteReport)
	mux.HandleFunc("POST /api/reports/{id}/reassessment", gw.handleCreateReassessment)
	mux.HandleFunc("GET /api/reports/{id}/export/{format}", gw.handleExportReport)

	// Findings and PoC images
	mux.HandleFunc("GET /api/reports/{id}/findings", gw.handleListFindings)
	mux.HandleFunc("POST /api/reports/{id}/findings", gw.handleCreateFinding)
	mux.HandleFunc("GET /api/findings/{id}", gw.handleGetFinding)
	mux.HandleFunc("PUT /api/findings/{id}", gw.handleUpdateFinding)
	mux.HandleFunc("DELETE /api/findings/{id}", gw.handleDeleteFinding)
	mux.HandleFunc("POST /api/findings/{id}/images", gw.handleAddImage)
	mux.HandleFunc("GET /api/images/{id}", gw.handleGetImage)
	mux.HandleFunc("DELETE /api/images/{id}", gw.handleDeleteImage)

	// Findings library
	mux.HandleFunc("GET /api/library", gw.handleListLibrary)
	mux.HandleFunc("POST /api/library", gw.handleCreateLibraryEntry)
	mux.HandleFunc("DELETE /api/library/{id}", gw.handleDeleteLibraryEntry)
	mux.HandleFunc("POST /api/library/{id}/instantiate", gw.handleInstantiateLibraryEntry)

	// Backup
	mux.HandleFunc("GET /api/backup", gw.handleBackupExport)
	mux.HandleFunc("POST /api/backup/restore", gw.handleBackupRestore)

	if gw.metrics != nil {
		mux.Handle("GET /metrics", gw.metrics.Handler())
	}
	return gw.instrument(mux)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs every request at debug level and counts it by route pattern.
func (gw *Gateway) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if gw.metrics != nil {
			gw.metrics.ObserveHTTP(route, rec.code)
		}
		logRequest(r, route, rec.code, time.Since(start))
	})
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "assessmaker gateway",
		"status": "running",
		"endpoints": []string{
			"GET /health",
			"GET /api/encryption/status",
			"GET /api/reports",
			"POST /api/reports",
			"GET /api/reports/{id}",
			"GET /api/reports/{id}/export/{format}",
			"GET /api/library",
			"GET /api/backup",
			"GET /metrics",
		},
	})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := gw.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(gw.startedAt).Seconds()),
	})
}

func (gw *Gateway) handleEncryptionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.store.Codec().Status())
}
