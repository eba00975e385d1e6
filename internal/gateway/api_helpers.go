package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/internal/store"
)

// maxJSONBody caps request bodies that carry no image payload.
const maxJSONBody = 1 << 20

// --- HTTP response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store, codec and renderer errors onto status codes.
// Decryption failures never leak the underlying cause to the client.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var be *render.DocumentBuildError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fieldcrypt.ErrDecryption):
		slog.Warn("gateway: decrypt failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "unable to decrypt this record")
	case errors.As(err, &be) && be.Fatal:
		writeError(w, http.StatusBadRequest, "export failed: "+be.Err.Error())
	case r.Context().Err() != nil:
		slog.Debug("gateway: request cancelled", "path", r.URL.Path)
	default:
		slog.Error("gateway: request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("request body exceeds %d bytes", tooBig.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// pathID extracts a numeric path parameter by name from the request.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return 0, fmt.Errorf("missing path parameter %q", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// attachment sets the headers of a file download.
func attachment(w http.ResponseWriter, name, contentType string, size int) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "no-store")
}

func logRequest(r *http.Request, route string, code int, elapsed time.Duration) {
	slog.Debug("gateway: request",
		"method", r.Method, "route", route, "code", code, "duration_ms", elapsed.Milliseconds())
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
