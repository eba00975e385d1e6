package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/CosmoTheDev/assessmaker/internal/backup"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
)

// maxArchiveBytes caps an uploaded backup archive.
const maxArchiveBytes = 1 << 30

func (gw *Gateway) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	data, sum, err := backup.Export(r.Context(), gw.store, gw.backupOps...)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if len(sum.Skipped) > 0 {
		w.Header().Set("X-Backup-Skipped", strconv.Itoa(len(sum.Skipped)))
	}
	attachment(w, backup.ArchiveName(gw.now()), "application/json", len(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type restoreResponse struct {
	Message string               `json:"message"`
	Summary backup.ImportSummary `json:"summary"`
}

func (gw *Gateway) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArchiveBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading archive: "+err.Error())
		return
	}
	sum, err := backup.Import(r.Context(), gw.store, data, gw.backupOps...)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, restoreResponse{Message: sum.Message(), Summary: sum})
	case errors.Is(err, backup.ErrSealed), errors.Is(err, backup.ErrInvalidArchive):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fieldcrypt.ErrDecryption):
		writeError(w, http.StatusUnprocessableEntity, "unable to decrypt this archive")
	default:
		writeStoreError(w, r, err)
	}
}
