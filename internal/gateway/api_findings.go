package gateway

import (
	"net/http"
	"strconv"

	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/models"
)

type listFindingsResponse struct {
	Items   []models.Finding      `json:"items"`
	Skipped []store.RecordFailure `json:"skipped"`
}

func (gw *Gateway) handleListFindings(w http.ResponseWriter, r *http.Request) {
	items, skipped, err := gw.store.ListFindings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Finding{}
	}
	if skipped == nil {
		skipped = []store.RecordFailure{}
	}
	writeJSON(w, http.StatusOK, listFindingsResponse{Items: items, Skipped: skipped})
}

func (gw *Gateway) uploadLimit() int64 {
	// base64 inflates the payload by a third.
	return int64(gw.cfg.Gateway.MaxUploadMB)<<20*4/3 + maxJSONBody
}

func (gw *Gateway) handleCreateFinding(w http.ResponseWriter, r *http.Request) {
	var f models.Finding
	if err := decodeJSON(w, r, gw.uploadLimit()*2, &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.store.CreateFinding(r.Context(), r.PathValue("id"), &f); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (gw *Gateway) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := gw.store.GetFinding(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (gw *Gateway) handleUpdateFinding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch models.FindingPatch
	if err := decodeJSON(w, r, maxJSONBody, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := gw.store.UpdateFinding(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (gw *Gateway) handleDeleteFinding(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.store.DeleteFinding(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (gw *Gateway) handleAddImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var up models.ImageUpload
	if err := decodeJSON(w, r, gw.uploadLimit(), &up); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := gw.store.AddImage(r.Context(), id, up)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	img.Data = nil
	writeJSON(w, http.StatusCreated, img)
}

// handleGetImage serves the decrypted bytes; ?meta=1 returns the metadata as JSON.
func (gw *Gateway) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := gw.store.GetImage(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if r.URL.Query().Get("meta") != "" {
		img.Data = nil
		writeJSON(w, http.StatusOK, img)
		return
	}
	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (gw *Gateway) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.store.DeleteImage(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}
