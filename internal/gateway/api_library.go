package gateway

import (
	"net/http"

	"github.com/CosmoTheDev/assessmaker/models"
)

func (gw *Gateway) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	items, err := gw.store.ListLibrary(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []models.LibraryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (gw *Gateway) handleCreateLibraryEntry(w http.ResponseWriter, r *http.Request) {
	var e models.LibraryEntry
	if err := decodeJSON(w, r, maxJSONBody, &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e.ID = 0
	if err := gw.store.CreateLibraryEntry(r.Context(), &e); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (gw *Gateway) handleDeleteLibraryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := gw.store.DeleteLibraryEntry(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

type instantiateRequest struct {
	ReportID string `json:"reportId"`
}

func (gw *Gateway) handleInstantiateLibraryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req instantiateRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ReportID == "" {
		writeError(w, http.StatusBadRequest, "reportId is required")
		return
	}
	f, err := gw.store.InstantiateLibraryEntry(r.Context(), id, req.ReportID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}
