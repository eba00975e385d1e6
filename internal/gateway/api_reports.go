package gateway

import (
	"net/http"
	"strings"

	"github.com/CosmoTheDev/assessmaker/internal/export"
	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/models"
)

// listReportsResponse carries the readable rows plus the ones that were
// skipped because they could not be decrypted.
type listReportsResponse struct {
	Items   []models.ReportSummary `json:"items"`
	Skipped []store.RecordFailure  `json:"skipped"`
}

func (gw *Gateway) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReportFilter{
		AssessmentType: models.AssessmentType(strings.TrimSpace(q.Get("type"))),
		ProjectStatus:  strings.TrimSpace(q.Get("status")),
		ParentID:       strings.TrimSpace(q.Get("parent")),
		Limit:          queryInt(r, "limit"),
		Offset:         queryInt(r, "offset"),
	}
	items, skipped, err := gw.store.ListReports(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if items == nil {
		items = []models.ReportSummary{}
	}
	if skipped == nil {
		skipped = []store.RecordFailure{}
	}
	writeJSON(w, http.StatusOK, listReportsResponse{Items: items, Skipped: skipped})
}

func (gw *Gateway) reportBodyLimit() int64 {
	// A report may embed a logo and PoC images.
	return int64(gw.cfg.Gateway.MaxUploadMB)<<20*4 + maxJSONBody
}

func (gw *Gateway) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var rep models.Report
	if err := decodeJSON(w, r, gw.reportBodyLimit(), &rep); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep.ID = ""
	if gw.templates != nil {
		gw.templates.Apply(&rep)
	}
	if err := gw.store.CreateReport(r.Context(), &rep); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (gw *Gateway) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := gw.store.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (gw *Gateway) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	var patch models.ReportPatch
	if err := decodeJSON(w, r, gw.reportBodyLimit(), &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := gw.store.UpdateReport(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (gw *Gateway) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := gw.store.DeleteReport(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (gw *Gateway) handleCreateReassessment(w http.ResponseWriter, r *http.Request) {
	var in models.ReassessmentInput
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, maxJSONBody, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rep, err := gw.store.CreateReassessment(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (gw *Gateway) handleExportReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.PathValue("format"))
	switch format {
	case "pdf", "docx", "zip":
	default:
		writeError(w, http.StatusBadRequest, "format must be pdf, docx or zip")
		return
	}
	rep, err := gw.store.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	f, err := export.Export(r.Context(), format, rep, gw.settings, gw.exportOptions()...)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if len(f.Warnings) > 0 {
		w.Header().Set("X-Export-Warnings", strings.Join(warningTexts(f.Warnings), "; "))
	}
	attachment(w, f.Name, f.ContentType, len(f.Data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func warningTexts(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
