package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	exports, err := h.exports.List(r.Context(), requester)
	if err != nil {
		writeServiceError(w, "listExports", err)
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	exportID := chi.URLParam(r, "export_id")
	if exportID == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}

	export, err := h.exports.Get(r.Context(), exportID, requester)
	if err != nil {
		writeServiceError(w, "getExport", err)
		return
	}

	Success(w, "", export)
}
