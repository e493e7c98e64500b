package handler

import "net/http"

// HandleEnableAutosave handles POST /v1/diagrams/{ns}/autosave/enable.
func (h *Handler) HandleEnableAutosave(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}
	b.Enable()
	h.writeJSON(w, r, http.StatusOK, b.Status())
}

// HandleDisableAutosave handles POST /v1/diagrams/{ns}/autosave/disable.
// A pending snapshot is dropped when its timer fires.
func (h *Handler) HandleDisableAutosave(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}
	b.Disable()
	h.writeJSON(w, r, http.StatusOK, b.Status())
}

// HandleAutosaveStatus handles GET /v1/diagrams/{ns}/autosave.
func (h *Handler) HandleAutosaveStatus(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, r, http.StatusOK, b.Status())
}
