package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/yndnr/diagsave-go/internal/core/domain"
)

// HandleRequestSave handles POST /v1/diagrams/{ns}/backups/requests.
// The snapshot is scheduled for a debounced write; the response only
// reports whether it was accepted.
func (h *Handler) HandleRequestSave(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}
	snap, ok := h.readSnapshot(w, r)
	if !ok {
		return
	}

	b.RequestSave(snap)
	st := b.Status()
	h.writeJSON(w, r, http.StatusAccepted, &SaveAcceptedResponse{
		Namespace: st.Namespace,
		Enabled:   st.Enabled,
		Pending:   st.Pending,
	})
}

// HandleForceSave handles POST /v1/diagrams/{ns}/backups.
func (h *Handler) HandleForceSave(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}
	snap, ok := h.readSnapshot(w, r)
	if !ok {
		return
	}

	info, err := b.ForceSave(r.Context(), snap)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, &ForceSaveResponse{
		Namespace: b.Namespace(),
		Saved:     info,
	})
}

// HandleLatest handles GET /v1/diagrams/{ns}/backups/latest.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}

	snap, info, err := b.LatestInfo(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newSnapshotResponse(b.Namespace(), snap, info))
}

// HandleGetBackup handles GET /v1/diagrams/{ns}/backups/{id}.
func (h *Handler) HandleGetBackup(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}

	snap, info, err := b.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newSnapshotResponse(b.Namespace(), snap, info))
}

// HandleListBackups handles GET /v1/diagrams/{ns}/backups.
func (h *Handler) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}

	items, err := b.History(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &ListBackupsResponse{
		Namespace: b.Namespace(),
		Items:     items,
		Total:     len(items),
	})
}

// HandleClearBackups handles DELETE /v1/diagrams/{ns}/backups.
func (h *Handler) HandleClearBackups(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buffer(w, r)
	if !ok {
		return
	}

	n, err := b.Clear(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &ClearBackupsResponse{
		Namespace: b.Namespace(),
		Deleted:   n,
	})
}

// HandleListNamespaces handles GET /v1/diagrams.
func (h *Handler) HandleListNamespaces(w http.ResponseWriter, r *http.Request) {
	items := h.buffers.Namespaces()
	if items == nil {
		items = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, &ListNamespacesResponse{Items: items, Total: len(items)})
}

// readSnapshot decodes the request body. A JSON body is a SaveRequest;
// any other media type is taken verbatim as the diagram content.
func (h *Handler) readSnapshot(w http.ResponseWriter, r *http.Request) (domain.Snapshot, bool) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, domain.ErrSnapshotValidation.Code, "request body too large", nil)
			return domain.Snapshot{}, false
		}
		h.writeError(w, r, http.StatusBadRequest, domain.ErrSnapshotValidation.Code, "failed to read request body", nil)
		return domain.Snapshot{}, false
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		snap, err := domain.NewSnapshot(string(raw), nil)
		if err != nil {
			h.handleServiceError(w, r, err)
			return domain.Snapshot{}, false
		}
		return snap, true
	}

	var req SaveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrSnapshotValidation.Code, "invalid JSON body", err.Error())
		return domain.Snapshot{}, false
	}

	var snap domain.Snapshot
	if req.CapturedAt != nil {
		snap, err = domain.NewSnapshotAt(req.Content, req.Metadata, *req.CapturedAt)
	} else {
		snap, err = domain.NewSnapshot(req.Content, req.Metadata)
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return domain.Snapshot{}, false
	}
	return snap, true
}
