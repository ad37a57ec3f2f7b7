package rest

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/validate"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

type createSnapshotRequest struct {
	Name     string           `json:"name"`
	Snapshot *models.Snapshot `json:"snapshot"`
}

type createSnapshotResponse struct {
	*models.SnapshotSummary
	Warnings []string `json:"warnings,omitempty"`
}

func isBodyTooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes)
}

// isManifestUpload reports whether the body holds Kubernetes manifests rather
// than a snapshot JSON envelope.
func isManifestUpload(r *http.Request) bool {
	if r.URL.Query().Get("format") == "manifest" {
		return true
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return true
	}
	return false
}

// CreateSnapshot handles POST /snapshots. A JSON body is {name, snapshot};
// a YAML body (or ?format=manifest) is a manifest stream named by ?name=.
func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if isManifestUpload(r) {
		sum, warnings, err := h.svc.ImportManifests(r.Context(), r.URL.Query().Get("name"), r.Body)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, createSnapshotResponse{SnapshotSummary: sum, Warnings: warnings})
		return
	}

	var body createSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if isBodyTooLarge(err) {
			h.respondServiceError(w, r, err)
			return
		}
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if body.Snapshot == nil {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "snapshot is required")
		return
	}
	sum, err := h.svc.CreateSnapshot(r.Context(), body.Name, service.SourceUpload, body.Snapshot)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, createSnapshotResponse{SnapshotSummary: sum})
}

// ListSnapshots handles GET /snapshots?limit=
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// GetSnapshot handles GET /snapshots/{id}
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validate.SnapshotID(id) {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid snapshot id")
		return
	}
	snap, err := h.svc.GetSnapshot(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// DeleteSnapshot handles DELETE /snapshots/{id}
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validate.SnapshotID(id) {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid snapshot id")
		return
	}
	if err := h.svc.DeleteSnapshot(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Snapshot deleted"})
}

// CaptureLive handles POST /live/snapshots
func (h *Handler) CaptureLive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
			return
		}
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	sum, err := h.svc.CaptureLive(ctx, body.Name)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, createSnapshotResponse{SnapshotSummary: sum})
}
