package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphexport"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/validate"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/rbacgraph"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

// inlineGraphRequest is the body of POST /rbac/graph. Missing filter or layout
// fields take the defaults.
type inlineGraphRequest struct {
	Snapshot *models.Snapshot       `json:"snapshot"`
	Filter   *rbacgraph.FilterState `json:"filter,omitempty"`
	Layout   *layout.Options        `json:"layout,omitempty"`
}

// BuildGraph handles POST /rbac/graph
func (h *Handler) BuildGraph(w http.ResponseWriter, r *http.Request) {
	var body inlineGraphRequest
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
	req := service.DefaultGraphRequest()
	if body.Filter != nil {
		req.Filter = *body.Filter
	}
	if body.Layout != nil {
		req.Layout = *body.Layout
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	g, err := h.svc.BuildGraph(ctx, body.Snapshot, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// graphRequest reads the snapshot id and graph query of a request, writing the
// error response itself when either is invalid.
func (h *Handler) graphRequest(w http.ResponseWriter, r *http.Request) (string, service.GraphRequest, bool) {
	id := mux.Vars(r)["id"]
	if !validate.SnapshotID(id) {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid snapshot id")
		return "", service.GraphRequest{}, false
	}
	req, err := parseGraphQuery(r.URL.Query())
	if err != nil {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return "", service.GraphRequest{}, false
	}
	return id, req, true
}

// GetGraph handles GET /snapshots/{id}/graph
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.graphRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	g, err := h.svc.GetGraph(ctx, id, req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// ExportGraph handles GET /snapshots/{id}/graph/export?format=
func (h *Handler) ExportGraph(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.graphRequest(w, r)
	if !ok {
		return
	}
	format, err := graphexport.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	data, err := h.svc.ExportGraph(ctx, id, req, format)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// SelectNode handles GET /snapshots/{id}/graph/nodes/{nodeId}
func (h *Handler) SelectNode(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.graphRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	n, err := h.svc.SelectNode(ctx, id, mux.Vars(r)["nodeId"], req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}
