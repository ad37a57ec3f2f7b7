// Package rest exposes the RBAC graph service over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

// Handler manages HTTP request handlers
type Handler struct {
	svc          service.RBACGraphService
	log          *zap.Logger
	buildTimeout time.Duration
	version      string
}

// NewHandler creates a new HTTP handler. buildTimeout bounds graph and live
// snapshot requests; 0 means the request context only.
func NewHandler(svc service.RBACGraphService, buildTimeout time.Duration, version string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log, buildTimeout: buildTimeout, version: version}
}

// SetupRoutes configures API routes on router (expected to be the /api/v1 subrouter).
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/rbac/graph", h.BuildGraph).Methods("POST")

	router.HandleFunc("/snapshots", h.ListSnapshots).Methods("GET")
	router.HandleFunc("/snapshots", h.CreateSnapshot).Methods("POST")
	router.HandleFunc("/snapshots/{id}", h.GetSnapshot).Methods("GET")
	router.HandleFunc("/snapshots/{id}", h.DeleteSnapshot).Methods("DELETE")
	router.HandleFunc("/snapshots/{id}/graph", h.GetGraph).Methods("GET")
	router.HandleFunc("/snapshots/{id}/graph/export", h.ExportGraph).Methods("GET")
	router.HandleFunc("/snapshots/{id}/graph/nodes/{nodeId:.+}", h.SelectNode).Methods("GET")

	router.HandleFunc("/live/snapshots", h.CaptureLive).Methods("POST")
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": h.version})
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.buildTimeout > 0 {
		return context.WithTimeout(ctx, h.buildTimeout)
	}
	return ctx, func() {}
}
