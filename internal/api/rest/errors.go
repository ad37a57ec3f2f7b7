package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/logger"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

// APIError represents a structured API error response
type APIError struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Error codes for common scenarios
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeBodyTooLarge       = "BODY_TOO_LARGE"
	ErrCodeGraphTooLarge      = "GRAPH_TOO_LARGE"
	ErrCodeClusterUnavailable = "CLUSTER_UNAVAILABLE"
)

// respondStructuredError sends a structured error response with error code and details
func respondStructuredError(w http.ResponseWriter, status int, code, message string, requestID string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := APIError{
		Error:     message,
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	}
	json.NewEncoder(w).Encode(err)
}

// respondErrorWithCode is a convenience wrapper for structured errors
func respondErrorWithCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondStructuredError(w, status, code, message, logger.FromContext(r.Context()), nil)
}

// respondServiceError maps service errors to status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrSnapshotNotFound), errors.Is(err, service.ErrNodeNotFound):
		respondErrorWithCode(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidFilter), errors.Is(err, service.ErrInvalidSnapshot):
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case errors.Is(err, service.ErrGraphTooLarge):
		respondErrorWithCode(w, r, http.StatusUnprocessableEntity, ErrCodeGraphTooLarge, err.Error())
	case errors.Is(err, service.ErrLiveClusterUnavailable):
		respondErrorWithCode(w, r, http.StatusServiceUnavailable, ErrCodeClusterUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondErrorWithCode(w, r, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	case errors.As(err, &maxBytes):
		respondErrorWithCode(w, r, http.StatusRequestEntityTooLarge, ErrCodeBodyTooLarge, "request body too large")
	default:
		logger.WithRequest(r.Context(), h.log).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondErrorWithCode(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
