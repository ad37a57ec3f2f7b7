package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultStandardMaxBodyBytes is the max request body for filter and layout requests (512KB).
	DefaultStandardMaxBodyBytes = 512 * 1024
	// DefaultSnapshotMaxBodyBytes is the max request body for snapshot uploads (8MB).
	DefaultSnapshotMaxBodyBytes = 8 * 1024 * 1024
)

// isSnapshotUpload reports whether the request carries a snapshot or manifests.
func isSnapshotUpload(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return false
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	return strings.HasSuffix(path, "/snapshots") || strings.HasSuffix(path, "/rbac/graph")
}

// MaxBodySize returns middleware that limits request body size: snapshotMax for
// snapshot uploads, standardMax otherwise.
func MaxBodySize(standardMax, snapshotMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			max := standardMax
			if isSnapshotUpload(r) {
				max = snapshotMax
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
