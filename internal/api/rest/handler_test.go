package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphcache"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/rbacgraph"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/repository"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Roles: []models.AccessRole{{Kind: models.KindRole, Name: "editor", Namespace: "ns1"}},
		RoleBindings: []models.AccessBinding{{
			Kind: models.KindRoleBinding, Name: "edit", Namespace: "ns1",
			RoleRef:  models.RoleRef{Kind: models.KindRole, Name: "editor"},
			Subjects: []models.Subject{{Kind: models.SubjectKindUser, Name: "alice"}},
		}},
	}
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	repo, err := repository.New(repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := service.NewRBACGraphService(repo, nil, graphcache.New(8, 0), service.Options{}, nil)
	h := NewHandler(svc, 0, "test", nil)
	router := mux.NewRouter()
	router.HandleFunc("/health", h.Health).Methods("GET")
	SetupRoutes(router.PathPrefix("/api/v1").Subrouter(), h)
	return router
}

func do(t *testing.T, router http.Handler, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func createSnapshot(t *testing.T, router http.Handler) string {
	t.Helper()
	body, err := json.Marshal(createSnapshotRequest{Name: "prod", Snapshot: testSnapshot()})
	require.NoError(t, err)
	rec := do(t, router, http.MethodPost, "/api/v1/snapshots", body, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sum models.SnapshotSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.NotEmpty(t, sum.ID)
	return sum.ID
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestBuildGraphInline(t *testing.T) {
	router := newTestRouter(t)
	body, err := json.Marshal(inlineGraphRequest{Snapshot: testSnapshot()})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/api/v1/rbac/graph", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var g models.RBACGraph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 2)
	for _, n := range g.Nodes {
		assert.NotNil(t, n.Position)
	}
}

func TestBuildGraphInlineHiddenBindings(t *testing.T) {
	router := newTestRouter(t)
	filter := rbacgraph.DefaultFilterState()
	filter.ShowBindings = false
	opts := layout.DefaultOptions()
	opts.Direction = layout.LeftToRight
	body, err := json.Marshal(inlineGraphRequest{Snapshot: testSnapshot(), Filter: &filter, Layout: &opts})
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/api/v1/rbac/graph", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var g models.RBACGraph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 2)
}

func TestBuildGraphInlineErrors(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/rbac/graph", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidRequest, decodeError(t, rec).Code)

	rec = do(t, router, http.MethodPost, "/api/v1/rbac/graph", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/rbac/graph",
		[]byte(`{"snapshot":{},"filter":{"filterType":"owner"}}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, decodeError(t, rec).Code)
}

func TestSnapshotGraphFlow(t *testing.T) {
	router := newTestRouter(t)
	id := createSnapshot(t, router)

	rec := do(t, router, http.MethodGet, "/api/v1/snapshots", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.SnapshotSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph?showBindings=false&direction=LR", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var g models.RBACGraph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Len(t, g.Nodes, 2)

	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph/export?format=dot", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vnd.graphviz", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "digraph")

	nodeID := rbacgraph.RoleNodeID(models.KindRole, "ns1", "editor")
	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph/nodes/"+url.PathEscape(nodeID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var n models.GraphNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	payload, ok := n.Payload.(models.RolePayload)
	require.True(t, ok)
	assert.Equal(t, "editor", payload.Role.Name)

	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph/nodes/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/v1/snapshots/"+id, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)
}

func TestGraphQueryErrors(t *testing.T) {
	router := newTestRouter(t)
	id := createSnapshot(t, router)

	rec := do(t, router, http.MethodGet, "/api/v1/snapshots/not-a-uuid/graph", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph?showUsers=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, decodeError(t, rec).Code)

	rec = do(t, router, http.MethodGet, "/api/v1/snapshots/"+id+"/graph/export?format=png", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSnapshotFromManifests(t *testing.T) {
	router := newTestRouter(t)
	manifest := `apiVersion: rbac.authorization.k8s.io/v1
kind: Role
metadata:
  name: impersonator
  namespace: ns1
rules:
- apiGroups: [""]
  resources: ["users"]
  verbs: ["impersonate"]
`
	rec := do(t, router, http.MethodPost, "/api/v1/snapshots?name=imported", []byte(manifest), "application/yaml")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		models.SnapshotSummary
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "imported", resp.Name)
	assert.Equal(t, service.SourceManifest, resp.Source)
	assert.NotEmpty(t, resp.Warnings)
}

func TestCreateSnapshotErrors(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/snapshots", []byte(`{"name":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/snapshots?format=manifest", []byte(""), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureLiveUnavailable(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/api/v1/live/snapshots", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeClusterUnavailable, decodeError(t, rec).Code)
}

func TestParseGraphQuery(t *testing.T) {
	q, err := url.ParseQuery("filterType=identity&filterValue=ns1/builder&showGroups=false&direction=LR&orphanColumns=3&expanded=a,%20b,")
	require.NoError(t, err)

	req, err := parseGraphQuery(q)
	require.NoError(t, err)
	assert.Equal(t, rbacgraph.FilterIdentity, req.Filter.FilterType)
	assert.Equal(t, "ns1/builder", req.Filter.FilterValue)
	assert.False(t, req.Filter.ShowGroups)
	assert.True(t, req.Filter.ShowUsers)
	assert.Equal(t, layout.LeftToRight, req.Layout.Direction)
	assert.Equal(t, 3, req.Layout.OrphanColumns)
	assert.Equal(t, []string{"a", "b"}, req.Layout.Expanded)

	for _, bad := range []string{"filterType=owner", "nodeSeparation=-1", "orphanColumns=x", "showWorkloads=2"} {
		q, _ := url.ParseQuery(bad)
		_, err := parseGraphQuery(q)
		assert.Error(t, err, bad)
	}
}

func TestRespondServiceErrorUnknown(t *testing.T) {
	h := NewHandler(nil, 0, "", nil)
	rec := httptest.NewRecorder()
	h.respondServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), assertError("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "boom"))
}

type assertError string

func (e assertError) Error() string { return string(e) }
