package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphcache"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphexport"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/rbacgraph"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/repository"
)

type staticSource struct {
	snap *models.Snapshot
	err  error
}

func (s staticSource) Load(context.Context) (*models.Snapshot, error) { return s.snap, s.err }

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) BroadcastSnapshotEvent(event, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event+":"+id)
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		ClusterRoles: []models.AccessRole{{Kind: models.KindClusterRole, Name: "viewer", Rules: []models.PolicyRule{{Verbs: []string{"get"}}}}},
		Roles:        []models.AccessRole{{Kind: models.KindRole, Name: "editor", Namespace: "ns1"}},
		ClusterRoleBindings: []models.AccessBinding{{
			Kind: models.KindClusterRoleBinding, Name: "viewers",
			RoleRef:  models.RoleRef{Kind: models.KindClusterRole, Name: "viewer"},
			Subjects: []models.Subject{{Kind: models.SubjectKindUser, Name: "bob"}},
		}},
		RoleBindings: []models.AccessBinding{{
			Kind: models.KindRoleBinding, Name: "edit", Namespace: "ns1",
			RoleRef:  models.RoleRef{Kind: models.KindRole, Name: "editor"},
			Subjects: []models.Subject{{Kind: models.SubjectKindServiceAccount, Name: "builder", Namespace: "ns1"}},
		}},
		Workloads: []models.WorkloadInstance{{Name: "build-1", Namespace: "ns1", ServiceAccountName: "builder"}},
	}
}

func newTestService(t *testing.T, live SnapshotSource, opts Options) (RBACGraphService, *recordingBroadcaster) {
	t.Helper()
	repo, err := repository.New(repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc := NewRBACGraphService(repo, live, graphcache.New(16, 0), opts, nil)
	b := &recordingBroadcaster{}
	SetBroadcaster(svc, b)
	return svc, b
}

func TestBuildGraphPositionsEveryNode(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	snap := testSnapshot()

	g, err := svc.BuildGraph(context.Background(), snap, DefaultGraphRequest())
	require.NoError(t, err)
	assert.Equal(t, snap.Digest(), g.Metadata.SnapshotDigest)
	assert.Equal(t, len(g.Nodes), g.Metadata.NodeCount)
	// 2 roles, 2 bindings, 2 subjects, 1 workload
	assert.Len(t, g.Nodes, 7)
	for _, n := range g.Nodes {
		assert.NotNil(t, n.Position, n.ID)
	}
	assert.Greater(t, g.Metadata.Width, 0.0)
	assert.Greater(t, g.Metadata.Height, 0.0)
}

func TestBuildGraphIsMemoized(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()

	first, err := svc.BuildGraph(ctx, testSnapshot(), DefaultGraphRequest())
	require.NoError(t, err)
	second, err := svc.BuildGraph(ctx, testSnapshot(), DefaultGraphRequest())
	require.NoError(t, err)
	assert.Same(t, first, second)

	req := DefaultGraphRequest()
	req.Filter.ShowBindings = false
	third, err := svc.BuildGraph(ctx, testSnapshot(), req)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Len(t, third.Nodes, 5)
}

func TestBuildGraphConcurrent(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	snap := testSnapshot()

	var wg sync.WaitGroup
	results := make([]*models.RBACGraph, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := svc.BuildGraph(context.Background(), snap, DefaultGraphRequest())
			assert.NoError(t, err)
			results[i] = g
		}(i)
	}
	wg.Wait()
	for _, g := range results {
		require.NotNil(t, g)
		assert.Equal(t, results[0].Metadata.LayoutSeed, g.Metadata.LayoutSeed)
	}
}

func TestBuildGraphInvalidFilter(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})

	for name, mutate := range map[string]func(*GraphRequest){
		"filter type":   func(r *GraphRequest) { r.Filter.FilterType = "owner" },
		"namespace":     func(r *GraphRequest) { r.Filter.NamespaceScope = "Not_A_Namespace" },
		"identity kind": func(r *GraphRequest) { r.Filter.IdentityKind = "Robot" },
		"control chars": func(r *GraphRequest) { r.Filter.SearchTerm = "a\x00b" },
	} {
		t.Run(name, func(t *testing.T) {
			req := DefaultGraphRequest()
			mutate(&req)
			_, err := svc.BuildGraph(context.Background(), testSnapshot(), req)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestBuildGraphTooLarge(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{MaxNodes: 3})
	_, err := svc.BuildGraph(context.Background(), testSnapshot(), DefaultGraphRequest())
	assert.ErrorIs(t, err, ErrGraphTooLarge)
}

func TestSnapshotLifecycle(t *testing.T) {
	svc, b := newTestService(t, nil, Options{})
	ctx := context.Background()

	sum, err := svc.CreateSnapshot(ctx, "prod", SourceUpload, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "prod", sum.Name)
	assert.Equal(t, 1, sum.Counts["roleBindings"])

	list, err := svc.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sum.ID, list[0].ID)

	snap, err := svc.GetSnapshot(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, testSnapshot().Digest(), snap.Digest())

	g, err := svc.GetGraph(ctx, sum.ID, DefaultGraphRequest())
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 7)

	require.NoError(t, svc.DeleteSnapshot(ctx, sum.ID))
	_, err = svc.GetGraph(ctx, sum.ID, DefaultGraphRequest())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, svc.DeleteSnapshot(ctx, sum.ID), ErrSnapshotNotFound)

	assert.Equal(t, []string{EventSnapshotCreated + ":" + sum.ID, EventSnapshotDeleted + ":" + sum.ID}, b.events)
}

func TestCreateSnapshotDefaultsName(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	sum, err := svc.CreateSnapshot(context.Background(), "", SourceUpload, testSnapshot())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sum.Name, "upload-"))

	_, err = svc.CreateSnapshot(context.Background(), "x", SourceUpload, nil)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestSelectNodeReturnsPayload(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	sum, err := svc.CreateSnapshot(ctx, "prod", SourceUpload, testSnapshot())
	require.NoError(t, err)

	id := rbacgraph.BindingNodeID(models.KindRoleBinding, "ns1", "edit")
	n, err := svc.SelectNode(ctx, sum.ID, id, DefaultGraphRequest())
	require.NoError(t, err)
	payload, ok := n.Payload.(models.BindingPayload)
	require.True(t, ok)
	assert.Equal(t, testSnapshot().RoleBindings[0], payload.Binding)

	_, err = svc.SelectNode(ctx, sum.ID, "nope", DefaultGraphRequest())
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestExportGraph(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	sum, err := svc.CreateSnapshot(ctx, "prod", SourceUpload, testSnapshot())
	require.NoError(t, err)

	data, err := svc.ExportGraph(ctx, sum.ID, DefaultGraphRequest(), graphexport.FormatMermaid)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flowchart")
}

func TestImportManifests(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	manifest := `apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: everything
rules:
- apiGroups: ["*"]
  resources: ["*"]
  verbs: ["*"]
---
apiVersion: v1
kind: Secret
metadata:
  name: token
  namespace: ns1
`
	sum, warnings, err := svc.ImportManifests(context.Background(), "imported", strings.NewReader(manifest))
	require.NoError(t, err)
	assert.Equal(t, SourceManifest, sum.Source)
	assert.Equal(t, 1, sum.Counts["clusterRoles"])
	assert.Contains(t, warnings, "skipped Secret ns1/token")
	assert.Greater(t, len(warnings), 1)

	_, _, err = svc.ImportManifests(context.Background(), "empty", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestCaptureLive(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	_, err := svc.CaptureLive(context.Background(), "")
	assert.ErrorIs(t, err, ErrLiveClusterUnavailable)

	svc, _ = newTestService(t, staticSource{err: errors.New("connection refused")}, Options{})
	_, err = svc.CaptureLive(context.Background(), "")
	assert.ErrorIs(t, err, ErrLiveClusterUnavailable)

	svc, _ = newTestService(t, staticSource{snap: testSnapshot()}, Options{})
	sum, err := svc.CaptureLive(context.Background(), "cluster-a")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, sum.Source)
}

func TestServiceWithoutRepository(t *testing.T) {
	svc := NewRBACGraphService(nil, nil, nil, Options{}, nil)
	ctx := context.Background()

	_, err := svc.BuildGraph(ctx, testSnapshot(), DefaultGraphRequest())
	require.NoError(t, err)

	_, err = svc.GetGraph(ctx, "abc", DefaultGraphRequest())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	list, err := svc.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
