package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/snapshot"
)

const roleManifest = `apiVersion: rbac.authorization.k8s.io/v1
kind: Role
metadata:
  name: viewer
  namespace: ns1
rules:
- apiGroups: [""]
  resources: ["pods"]
  verbs: ["get", "list"]
`

const bindingManifest = `apiVersion: rbac.authorization.k8s.io/v1
kind: RoleBinding
metadata:
  name: view
  namespace: ns1
roleRef:
  apiGroup: rbac.authorization.k8s.io
  kind: Role
  name: viewer
subjects:
- kind: User
  name: alice
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
  namespace: ns1
`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	root := NewRootCommandWithIO(strings.NewReader(stdin), out, errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRenderJSONFromStdin(t *testing.T) {
	out, errOut, err := execute(t, roleManifest+"---\n"+bindingManifest, "render")
	require.NoError(t, err)
	assert.Contains(t, errOut, "skipped 1 non-RBAC document(s)")

	var g models.RBACGraph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Len(t, g.Nodes, 3)
	assert.Equal(t, 3, g.Metadata.NodeCount)
	_, ok := g.Node("subject:User::alice")
	assert.True(t, ok)
}

func TestRenderFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-role.yaml"), []byte(roleManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-binding.yml"), []byte(bindingManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# not a manifest"), 0o644))
	target := filepath.Join(dir, "graph.mmd")

	_, errOut, err := execute(t, "", "render", dir, "--format", "mermaid", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, errOut, "wrote 3 nodes")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "role_Role_ns1_viewer")
	assert.Contains(t, string(data), "subject_User_alice")
}

func TestRenderHidesUsers(t *testing.T) {
	out, _, err := execute(t, roleManifest+"---\n"+bindingManifest, "render", "--show-users=false")
	require.NoError(t, err)

	var g models.RBACGraph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	_, ok := g.Node("subject:User::alice")
	assert.False(t, ok)
}

func TestRenderDrawioURL(t *testing.T) {
	out, _, err := execute(t, roleManifest, "render", "--drawio-url")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "https://app.diagrams.net/"))
}

func TestRenderRejectsBadFlags(t *testing.T) {
	_, _, err := execute(t, roleManifest, "render", "--format", "png")
	assert.Error(t, err)

	_, _, err = execute(t, roleManifest, "render", "--filter-type", "pod")
	assert.Error(t, err)

	_, _, err = execute(t, "", "render")
	assert.ErrorIs(t, err, snapshot.ErrEmptyInput)

	_, _, err = execute(t, "", "render", "--live", "rbac.yaml")
	assert.Error(t, err)
}

func TestRenderMaxNodes(t *testing.T) {
	_, _, err := execute(t, roleManifest+"---\n"+bindingManifest, "render", "--max-nodes", "2")
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	out, _, err := execute(t, roleManifest+"---\n"+bindingManifest, "snapshot", "--format", "yaml")
	require.NoError(t, err)

	res, err := snapshot.DecodeBytes([]byte(out))
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Roles, 1)
	require.Len(t, res.Snapshot.RoleBindings, 1)
	assert.Equal(t, "viewer", res.Snapshot.Roles[0].Name)
	assert.Empty(t, res.Skipped)
}

func TestSnapshotLive(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	var gotWorkloads bool
	a := &app{
		stdout: out,
		stderr: errOut,
		log:    zap.NewNop(),
		source: func(_ context.Context, includeWorkloads bool) (*models.Snapshot, error) {
			gotWorkloads = includeWorkloads
			return &models.Snapshot{
				ClusterRoles: []models.AccessRole{{Kind: models.KindClusterRole, Name: "admin"}},
			}, nil
		},
	}

	err := a.runSnapshot(context.Background(), &snapshotOptions{live: true, workloads: true, format: "json"}, nil)
	require.NoError(t, err)
	assert.True(t, gotWorkloads)

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	require.Len(t, snap.ClusterRoles, 1)
	assert.Equal(t, "admin", snap.ClusterRoles[0].Name)
}

func TestSnapshotLiveError(t *testing.T) {
	boom := errors.New("forbidden")
	a := &app{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		log:    zap.NewNop(),
		source: func(context.Context, bool) (*models.Snapshot, error) { return nil, boom },
	}
	err := a.runSnapshot(context.Background(), &snapshotOptions{live: true, format: "json"}, nil)
	assert.ErrorIs(t, err, boom)

	err = a.runSnapshot(context.Background(), &snapshotOptions{format: "toml"}, nil)
	assert.Error(t, err)
}
