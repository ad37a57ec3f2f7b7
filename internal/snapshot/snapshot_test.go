package snapshot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

const manifest = `
apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: monitoring
  labels:
    team: obs
aggregationRule:
  clusterRoleSelectors:
  - matchLabels:
      rbac.example.com/aggregate-to-monitoring: "true"
---
apiVersion: rbac.authorization.k8s.io/v1
kind: Role
metadata:
  name: editor
  namespace: ns1
rules:
- apiGroups: [""]
  resources: ["configmaps"]
  verbs: ["get", "update"]
---
apiVersion: rbac.authorization.k8s.io/v1
kind: RoleBinding
metadata:
  name: edit
  namespace: ns1
roleRef:
  apiGroup: rbac.authorization.k8s.io
  kind: Role
  name: editor
subjects:
- kind: ServiceAccount
  name: builder
  namespace: ns1
- kind: User
  name: alice
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
  namespace: ns1
---
apiVersion: v1
kind: List
items:
- apiVersion: rbac.authorization.k8s.io/v1
  kind: ClusterRoleBinding
  metadata:
    name: monitors
  roleRef:
    kind: ClusterRole
    name: monitoring
  subjects:
  - kind: Group
    name: sre
- apiVersion: v1
  kind: Pod
  metadata:
    name: build-1
    namespace: ns1
  spec:
    serviceAccountName: builder
    containers:
    - name: main
      image: busybox
  status:
    phase: Running
    containerStatuses:
    - name: main
      ready: true
      restartCount: 2
`

func TestDecodeManifest(t *testing.T) {
	res, err := Decode(strings.NewReader(manifest))
	require.NoError(t, err)
	snap := res.Snapshot

	require.Len(t, snap.ClusterRoles, 1)
	assert.Equal(t, "monitoring", snap.ClusterRoles[0].Name)
	require.NotNil(t, snap.ClusterRoles[0].Aggregation)
	assert.Len(t, snap.ClusterRoles[0].Aggregation.ClusterRoleSelectors, 1)

	require.Len(t, snap.Roles, 1)
	assert.Equal(t, []string{"get", "update"}, snap.Roles[0].Rules[0].Verbs)

	require.Len(t, snap.RoleBindings, 1)
	rb := snap.RoleBindings[0]
	assert.Equal(t, models.RoleRef{Kind: "Role", Name: "editor"}, rb.RoleRef)
	assert.Len(t, rb.Subjects, 2)

	require.Len(t, snap.ClusterRoleBindings, 1)
	assert.Equal(t, models.KindClusterRoleBinding, snap.ClusterRoleBindings[0].Kind)

	require.Len(t, snap.Workloads, 1)
	w := snap.Workloads[0]
	assert.Equal(t, "builder", w.ServiceAccountName)
	assert.Equal(t, "Running", w.Phase)
	require.Len(t, w.Containers, 1)
	assert.True(t, w.Containers[0].Ready)
	assert.Equal(t, int32(2), w.Containers[0].RestartCount)

	assert.Equal(t, []string{"ConfigMap ns1/settings"}, res.Skipped)
}

func TestDecodeNativeSnapshot(t *testing.T) {
	doc := `{"clusterRoles":[{"kind":"ClusterRole","name":"admin","rules":[]}],"roles":[],"clusterRoleBindings":[],"roleBindings":[]}`
	res, err := DecodeBytes([]byte(doc))
	require.NoError(t, err)
	require.Len(t, res.Snapshot.ClusterRoles, 1)
	assert.Equal(t, "admin", res.Snapshot.ClusterRoles[0].Name)
	assert.Nil(t, res.Snapshot.Workloads)
	assert.Empty(t, res.Skipped)
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(strings.NewReader("\n---\n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader("kind: Role\nmetadata: [unterminated\n"))
	assert.Error(t, err)
}

func TestDecodeWithoutPodsLeavesWorkloadsNil(t *testing.T) {
	res, err := Decode(strings.NewReader("apiVersion: rbac.authorization.k8s.io/v1\nkind: ClusterRole\nmetadata:\n  name: a\n"))
	require.NoError(t, err)
	assert.Nil(t, res.Snapshot.Workloads)
	assert.NotNil(t, res.Snapshot.Roles)
}

func TestFromObjectsSortsAndConverts(t *testing.T) {
	objs := &Objects{
		ClusterRoles: []rbacv1.ClusterRole{
			{ObjectMeta: metav1.ObjectMeta{Name: "zeta"}},
			{ObjectMeta: metav1.ObjectMeta{Name: "alpha"}},
		},
		RoleBindings: []rbacv1.RoleBinding{
			{ObjectMeta: metav1.ObjectMeta{Name: "b", Namespace: "ns2"}, RoleRef: rbacv1.RoleRef{Kind: "Role", Name: "r"}},
			{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "ns1"}, RoleRef: rbacv1.RoleRef{Kind: "Role", Name: "r"}},
		},
		Pods: []corev1.Pod{
			{ObjectMeta: metav1.ObjectMeta{Name: "legacy", Namespace: "ns1"}, Spec: corev1.PodSpec{DeprecatedServiceAccount: "old"}},
		},
	}
	snap := FromObjects(objs)
	assert.Equal(t, "alpha", snap.ClusterRoles[0].Name)
	assert.Equal(t, models.KindClusterRole, snap.ClusterRoles[0].Kind)
	assert.Equal(t, "ns1", snap.RoleBindings[0].Namespace)
	assert.Equal(t, "old", snap.Workloads[0].ServiceAccountName)

	again := FromObjects(objs)
	assert.Equal(t, snap.Digest(), again.Digest())
}

func TestFromObjectsNil(t *testing.T) {
	snap := FromObjects(nil)
	assert.Empty(t, snap.ClusterRoles)
	assert.Nil(t, snap.Workloads)
}
