package validate

import (
	"strings"
	"testing"
)

func TestSnapshotID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"3f1c2a4e-8b7d-4c6a-9e2f-1a2b3c4d5e6f", true},
		{"not-a-uuid", false},
		{"../etc/passwd", false},
	}
	for _, tt := range tests {
		if got := SnapshotID(tt.id); got != tt.want {
			t.Errorf("SnapshotID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestSnapshotName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"", false},
		{"prod cluster 2026-10-19", true},
		{"bad\nname", false},
		{strings.Repeat("x", SnapshotNameMaxLen+1), false},
	}
	for _, tt := range tests {
		if got := SnapshotName(tt.name); got != tt.want {
			t.Errorf("SnapshotName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNamespace(t *testing.T) {
	tests := []struct {
		ns   string
		want bool
	}{
		{"", true},
		{"default", true},
		{"kube-system", true},
		{"Bad", true}, // ToLower applied
		{"bad_ns", false},
	}
	for _, tt := range tests {
		if got := Namespace(tt.ns); got != tt.want {
			t.Errorf("Namespace(%q) = %v, want %v", tt.ns, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"", false},
		{"my-pod", true},
		{"bad/name", false},
	}
	for _, tt := range tests {
		if got := Name(tt.name); got != tt.want {
			t.Errorf("Name(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFilterValue(t *testing.T) {
	tests := []struct {
		v    string
		want bool
	}{
		{"", true},
		{"system:serviceaccount:kube-system/default", true},
		{"tab\there", false},
		{strings.Repeat("a", FilterValueMaxLen+1), false},
	}
	for _, tt := range tests {
		if got := FilterValue(tt.v); got != tt.want {
			t.Errorf("FilterValue(%q) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestManifestWarnings(t *testing.T) {
	manifest := `apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: everything
rules:
- apiGroups: ["*"]
  resources: ["*"]
  verbs: ["*"]
---
apiVersion: rbac.authorization.k8s.io/v1
kind: Role
metadata:
  name: binder
  namespace: ns1
rules:
- apiGroups: ["rbac.authorization.k8s.io"]
  resources: ["rolebindings"]
  verbs: ["get", "bind"]
---
apiVersion: rbac.authorization.k8s.io/v1
kind: Role
metadata:
  name: reader
  namespace: ns1
rules:
- apiGroups: [""]
  resources: ["pods"]
  verbs: ["get"]
`
	w := ManifestWarnings(manifest)
	if len(w) != 3 {
		t.Fatalf("ManifestWarnings returned %d warnings, want 3: %v", len(w), w)
	}
	if !strings.Contains(w[2], "bind") {
		t.Errorf("expected bind warning, got %q", w[2])
	}
	if got := ManifestWarnings("not: [valid"); len(got) != 0 {
		t.Errorf("invalid YAML should yield no warnings, got %v", got)
	}
}
