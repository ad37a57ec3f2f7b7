package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Role and binding kinds. Values match the Kubernetes RBAC API so records converted
// from rbac/v1 objects keep their kind strings.
const (
	KindClusterRole        = "ClusterRole"
	KindRole               = "Role"
	KindClusterRoleBinding = "ClusterRoleBinding"
	KindRoleBinding        = "RoleBinding"
)

// Subject kinds.
const (
	SubjectKindUser           = rbacv1.UserKind
	SubjectKindGroup          = rbacv1.GroupKind
	SubjectKindServiceAccount = rbacv1.ServiceAccountKind
)

// DefaultServiceAccountName is assumed by workloads that do not name a service account.
const DefaultServiceAccountName = "default"

// PolicyRule is a single permission statement of a role.
type PolicyRule struct {
	APIGroups       []string `json:"apiGroups,omitempty"`
	Resources       []string `json:"resources,omitempty"`
	Verbs           []string `json:"verbs"`
	ResourceNames   []string `json:"resourceNames,omitempty"`
	NonResourceURLs []string `json:"nonResourceURLs,omitempty"`
}

// AggregationRule pulls the rules of other cluster roles in by label.
type AggregationRule struct {
	ClusterRoleSelectors []metav1.LabelSelector `json:"clusterRoleSelectors"`
}

// AccessRole is a namespace-scoped Role or a cluster-scoped ClusterRole.
// An empty Namespace means cluster scope.
type AccessRole struct {
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Rules       []PolicyRule      `json:"rules"`
	Aggregation *AggregationRule  `json:"aggregationRule,omitempty"`
}

// IsClusterScoped reports whether the role is a ClusterRole.
func (r *AccessRole) IsClusterScoped() bool {
	return r.Kind == KindClusterRole
}

// RoleRef points a binding at a role by kind and name.
type RoleRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Subject references a user, group or service account.
type Subject struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// SubjectKey is the identity of a subject. Users and groups are cluster-wide, so
// their namespace is always empty.
type SubjectKey struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// Key returns the identity key of the subject.
func (s Subject) Key() SubjectKey {
	if s.Kind != SubjectKindServiceAccount {
		return SubjectKey{Kind: s.Kind, Name: s.Name}
	}
	return SubjectKey{Kind: s.Kind, Namespace: s.Namespace, Name: s.Name}
}

// String renders the key as kind:namespace:name.
func (k SubjectKey) String() string {
	return k.Kind + ":" + k.Namespace + ":" + k.Name
}

// AccessBinding is a RoleBinding or ClusterRoleBinding.
type AccessBinding struct {
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Namespace string    `json:"namespace,omitempty"`
	RoleRef   RoleRef   `json:"roleRef"`
	Subjects  []Subject `json:"subjects,omitempty"`
}

// IsClusterScoped reports whether the binding is a ClusterRoleBinding.
func (b *AccessBinding) IsClusterScoped() bool {
	return b.Kind == KindClusterRoleBinding
}

// ContainerSummary is the per-container status shown on a workload node.
type ContainerSummary struct {
	Name         string `json:"name"`
	Image        string `json:"image"`
	Ready        bool   `json:"ready"`
	RestartCount int32  `json:"restartCount"`
}

// WorkloadInstance is a running unit (a pod) and the service account it runs as.
type WorkloadInstance struct {
	Name               string             `json:"name"`
	Namespace          string             `json:"namespace"`
	ServiceAccountName string             `json:"serviceAccountName,omitempty"`
	Phase              string             `json:"phase,omitempty"`
	Labels             map[string]string  `json:"labels,omitempty"`
	Containers         []ContainerSummary `json:"containers,omitempty"`
}

// Snapshot is the full set of RBAC resource lists the graph is built from.
// Workloads is optional; nil means workloads were not collected.
type Snapshot struct {
	ClusterRoles        []AccessRole       `json:"clusterRoles"`
	Roles               []AccessRole       `json:"roles"`
	ClusterRoleBindings []AccessBinding    `json:"clusterRoleBindings"`
	RoleBindings        []AccessBinding    `json:"roleBindings"`
	Workloads           []WorkloadInstance `json:"workloads,omitempty"`
}

// Digest returns a content hash identifying the snapshot.
func (s *Snapshot) Digest() string {
	if s == nil {
		return ""
	}
	data, _ := json.Marshal(s)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// Counts returns the number of records per list, used for logging and API summaries.
func (s *Snapshot) Counts() map[string]int {
	if s == nil {
		return map[string]int{}
	}
	return map[string]int{
		"clusterRoles":        len(s.ClusterRoles),
		"roles":               len(s.Roles),
		"clusterRoleBindings": len(s.ClusterRoleBindings),
		"roleBindings":        len(s.RoleBindings),
		"workloads":           len(s.Workloads),
	}
}

// Diagnostic describes a record that was dropped or repaired while building a graph.
type Diagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
}

// Diagnostic codes.
const (
	DiagMalformedRecord  = "MALFORMED_RECORD"
	DiagDuplicateRecord  = "DUPLICATE_RECORD"
	DiagInvalidSelector  = "INVALID_AGGREGATION_SELECTOR"
	DiagDefaultNamespace = "DEFAULTED_NAMESPACE"
)
