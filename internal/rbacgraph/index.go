package rbacgraph

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// ResourceKey identifies a role, binding or workload. Namespace is empty for
// cluster-scoped resources.
type ResourceKey struct {
	Kind      string
	Namespace string
	Name      string
}

func (k ResourceKey) String() string {
	if k.Namespace == "" {
		return k.Kind + "/" + k.Name
	}
	return k.Kind + "/" + k.Namespace + "/" + k.Name
}

// Index holds O(1) lookups over a snapshot so the filter and builder never scan lists.
// It is built once per snapshot and never mutated afterwards.
type Index struct {
	ClusterRoles        []*models.AccessRole
	Roles               []*models.AccessRole
	ClusterRoleBindings []*models.AccessBinding
	RoleBindings        []*models.AccessBinding
	Workloads           []*models.WorkloadInstance
	WorkloadsPresent    bool

	roles              map[ResourceKey]*models.AccessRole
	clusterRolesByName map[string]*models.AccessRole
	bindings           map[ResourceKey]*models.AccessBinding
	bindingsBySubject  map[models.SubjectKey][]*models.AccessBinding
	workloads          map[ResourceKey]*models.WorkloadInstance

	Diagnostics []models.Diagnostic
}

// NewIndex indexes the snapshot. A nil snapshot yields an empty index. Records are
// copied, so the snapshot itself is left untouched. Records without a name are
// skipped and reported as diagnostics; later duplicates of an identity are skipped
// as well.
func NewIndex(snap *models.Snapshot) *Index {
	ix := &Index{
		roles:              make(map[ResourceKey]*models.AccessRole),
		clusterRolesByName: make(map[string]*models.AccessRole),
		bindings:           make(map[ResourceKey]*models.AccessBinding),
		bindingsBySubject:  make(map[models.SubjectKey][]*models.AccessBinding),
		workloads:          make(map[ResourceKey]*models.WorkloadInstance),
	}
	if snap == nil {
		return ix
	}

	for i := range snap.ClusterRoles {
		cp := snap.ClusterRoles[i]
		r := &cp
		if r.Kind == "" {
			r.Kind = models.KindClusterRole
		}
		if ix.addRole(r) {
			ix.ClusterRoles = append(ix.ClusterRoles, r)
			ix.clusterRolesByName[r.Name] = r
		}
	}
	for i := range snap.Roles {
		cp := snap.Roles[i]
		r := &cp
		if r.Kind == "" {
			r.Kind = models.KindRole
		}
		if ix.addRole(r) {
			ix.Roles = append(ix.Roles, r)
		}
	}
	for i := range snap.ClusterRoleBindings {
		cp := snap.ClusterRoleBindings[i]
		b := &cp
		if b.Kind == "" {
			b.Kind = models.KindClusterRoleBinding
		}
		if ix.addBinding(b) {
			ix.ClusterRoleBindings = append(ix.ClusterRoleBindings, b)
		}
	}
	for i := range snap.RoleBindings {
		cp := snap.RoleBindings[i]
		b := &cp
		if b.Kind == "" {
			b.Kind = models.KindRoleBinding
		}
		if ix.addBinding(b) {
			ix.RoleBindings = append(ix.RoleBindings, b)
		}
	}

	ix.WorkloadsPresent = snap.Workloads != nil
	for i := range snap.Workloads {
		cp := snap.Workloads[i]
		w := &cp
		if w.Name == "" {
			ix.diag(models.DiagMalformedRecord, "workload has no name", "Pod/"+w.Namespace)
			continue
		}
		if w.Namespace == "" {
			w.Namespace = metav1.NamespaceDefault
			ix.diag(models.DiagDefaultNamespace, "workload has no namespace, assuming default", "Pod/"+w.Name)
		}
		key := ResourceKey{Kind: "Pod", Namespace: w.Namespace, Name: w.Name}
		if _, dup := ix.workloads[key]; dup {
			ix.diag(models.DiagDuplicateRecord, "duplicate workload ignored", key.String())
			continue
		}
		ix.workloads[key] = w
		ix.Workloads = append(ix.Workloads, w)
	}
	return ix
}

func (ix *Index) addRole(r *models.AccessRole) bool {
	if r.Name == "" {
		ix.diag(models.DiagMalformedRecord, "role has no name", r.Kind+"/"+r.Namespace)
		return false
	}
	if r.Kind == models.KindRole && r.Namespace == "" {
		ix.diag(models.DiagMalformedRecord, "namespaced role has no namespace", r.Kind+"/"+r.Name)
		return false
	}
	key := roleKey(r.Kind, r.Namespace, r.Name)
	if _, dup := ix.roles[key]; dup {
		ix.diag(models.DiagDuplicateRecord, "duplicate role ignored", key.String())
		return false
	}
	ix.roles[key] = r
	return true
}

func (ix *Index) addBinding(b *models.AccessBinding) bool {
	if b.Name == "" {
		ix.diag(models.DiagMalformedRecord, "binding has no name", b.Kind+"/"+b.Namespace)
		return false
	}
	if b.RoleRef.Name == "" {
		ix.diag(models.DiagMalformedRecord, "binding has no role reference", b.Kind+"/"+b.Name)
		return false
	}
	key := ResourceKey{Kind: b.Kind, Namespace: b.Namespace, Name: b.Name}
	if b.IsClusterScoped() {
		key.Namespace = ""
	}
	if _, dup := ix.bindings[key]; dup {
		ix.diag(models.DiagDuplicateRecord, "duplicate binding ignored", key.String())
		return false
	}
	ix.bindings[key] = b
	seen := make(map[models.SubjectKey]bool, len(b.Subjects))
	for _, s := range b.Subjects {
		sk, ok := ix.SubjectKeyFor(b, s)
		if !ok || seen[sk] {
			continue
		}
		seen[sk] = true
		ix.bindingsBySubject[sk] = append(ix.bindingsBySubject[sk], b)
	}
	return true
}

func (ix *Index) diag(code, msg, resource string) {
	ix.Diagnostics = append(ix.Diagnostics, models.Diagnostic{Code: code, Message: msg, Resource: resource})
}

func roleKey(kind, namespace, name string) ResourceKey {
	if kind == models.KindClusterRole {
		namespace = ""
	}
	return ResourceKey{Kind: kind, Namespace: namespace, Name: name}
}

// Role returns the role with the given kind, namespace and name.
func (ix *Index) Role(kind, namespace, name string) (*models.AccessRole, bool) {
	r, ok := ix.roles[roleKey(kind, namespace, name)]
	return r, ok
}

// ClusterRoleByName returns a cluster role by name alone, as referenced from bindings.
func (ix *Index) ClusterRoleByName(name string) (*models.AccessRole, bool) {
	r, ok := ix.clusterRolesByName[name]
	return r, ok
}

// ResolveRoleRef returns the role a binding points at. A RoleBinding may reference
// a ClusterRole; a Role reference always resolves in the binding's namespace.
func (ix *Index) ResolveRoleRef(b *models.AccessBinding) (*models.AccessRole, bool) {
	switch b.RoleRef.Kind {
	case models.KindClusterRole:
		return ix.ClusterRoleByName(b.RoleRef.Name)
	case models.KindRole:
		if b.IsClusterScoped() {
			return nil, false
		}
		return ix.Role(models.KindRole, b.Namespace, b.RoleRef.Name)
	}
	return nil, false
}

// Binding returns a binding by kind, namespace and name.
func (ix *Index) Binding(kind, namespace, name string) (*models.AccessBinding, bool) {
	if kind == models.KindClusterRoleBinding {
		namespace = ""
	}
	b, ok := ix.bindings[ResourceKey{Kind: kind, Namespace: namespace, Name: name}]
	return b, ok
}

// BindingsForSubject returns the bindings naming the subject, in snapshot order.
func (ix *Index) BindingsForSubject(key models.SubjectKey) []*models.AccessBinding {
	return ix.bindingsBySubject[key]
}

// Workload returns a workload by namespace and name.
func (ix *Index) Workload(namespace, name string) (*models.WorkloadInstance, bool) {
	w, ok := ix.workloads[ResourceKey{Kind: "Pod", Namespace: namespace, Name: name}]
	return w, ok
}

// SubjectKeyFor computes the identity key of a subject as it appears on a binding.
// Service accounts without a namespace inherit the namespace of a RoleBinding; on a
// ClusterRoleBinding they cannot be resolved and ok is false.
func (ix *Index) SubjectKeyFor(b *models.AccessBinding, s models.Subject) (models.SubjectKey, bool) {
	if s.Name == "" || s.Kind == "" {
		return models.SubjectKey{}, false
	}
	if s.Kind == models.SubjectKindServiceAccount && s.Namespace == "" {
		if b.IsClusterScoped() || b.Namespace == "" {
			return models.SubjectKey{}, false
		}
		s.Namespace = b.Namespace
	}
	return s.Key(), true
}

func (ix *Index) String() string {
	return fmt.Sprintf("index{clusterRoles=%d roles=%d clusterRoleBindings=%d roleBindings=%d workloads=%d}",
		len(ix.ClusterRoles), len(ix.Roles), len(ix.ClusterRoleBindings), len(ix.RoleBindings), len(ix.Workloads))
}
