// Package snapshot turns Kubernetes RBAC and Pod objects, or manifests containing
// them, into the snapshot the graph is built from.
package snapshot

import (
	"sort"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// Objects groups typed API objects by kind. Pods is nil when workloads were not
// collected, which keeps the snapshot's workload list absent rather than empty.
type Objects struct {
	ClusterRoles        []rbacv1.ClusterRole
	Roles               []rbacv1.Role
	ClusterRoleBindings []rbacv1.ClusterRoleBinding
	RoleBindings        []rbacv1.RoleBinding
	Pods                []corev1.Pod
}

// FromObjects converts typed objects into a snapshot. Records are sorted by
// namespace and name so equal object sets produce equal digests.
func FromObjects(objs *Objects) *models.Snapshot {
	snap := &models.Snapshot{
		ClusterRoles:        []models.AccessRole{},
		Roles:               []models.AccessRole{},
		ClusterRoleBindings: []models.AccessBinding{},
		RoleBindings:        []models.AccessBinding{},
	}
	if objs == nil {
		return snap
	}
	for i := range objs.ClusterRoles {
		snap.ClusterRoles = append(snap.ClusterRoles, ClusterRole(&objs.ClusterRoles[i]))
	}
	for i := range objs.Roles {
		snap.Roles = append(snap.Roles, Role(&objs.Roles[i]))
	}
	for i := range objs.ClusterRoleBindings {
		snap.ClusterRoleBindings = append(snap.ClusterRoleBindings, ClusterRoleBinding(&objs.ClusterRoleBindings[i]))
	}
	for i := range objs.RoleBindings {
		snap.RoleBindings = append(snap.RoleBindings, RoleBinding(&objs.RoleBindings[i]))
	}
	if objs.Pods != nil {
		snap.Workloads = make([]models.WorkloadInstance, 0, len(objs.Pods))
		for i := range objs.Pods {
			snap.Workloads = append(snap.Workloads, Workload(&objs.Pods[i]))
		}
	}
	Sort(snap)
	return snap
}

// Sort orders every list of the snapshot by namespace, then name.
func Sort(snap *models.Snapshot) {
	sortRoles := func(list []models.AccessRole) {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Namespace != list[j].Namespace {
				return list[i].Namespace < list[j].Namespace
			}
			return list[i].Name < list[j].Name
		})
	}
	sortBindings := func(list []models.AccessBinding) {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Namespace != list[j].Namespace {
				return list[i].Namespace < list[j].Namespace
			}
			return list[i].Name < list[j].Name
		})
	}
	sortRoles(snap.ClusterRoles)
	sortRoles(snap.Roles)
	sortBindings(snap.ClusterRoleBindings)
	sortBindings(snap.RoleBindings)
	sort.SliceStable(snap.Workloads, func(i, j int) bool {
		a, b := snap.Workloads[i], snap.Workloads[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
}

func rules(in []rbacv1.PolicyRule) []models.PolicyRule {
	out := make([]models.PolicyRule, 0, len(in))
	for _, r := range in {
		out = append(out, models.PolicyRule{
			APIGroups:       r.APIGroups,
			Resources:       r.Resources,
			Verbs:           r.Verbs,
			ResourceNames:   r.ResourceNames,
			NonResourceURLs: r.NonResourceURLs,
		})
	}
	return out
}

func subjects(in []rbacv1.Subject) []models.Subject {
	out := make([]models.Subject, 0, len(in))
	for _, s := range in {
		out = append(out, models.Subject{Kind: s.Kind, Name: s.Name, Namespace: s.Namespace})
	}
	return out
}

// ClusterRole converts an rbac/v1 ClusterRole.
func ClusterRole(cr *rbacv1.ClusterRole) models.AccessRole {
	r := models.AccessRole{
		Kind:   models.KindClusterRole,
		Name:   cr.Name,
		Labels: cr.Labels,
		Rules:  rules(cr.Rules),
	}
	if cr.AggregationRule != nil {
		r.Aggregation = &models.AggregationRule{ClusterRoleSelectors: cr.AggregationRule.ClusterRoleSelectors}
	}
	return r
}

// Role converts an rbac/v1 Role.
func Role(role *rbacv1.Role) models.AccessRole {
	return models.AccessRole{
		Kind:      models.KindRole,
		Name:      role.Name,
		Namespace: role.Namespace,
		Labels:    role.Labels,
		Rules:     rules(role.Rules),
	}
}

// ClusterRoleBinding converts an rbac/v1 ClusterRoleBinding.
func ClusterRoleBinding(b *rbacv1.ClusterRoleBinding) models.AccessBinding {
	return models.AccessBinding{
		Kind:     models.KindClusterRoleBinding,
		Name:     b.Name,
		RoleRef:  models.RoleRef{Kind: b.RoleRef.Kind, Name: b.RoleRef.Name},
		Subjects: subjects(b.Subjects),
	}
}

// RoleBinding converts an rbac/v1 RoleBinding.
func RoleBinding(b *rbacv1.RoleBinding) models.AccessBinding {
	return models.AccessBinding{
		Kind:      models.KindRoleBinding,
		Name:      b.Name,
		Namespace: b.Namespace,
		RoleRef:   models.RoleRef{Kind: b.RoleRef.Kind, Name: b.RoleRef.Name},
		Subjects:  subjects(b.Subjects),
	}
}

// Workload converts a Pod, joining container specs with their statuses by name.
func Workload(p *corev1.Pod) models.WorkloadInstance {
	sa := p.Spec.ServiceAccountName
	if sa == "" {
		sa = p.Spec.DeprecatedServiceAccount
	}
	statuses := make(map[string]corev1.ContainerStatus, len(p.Status.ContainerStatuses))
	for _, cs := range p.Status.ContainerStatuses {
		statuses[cs.Name] = cs
	}
	containers := make([]models.ContainerSummary, 0, len(p.Spec.Containers))
	for _, c := range p.Spec.Containers {
		st := statuses[c.Name]
		containers = append(containers, models.ContainerSummary{
			Name:         c.Name,
			Image:        c.Image,
			Ready:        st.Ready,
			RestartCount: st.RestartCount,
		})
	}
	return models.WorkloadInstance{
		Name:               p.Name,
		Namespace:          p.Namespace,
		ServiceAccountName: sa,
		Phase:              string(p.Status.Phase),
		Labels:             p.Labels,
		Containers:         containers,
	}
}
