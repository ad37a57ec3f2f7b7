package rbacgraph

import (
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

func clusterRole(name string, lbls map[string]string) models.AccessRole {
	return models.AccessRole{
		Kind:   models.KindClusterRole,
		Name:   name,
		Labels: lbls,
		Rules:  []models.PolicyRule{{APIGroups: []string{""}, Resources: []string{"pods"}, Verbs: []string{"get"}}},
	}
}

func role(ns, name string) models.AccessRole {
	return models.AccessRole{
		Kind:      models.KindRole,
		Name:      name,
		Namespace: ns,
		Rules:     []models.PolicyRule{{APIGroups: []string{""}, Resources: []string{"configmaps"}, Verbs: []string{"list"}}},
	}
}

func roleBinding(ns, name, refKind, refName string, subjects ...models.Subject) models.AccessBinding {
	return models.AccessBinding{
		Kind:      models.KindRoleBinding,
		Name:      name,
		Namespace: ns,
		RoleRef:   models.RoleRef{Kind: refKind, Name: refName},
		Subjects:  subjects,
	}
}

func clusterRoleBinding(name, refName string, subjects ...models.Subject) models.AccessBinding {
	return models.AccessBinding{
		Kind:     models.KindClusterRoleBinding,
		Name:     name,
		RoleRef:  models.RoleRef{Kind: models.KindClusterRole, Name: refName},
		Subjects: subjects,
	}
}

func sa(ns, name string) models.Subject {
	return models.Subject{Kind: models.SubjectKindServiceAccount, Namespace: ns, Name: name}
}

func user(name string) models.Subject {
	return models.Subject{Kind: models.SubjectKindUser, Name: name}
}

func group(name string) models.Subject {
	return models.Subject{Kind: models.SubjectKindGroup, Name: name}
}

func pod(ns, name, serviceAccount string) models.WorkloadInstance {
	return models.WorkloadInstance{
		Name:               name,
		Namespace:          ns,
		ServiceAccountName: serviceAccount,
		Phase:              "Running",
		Containers:         []models.ContainerSummary{{Name: "app", Image: "nginx:1.27", Ready: true}},
	}
}

// mixedSnapshot covers both scopes, all subject kinds and a system role.
func mixedSnapshot() *models.Snapshot {
	return &models.Snapshot{
		ClusterRoles: []models.AccessRole{
			clusterRole("admin", nil),
			clusterRole("viewer", nil),
			clusterRole("system:node", nil),
		},
		Roles: []models.AccessRole{
			role("ns1", "editor"),
			role("ns2", "editor"),
		},
		ClusterRoleBindings: []models.AccessBinding{
			clusterRoleBinding("admins", "admin", user("alice"), group("ops")),
			clusterRoleBinding("viewers", "viewer", user("bob"), sa("ns1", "reader")),
			clusterRoleBinding("nodes", "system:node", group("system:nodes")),
		},
		RoleBindings: []models.AccessBinding{
			roleBinding("ns1", "edit-ns1", models.KindRole, "editor", sa("", "builder"), user("alice")),
			roleBinding("ns2", "edit-ns2", models.KindRole, "editor", sa("ns2", "builder")),
			roleBinding("ns2", "admin-ns2", models.KindClusterRole, "admin", user("carol")),
		},
		Workloads: []models.WorkloadInstance{
			pod("ns1", "build-1", "builder"),
			pod("ns1", "web-1", ""),
		},
	}
}

func nodeIDs(g *Graph) map[string]bool {
	out := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = true
	}
	return out
}

func countKind(g *Graph, kind models.NodeKind) int {
	return len(g.GetNodesByKind(kind))
}
