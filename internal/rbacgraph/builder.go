package rbacgraph

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// Node ids are derived from resource identity only, never from build order, so the
// same filtered input always yields the same ids.

// RoleNodeID returns the node id of a Role or ClusterRole.
func RoleNodeID(kind, namespace, name string) string {
	if kind == models.KindClusterRole {
		namespace = ""
	}
	return "role:" + kind + ":" + namespace + ":" + name
}

// BindingNodeID returns the node id of a RoleBinding or ClusterRoleBinding.
func BindingNodeID(kind, namespace, name string) string {
	if kind == models.KindClusterRoleBinding {
		namespace = ""
	}
	return "binding:" + kind + ":" + namespace + ":" + name
}

// SubjectNodeID returns the node id of a subject identity.
func SubjectNodeID(key models.SubjectKey) string {
	return "subject:" + key.String()
}

// WorkloadNodeID returns the node id of a workload instance.
func WorkloadNodeID(namespace, name string) string {
	return "workload:" + namespace + ":" + name
}

// EdgeID returns the id of an edge. via names the binding an edge was derived from
// when the binding itself is not a node; it keeps parallel edges distinct.
func EdgeID(kind models.EdgeKind, source, target, via string) string {
	id := "edge:" + string(kind) + ":" + source + "->" + target
	if via != "" {
		id += "|" + via
	}
	return id
}

// BuildResult is the output of one build pass.
type BuildResult struct {
	Graph       *Graph
	Diagnostics []models.Diagnostic
}

type builder struct {
	fs    *FilteredSet
	g     *Graph
	diags []models.Diagnostic
}

// Build emits the node and edge sets for a filtered resource set. Unresolvable
// references are skipped silently; malformed records are skipped and reported.
func Build(fs *FilteredSet) *BuildResult {
	b := &builder{fs: fs, g: NewGraph()}
	b.diags = append(b.diags, fs.Index.Diagnostics...)

	b.addRoles()
	b.addAggregation()
	for _, binding := range fs.ClusterRoleBindings {
		b.addBinding(binding)
	}
	for _, binding := range fs.RoleBindings {
		b.addBinding(binding)
	}
	b.addWorkloads()

	if err := b.g.Validate(); err != nil {
		b.diag(models.DiagMalformedRecord, err.Error(), "")
	}
	return &BuildResult{Graph: b.g, Diagnostics: b.diags}
}

func (b *builder) diag(code, msg, resource string) {
	b.diags = append(b.diags, models.Diagnostic{Code: code, Message: msg, Resource: resource})
}

func (b *builder) addRoles() {
	for _, r := range b.fs.ClusterRoles {
		b.g.AddNode(models.GraphNode{
			ID:      RoleNodeID(r.Kind, "", r.Name),
			Kind:    models.NodeKindClusterRole,
			Label:   r.Name,
			Payload: models.RolePayload{Role: *r},
		})
	}
	for _, r := range b.fs.Roles {
		b.g.AddNode(models.GraphNode{
			ID:      RoleNodeID(r.Kind, r.Namespace, r.Name),
			Kind:    models.NodeKindRole,
			Label:   r.Name,
			Payload: models.RolePayload{Role: *r},
		})
	}
}

// addAggregation links aggregating cluster roles to the cluster roles their selectors
// match. Empty selectors are ignored so one rule cannot fan out to every role.
func (b *builder) addAggregation() {
	for _, agg := range b.fs.ClusterRoles {
		if agg.Aggregation == nil {
			continue
		}
		aggID := RoleNodeID(agg.Kind, "", agg.Name)
		for i := range agg.Aggregation.ClusterRoleSelectors {
			ls := &agg.Aggregation.ClusterRoleSelectors[i]
			if len(ls.MatchLabels) == 0 && len(ls.MatchExpressions) == 0 {
				continue
			}
			sel, err := metav1.LabelSelectorAsSelector(ls)
			if err != nil {
				b.diag(models.DiagInvalidSelector, err.Error(), models.KindClusterRole+"/"+agg.Name)
				continue
			}
			for _, other := range b.fs.ClusterRoles {
				if other == agg || !sel.Matches(labels.Set(other.Labels)) {
					continue
				}
				otherID := RoleNodeID(other.Kind, "", other.Name)
				b.g.AddEdge(models.GraphEdge{
					ID:     EdgeID(models.EdgeKindAggregates, aggID, otherID, ""),
					Source: aggID,
					Target: otherID,
					Kind:   models.EdgeKindAggregates,
				})
			}
		}
	}
}

func (b *builder) addBinding(binding *models.AccessBinding) {
	role, ok := b.fs.ResolveRole(binding)
	if !ok {
		return
	}
	roleID := RoleNodeID(role.Kind, role.Namespace, role.Name)
	bindingID := BindingNodeID(binding.Kind, binding.Namespace, binding.Name)

	source, via := roleID, bindingID
	if b.fs.State.ShowBindings {
		b.g.AddNode(models.GraphNode{
			ID:      bindingID,
			Kind:    models.NodeKindBinding,
			Label:   binding.Name,
			Payload: models.BindingPayload{Binding: *binding},
		})
		b.g.AddEdge(models.GraphEdge{
			ID:     EdgeID(models.EdgeKindGrants, roleID, bindingID, ""),
			Source: roleID,
			Target: bindingID,
			Kind:   models.EdgeKindGrants,
		})
		source, via = bindingID, ""
	}

	for _, s := range binding.Subjects {
		key, ok := b.fs.Index.SubjectKeyFor(binding, s)
		if !ok {
			b.diag(models.DiagMalformedRecord,
				fmt.Sprintf("subject %s %q cannot be resolved", s.Kind, s.Name),
				binding.Kind+"/"+binding.Name)
			continue
		}
		if !b.fs.SubjectVisible(key) {
			continue
		}
		subjectID := b.explicitSubject(key, bindingID)
		b.g.AddEdge(models.GraphEdge{
			ID:     EdgeID(models.EdgeKindBinds, source, subjectID, via),
			Source: source,
			Target: subjectID,
			Kind:   models.EdgeKindBinds,
		})
	}
}

// explicitSubject returns the node for a subject named by a binding, creating it on
// first reference and recording every binding that names it.
func (b *builder) explicitSubject(key models.SubjectKey, bindingID string) string {
	id := SubjectNodeID(key)
	if node := b.g.GetNode(id); node != nil {
		if p, ok := node.Payload.(models.ExplicitSubject); ok {
			if n := len(p.BindingIDs); n == 0 || p.BindingIDs[n-1] != bindingID {
				ids := make([]string, n, n+1)
				copy(ids, p.BindingIDs)
				p.BindingIDs = append(ids, bindingID)
				node.Payload = p
			}
		}
		return id
	}
	b.g.AddNode(models.GraphNode{
		ID:    id,
		Kind:  models.NodeKindSubject,
		Label: subjectLabel(key),
		Payload: models.ExplicitSubject{
			Subject:    models.Subject{Kind: key.Kind, Name: key.Name, Namespace: key.Namespace},
			BindingIDs: []string{bindingID},
		},
	})
	return id
}

// addWorkloads links each workload to the service account it runs as. A service
// account that no visible binding names is synthesized as an implicit subject, unless
// a role selection is active: then only workloads of already visible subjects are shown.
func (b *builder) addWorkloads() {
	if !b.fs.State.ShowServiceAccounts {
		return
	}
	sel := b.fs.Selection
	for _, w := range b.fs.Workloads {
		sa := w.ServiceAccountName
		if sa == "" {
			sa = models.DefaultServiceAccountName
		}
		key := models.SubjectKey{Kind: models.SubjectKindServiceAccount, Namespace: w.Namespace, Name: sa}
		subjectID := SubjectNodeID(key)

		switch sel.Type {
		case FilterIdentity:
			if !sel.MatchesSubject(key) {
				continue
			}
		case FilterRole, FilterClusterRole:
			if b.g.GetNode(subjectID) == nil {
				continue
			}
		}

		if b.g.GetNode(subjectID) == nil {
			b.g.AddNode(models.GraphNode{
				ID:    subjectID,
				Kind:  models.NodeKindSubject,
				Label: subjectLabel(key),
				Payload: models.ImplicitSubject{
					Subject: models.Subject{Kind: key.Kind, Name: key.Name, Namespace: key.Namespace},
					Reason:  fmt.Sprintf("workload %s/%s runs as this service account", w.Namespace, w.Name),
				},
			})
		}

		workloadID := WorkloadNodeID(w.Namespace, w.Name)
		b.g.AddNode(models.GraphNode{
			ID:      workloadID,
			Kind:    models.NodeKindWorkload,
			Label:   w.Name,
			Payload: models.WorkloadPayload{Workload: *w},
		})
		b.g.AddEdge(models.GraphEdge{
			ID:     EdgeID(models.EdgeKindRunsAs, subjectID, workloadID, ""),
			Source: subjectID,
			Target: workloadID,
			Kind:   models.EdgeKindRunsAs,
		})
	}
}

func subjectLabel(key models.SubjectKey) string {
	if key.Namespace == "" {
		return key.Name
	}
	return key.Namespace + "/" + key.Name
}
