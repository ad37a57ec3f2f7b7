package rbacgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// FilterType selects what the graph is centred on.
type FilterType string

const (
	FilterNone        FilterType = ""
	FilterIdentity    FilterType = "identity"
	FilterRole        FilterType = "role"
	FilterClusterRole FilterType = "cluster-role"
)

// SystemRolePrefix marks roles managed by the control plane. They are hidden unless
// ShowSystemRoles is set.
const SystemRolePrefix = "system:"

// ParseFilterType validates a filter type string.
func ParseFilterType(s string) (FilterType, error) {
	switch t := FilterType(strings.TrimSpace(s)); t {
	case FilterNone, FilterIdentity, FilterRole, FilterClusterRole:
		return t, nil
	}
	return FilterNone, fmt.Errorf("unknown filter type %q", s)
}

// FilterState is the selection and visibility state of one graph request.
type FilterState struct {
	FilterType     FilterType `json:"filterType,omitempty" mapstructure:"filter_type"`
	FilterValue    string     `json:"filterValue,omitempty" mapstructure:"filter_value"`
	IdentityKind   string     `json:"identityKind,omitempty" mapstructure:"identity_kind"`
	SearchTerm     string     `json:"searchTerm,omitempty" mapstructure:"search_term"`
	NamespaceScope string     `json:"namespaceScope,omitempty" mapstructure:"namespace_scope"`

	ShowBindings        bool `json:"showBindings" mapstructure:"show_bindings"`
	ShowServiceAccounts bool `json:"showServiceAccounts" mapstructure:"show_service_accounts"`
	ShowUsers           bool `json:"showUsers" mapstructure:"show_users"`
	ShowGroups          bool `json:"showGroups" mapstructure:"show_groups"`
	ShowSystemRoles     bool `json:"showSystemRoles" mapstructure:"show_system_roles"`
	ShowWorkloads       bool `json:"showWorkloads" mapstructure:"show_workloads"`
}

// DefaultFilterState shows everything except system roles.
func DefaultFilterState() FilterState {
	return FilterState{
		ShowBindings:        true,
		ShowServiceAccounts: true,
		ShowUsers:           true,
		ShowGroups:          true,
		ShowWorkloads:       true,
	}
}

// Key is a canonical encoding of the state, used for memoization.
func (f FilterState) Key() string {
	data, _ := json.Marshal(f)
	return string(data)
}

// Selection is a parsed filter target.
type Selection struct {
	Type         FilterType
	Namespace    string
	Name         string
	HasNamespace bool
	IdentityKind string
}

// ParseSelection splits a "namespace/name" filter value. A value without a separator
// is taken as a bare name with no namespace constraint. Cluster roles, users and
// groups are cluster-wide, so their value is always a bare name.
func ParseSelection(t FilterType, value, identityKind string) Selection {
	sel := Selection{Type: t, IdentityKind: identityKind}
	value = strings.TrimSpace(value)
	if t == FilterNone || value == "" {
		sel.Type = FilterNone
		return sel
	}
	bare := t == FilterClusterRole ||
		identityKind == models.SubjectKindUser ||
		identityKind == models.SubjectKindGroup
	if ns, name, ok := strings.Cut(value, "/"); ok && !bare && ns != "" && name != "" {
		sel.Namespace, sel.Name, sel.HasNamespace = ns, name, true
		return sel
	}
	sel.Name = value
	return sel
}

// MatchesSubject reports whether the identity key is the selected identity.
func (s Selection) MatchesSubject(key models.SubjectKey) bool {
	if s.Type != FilterIdentity {
		return false
	}
	if s.IdentityKind != "" && s.IdentityKind != key.Kind {
		return false
	}
	if key.Name != s.Name {
		return false
	}
	return !s.HasNamespace || key.Namespace == s.Namespace
}

// FilteredSet is the reduced resource set reachable from the selection.
type FilteredSet struct {
	Index     *Index
	State     FilterState
	Selection Selection

	ClusterRoles        []*models.AccessRole
	Roles               []*models.AccessRole
	ClusterRoleBindings []*models.AccessBinding
	RoleBindings        []*models.AccessBinding
	Workloads           []*models.WorkloadInstance

	roles map[*models.AccessRole]bool
}

// Filter applies the selection and visibility toggles to the index. Roles hidden by
// the system prefix, the search term or the namespace scope are removed before
// reachability is computed, so they cannot reappear through a binding.
func Filter(ix *Index, state FilterState) *FilteredSet {
	if ix == nil {
		ix = NewIndex(nil)
	}
	fs := &FilteredSet{
		Index:     ix,
		State:     state,
		Selection: ParseSelection(state.FilterType, state.FilterValue, state.IdentityKind),
		roles:     make(map[*models.AccessRole]bool),
	}
	search := strings.ToLower(strings.TrimSpace(state.SearchTerm))

	visible := make(map[*models.AccessRole]bool)
	var clusterRoles, roles []*models.AccessRole
	for _, r := range ix.ClusterRoles {
		if fs.roleVisible(r, search) {
			visible[r] = true
			clusterRoles = append(clusterRoles, r)
		}
	}
	for _, r := range ix.Roles {
		if fs.roleVisible(r, search) {
			visible[r] = true
			roles = append(roles, r)
		}
	}

	resolves := func(b *models.AccessBinding) (*models.AccessRole, bool) {
		r, ok := ix.ResolveRoleRef(b)
		if !ok || !visible[r] {
			return nil, false
		}
		return r, true
	}
	var crbs, rbs []*models.AccessBinding
	for _, b := range ix.ClusterRoleBindings {
		if _, ok := resolves(b); ok {
			crbs = append(crbs, b)
		}
	}
	for _, b := range ix.RoleBindings {
		if !fs.inScope(b.Namespace) {
			continue
		}
		if _, ok := resolves(b); ok {
			rbs = append(rbs, b)
		}
	}

	sel := fs.Selection
	switch sel.Type {
	case FilterIdentity:
		reached := make(map[*models.AccessRole]bool)
		keep := func(list []*models.AccessBinding) []*models.AccessBinding {
			var out []*models.AccessBinding
			for _, b := range list {
				if !fs.bindingNamesSelection(b) {
					continue
				}
				r, _ := resolves(b)
				reached[r] = true
				out = append(out, b)
			}
			return out
		}
		crbs, rbs = keep(crbs), keep(rbs)
		clusterRoles = retainRoles(clusterRoles, reached)
		roles = retainRoles(roles, reached)

	case FilterRole:
		var kept []*models.AccessRole
		for _, r := range roles {
			if r.Name == sel.Name && (!sel.HasNamespace || r.Namespace == sel.Namespace) {
				kept = append(kept, r)
			}
		}
		keptSet := retainSet(kept)
		roles, clusterRoles, crbs = kept, nil, nil
		var out []*models.AccessBinding
		for _, b := range rbs {
			if b.RoleRef.Kind != models.KindRole {
				continue
			}
			if r, ok := resolves(b); ok && keptSet[r] {
				out = append(out, b)
			}
		}
		rbs = out

	case FilterClusterRole:
		var kept []*models.AccessRole
		for _, r := range clusterRoles {
			if r.Name == sel.Name {
				kept = append(kept, r)
			}
		}
		keptSet := retainSet(kept)
		clusterRoles, roles = kept, nil
		byRole := func(list []*models.AccessBinding) []*models.AccessBinding {
			var out []*models.AccessBinding
			for _, b := range list {
				if r, ok := resolves(b); ok && keptSet[r] {
					out = append(out, b)
				}
			}
			return out
		}
		crbs, rbs = byRole(crbs), byRole(rbs)
	}

	fs.ClusterRoles, fs.Roles = clusterRoles, roles
	fs.ClusterRoleBindings, fs.RoleBindings = crbs, rbs
	for _, r := range clusterRoles {
		fs.roles[r] = true
	}
	for _, r := range roles {
		fs.roles[r] = true
	}

	if state.ShowWorkloads {
		for _, w := range ix.Workloads {
			if !fs.inScope(w.Namespace) {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(w.Name), search) {
				continue
			}
			fs.Workloads = append(fs.Workloads, w)
		}
	}
	return fs
}

func (fs *FilteredSet) roleVisible(r *models.AccessRole, search string) bool {
	if !fs.State.ShowSystemRoles && strings.HasPrefix(r.Name, SystemRolePrefix) {
		return false
	}
	if search != "" && !strings.Contains(strings.ToLower(r.Name), search) {
		return false
	}
	if !r.IsClusterScoped() && !fs.inScope(r.Namespace) {
		return false
	}
	return true
}

func (fs *FilteredSet) inScope(namespace string) bool {
	return fs.State.NamespaceScope == "" || namespace == fs.State.NamespaceScope
}

func (fs *FilteredSet) bindingNamesSelection(b *models.AccessBinding) bool {
	for _, s := range b.Subjects {
		if key, ok := fs.Index.SubjectKeyFor(b, s); ok && fs.Selection.MatchesSubject(key) {
			return true
		}
	}
	return false
}

// ResolveRole returns the role a surviving binding points at, if that role survived too.
func (fs *FilteredSet) ResolveRole(b *models.AccessBinding) (*models.AccessRole, bool) {
	r, ok := fs.Index.ResolveRoleRef(b)
	if !ok || !fs.roles[r] {
		return nil, false
	}
	return r, true
}

// SubjectVisible is the final per-subject gate: kind toggles plus the identity selection.
func (fs *FilteredSet) SubjectVisible(key models.SubjectKey) bool {
	switch key.Kind {
	case models.SubjectKindUser:
		if !fs.State.ShowUsers {
			return false
		}
	case models.SubjectKindGroup:
		if !fs.State.ShowGroups {
			return false
		}
	case models.SubjectKindServiceAccount:
		if !fs.State.ShowServiceAccounts {
			return false
		}
	}
	if fs.Selection.Type == FilterIdentity {
		return fs.Selection.MatchesSubject(key)
	}
	return true
}

func retainRoles(list []*models.AccessRole, keep map[*models.AccessRole]bool) []*models.AccessRole {
	var out []*models.AccessRole
	for _, r := range list {
		if keep[r] {
			out = append(out, r)
		}
	}
	return out
}

func retainSet(list []*models.AccessRole) map[*models.AccessRole]bool {
	set := make(map[*models.AccessRole]bool, len(list))
	for _, r := range list {
		set[r] = true
	}
	return set
}
