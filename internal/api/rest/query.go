package rest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/rbacgraph"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

// parseGraphQuery reads filter and layout state from query parameters on top of
// the defaults. Unknown parameters are ignored.
func parseGraphQuery(q url.Values) (service.GraphRequest, error) {
	req := service.DefaultGraphRequest()
	f := &req.Filter

	if v := q.Get("filterType"); v != "" {
		ft, err := rbacgraph.ParseFilterType(v)
		if err != nil {
			return req, err
		}
		f.FilterType = ft
	}
	f.FilterValue = q.Get("filterValue")
	f.IdentityKind = q.Get("identityKind")
	f.SearchTerm = q.Get("search")
	f.NamespaceScope = q.Get("namespace")

	toggles := map[string]*bool{
		"showBindings":        &f.ShowBindings,
		"showServiceAccounts": &f.ShowServiceAccounts,
		"showUsers":           &f.ShowUsers,
		"showGroups":          &f.ShowGroups,
		"showSystemRoles":     &f.ShowSystemRoles,
		"showWorkloads":       &f.ShowWorkloads,
	}
	for name, dst := range toggles {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = b
		}
	}

	l := &req.Layout
	if v := q.Get("direction"); v != "" {
		l.Direction = layout.ParseDirection(v)
	}
	floats := map[string]*float64{
		"nodeSeparation": &l.NodeSeparation,
		"rankSeparation": &l.RankSeparation,
		"orphanSpacing":  &l.OrphanSpacing,
	}
	for name, dst := range floats {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil || n < 0 {
				return req, fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = n
		}
	}
	if v := q.Get("orphanColumns"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid orphanColumns: %q", v)
		}
		l.OrphanColumns = n
	}
	if v := q.Get("expanded"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				l.Expanded = append(l.Expanded, id)
			}
		}
	}
	return req, nil
}
