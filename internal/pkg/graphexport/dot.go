package graphexport

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// GraphToDOT renders the graph as Graphviz DOT. Namespaced nodes are grouped in one
// dashed cluster per namespace; node positions are passed as pos hints in points.
func GraphToDOT(g *models.RBACGraph) string {
	root := dot.NewGraph(dot.Directed)
	root.Attr("newrank", "true")
	root.Attr("rankdir", "TB")
	if g == nil {
		return root.String()
	}

	clusters := map[string]*dot.Graph{}
	parentFor := func(ns string) *dot.Graph {
		if ns == "" {
			return root
		}
		if c, ok := clusters[ns]; ok {
			return c
		}
		c := root.Subgraph(ns, dot.ClusterOption{})
		c.Attr("style", "dashed")
		clusters[ns] = c
		return c
	}

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		parent := parentFor(nodeNamespace(n))
		dn := parent.Node(n.ID).
			Attr("label", fmt.Sprintf("%s\n(%s)", n.Label, n.Kind)).
			Attr("style", "filled").
			Attr("fillcolor", fillFor(n))
		switch n.Kind {
		case models.NodeKindClusterRole:
			dn.Attr("shape", "doubleoctagon")
		case models.NodeKindRole:
			dn.Attr("shape", "octagon")
		case models.NodeKindBinding:
			dn.Attr("shape", "hexagon")
		case models.NodeKindWorkload:
			dn.Attr("shape", "component")
		default:
			dn.Box()
		}
		if _, implicit := n.Payload.(models.ImplicitSubject); implicit {
			dn.Attr("style", "filled,dotted")
		}
		if n.Position != nil {
			dn.Attr("pos", fmt.Sprintf("%.0f,%.0f", n.Position.X, -n.Position.Y))
		}
		nodes[n.ID] = dn
	}

	for _, e := range g.Edges {
		from, ok1 := nodes[e.Source]
		to, ok2 := nodes[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		de := root.Edge(from, to).Attr("label", string(e.Kind))
		if e.Kind == models.EdgeKindAggregates {
			de.Attr("style", "dashed")
		}
	}
	return root.String()
}

func nodeNamespace(n models.GraphNode) string {
	switch p := n.Payload.(type) {
	case models.RolePayload:
		return p.Role.Namespace
	case models.BindingPayload:
		return p.Binding.Namespace
	case models.ExplicitSubject:
		return p.Subject.Namespace
	case models.ImplicitSubject:
		return p.Subject.Namespace
	case models.WorkloadPayload:
		return p.Workload.Namespace
	}
	return ""
}
