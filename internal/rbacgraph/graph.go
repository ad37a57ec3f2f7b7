package rbacgraph

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// SchemaVersion is the version of the emitted graph contract.
const SchemaVersion = "1.0"

// Graph is the node and edge set produced by one build pass.
type Graph struct {
	Nodes   []models.GraphNode
	Edges   []models.GraphEdge
	NodeMap map[string]int // id -> index into Nodes
	EdgeMap map[string]bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:   []models.GraphNode{},
		Edges:   []models.GraphEdge{},
		NodeMap: make(map[string]int),
		EdgeMap: make(map[string]bool),
	}
}

// AddNode adds a node unless one with the same id exists. It reports whether the
// node was added.
func (g *Graph) AddNode(node models.GraphNode) bool {
	if _, exists := g.NodeMap[node.ID]; exists {
		return false
	}
	g.NodeMap[node.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, node)
	return true
}

// AddEdge adds an edge. Parallel edges between the same pair are kept as long as
// their ids differ; an edge whose id is already present is dropped.
func (g *Graph) AddEdge(edge models.GraphEdge) {
	if g.EdgeMap[edge.ID] {
		return
	}
	g.Edges = append(g.Edges, edge)
	g.EdgeMap[edge.ID] = true
}

// GetNode retrieves a node by id.
func (g *Graph) GetNode(id string) *models.GraphNode {
	i, ok := g.NodeMap[id]
	if !ok {
		return nil
	}
	return &g.Nodes[i]
}

// GetNodesByKind returns all nodes of a given kind.
func (g *Graph) GetNodesByKind(kind models.NodeKind) []models.GraphNode {
	var result []models.GraphNode
	for _, node := range g.Nodes {
		if node.Kind == kind {
			result = append(result, node)
		}
	}
	return result
}

// GetOutgoingEdges returns all edges originating from a node.
func (g *Graph) GetOutgoingEdges(nodeID string) []models.GraphEdge {
	var result []models.GraphEdge
	for _, edge := range g.Edges {
		if edge.Source == nodeID {
			result = append(result, edge)
		}
	}
	return result
}

// GetIncomingEdges returns all edges targeting a node.
func (g *Graph) GetIncomingEdges(nodeID string) []models.GraphEdge {
	var result []models.GraphEdge
	for _, edge := range g.Edges {
		if edge.Target == nodeID {
			result = append(result, edge)
		}
	}
	return result
}

// Validate checks referential closure and node id uniqueness.
func (g *Graph) Validate() error {
	for _, edge := range g.Edges {
		if g.GetNode(edge.Source) == nil {
			return fmt.Errorf("edge %s references non-existent source node: %s", edge.ID, edge.Source)
		}
		if g.GetNode(edge.Target) == nil {
			return fmt.Errorf("edge %s references non-existent target node: %s", edge.ID, edge.Target)
		}
	}
	if len(g.Nodes) != len(g.NodeMap) {
		return fmt.Errorf("duplicate node IDs detected")
	}
	return nil
}

// LayoutSeed is a hash of the sorted node and edge ids. Equal graphs have equal seeds
// regardless of insertion order.
func (g *Graph) LayoutSeed() string {
	nodes := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = n.ID
	}
	sort.Strings(nodes)
	edges := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = e.ID
	}
	sort.Strings(edges)

	data, _ := json.Marshal(struct {
		Nodes []string
		Edges []string
	}{nodes, edges})
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ToRBACGraph converts the graph to the API model.
func (g *Graph) ToRBACGraph(diags []models.Diagnostic) models.RBACGraph {
	return models.RBACGraph{
		SchemaVersion: SchemaVersion,
		Nodes:         g.Nodes,
		Edges:         g.Edges,
		Metadata: models.GraphMetadata{
			LayoutSeed:  g.LayoutSeed(),
			NodeCount:   len(g.Nodes),
			EdgeCount:   len(g.Edges),
			Diagnostics: diags,
		},
	}
}
