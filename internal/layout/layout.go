// Package layout places an access graph on a plane with a layered (Sugiyama-style)
// algorithm: cycle breaking, longest-path ranking, barycenter ordering and
// footprint-aware coordinate assignment. Nodes without edges go to a fixed grid
// below the layered drawing.
//
// Every step iterates in node-id order, so equal inputs yield equal coordinates.
package layout

import (
	"encoding/json"
	"sort"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// Direction is the primary axis along which ranks advance.
type Direction string

const (
	TopToBottom Direction = "TB"
	LeftToRight Direction = "LR"
)

// ParseDirection maps user input to a direction, defaulting to top-to-bottom.
func ParseDirection(s string) Direction {
	switch s {
	case "LR", "lr", "left-to-right":
		return LeftToRight
	}
	return TopToBottom
}

// Size is a width and height in layout units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Footprint is the space reserved for a node kind, collapsed and expanded.
type Footprint struct {
	Collapsed Size `json:"collapsed"`
	Expanded  Size `json:"expanded"`
}

// FootprintTable maps node kinds to footprints.
type FootprintTable map[models.NodeKind]Footprint

var fallbackSize = Size{Width: 200, Height: 60}

// DefaultFootprints matches the card sizes of the RBAC visualizer.
func DefaultFootprints() FootprintTable {
	return FootprintTable{
		models.NodeKindClusterRole: {Collapsed: Size{240, 72}, Expanded: Size{340, 280}},
		models.NodeKindRole:        {Collapsed: Size{240, 72}, Expanded: Size{340, 280}},
		models.NodeKindBinding:     {Collapsed: Size{220, 56}, Expanded: Size{300, 200}},
		models.NodeKindSubject:     {Collapsed: Size{220, 64}, Expanded: Size{280, 160}},
		models.NodeKindWorkload:    {Collapsed: Size{240, 72}, Expanded: Size{320, 240}},
	}
}

// Options configures a layout run. Zero or negative numeric fields take defaults.
type Options struct {
	Direction      Direction      `json:"direction" mapstructure:"direction"`
	NodeSeparation float64        `json:"nodeSeparation" mapstructure:"node_separation"`
	RankSeparation float64        `json:"rankSeparation" mapstructure:"rank_separation"`
	OrphanColumns  int            `json:"orphanColumns" mapstructure:"orphan_columns"`
	OrphanSpacing  float64        `json:"orphanSpacing" mapstructure:"orphan_spacing"`
	OrderingPasses int            `json:"orderingPasses" mapstructure:"ordering_passes"`
	Footprints     FootprintTable `json:"footprints,omitempty" mapstructure:"-"`
	Expanded       []string       `json:"expanded,omitempty" mapstructure:"-"`
}

// Defaults.
const (
	DefaultNodeSeparation = 60
	DefaultRankSeparation = 120
	DefaultOrphanColumns  = 6
	DefaultOrphanSpacing  = 80
	// Barycenter ordering gains little after a handful of sweeps.
	DefaultOrderingPasses = 4
)

// DefaultOptions returns a top-to-bottom layout with the default footprints.
func DefaultOptions() Options {
	return Options{
		Direction:      TopToBottom,
		NodeSeparation: DefaultNodeSeparation,
		RankSeparation: DefaultRankSeparation,
		OrphanColumns:  DefaultOrphanColumns,
		OrphanSpacing:  DefaultOrphanSpacing,
		OrderingPasses: DefaultOrderingPasses,
		Footprints:     DefaultFootprints(),
	}
}

// Normalized fills defaults and sorts the expanded set.
func (o Options) Normalized() Options {
	if o.Direction != LeftToRight {
		o.Direction = TopToBottom
	}
	if o.NodeSeparation <= 0 {
		o.NodeSeparation = DefaultNodeSeparation
	}
	if o.RankSeparation <= 0 {
		o.RankSeparation = DefaultRankSeparation
	}
	if o.OrphanColumns <= 0 {
		o.OrphanColumns = DefaultOrphanColumns
	}
	if o.OrphanSpacing <= 0 {
		o.OrphanSpacing = DefaultOrphanSpacing
	}
	if o.OrderingPasses <= 0 {
		o.OrderingPasses = DefaultOrderingPasses
	}
	if len(o.Footprints) == 0 {
		o.Footprints = DefaultFootprints()
	}
	if len(o.Expanded) > 0 {
		exp := append([]string(nil), o.Expanded...)
		sort.Strings(exp)
		o.Expanded = exp
	}
	return o
}

// Key is a canonical encoding of the normalized options, used for memoization.
func (o Options) Key() string {
	data, _ := json.Marshal(o.Normalized())
	return string(data)
}

// Result is a positioned graph plus what the engine decided along the way.
type Result struct {
	Nodes         []models.GraphNode
	Edges         []models.GraphEdge
	Ranks         map[string]int
	Orphans       []string
	ReversedEdges []string
	Width         float64
	Height        float64
}

// Apply lays out the graph. The returned nodes are copies of the input nodes, in
// input order, with Position set; edges are returned unchanged. Apply never fails:
// cycles are broken for ranking only and unplaceable nodes go to the orphan grid.
func Apply(nodes []models.GraphNode, edges []models.GraphEdge, opts Options) *Result {
	opts = opts.Normalized()
	expanded := make(map[string]bool, len(opts.Expanded))
	for _, id := range opts.Expanded {
		expanded[id] = true
	}

	g := newWorkGraph(nodes, edges)
	sizes := make([]Size, len(g.ids))
	for i, id := range g.ids {
		sizes[i] = opts.footprint(g.kinds[i], expanded[id])
	}

	reversed := breakCycles(len(g.ids), g.edges)
	dag := make([]workEdge, len(g.edges))
	for i, e := range g.edges {
		if reversed[i] {
			e.from, e.to = e.to, e.from
		}
		dag[i] = e
	}

	ranks := longestPathRanks(len(g.ids), dag, g.connected)
	layers := buildLayers(ranks)
	layers = orderLayers(layers, dag, opts.OrderingPasses)

	pos := make([]models.Position, len(g.ids))
	placed := make([]bool, len(g.ids))
	width, height := assignCoordinates(layers, sizes, opts, pos, placed)

	var orphans []int
	for _, i := range g.discovery {
		if !placed[i] {
			orphans = append(orphans, i)
		}
	}
	if len(orphans) > 0 {
		w, h := placeOrphans(orphans, sizes, opts, height, len(layers) > 0, pos)
		if w > width {
			width = w
		}
		height = h
	}

	res := &Result{
		Nodes:  make([]models.GraphNode, len(nodes)),
		Edges:  edges,
		Ranks:  make(map[string]int),
		Width:  width,
		Height: height,
	}
	for i, n := range nodes {
		if idx, ok := g.index[n.ID]; ok && g.discoveredAt[idx] == i {
			p := pos[idx]
			n.Position = &p
		}
		res.Nodes[i] = n
	}
	for i, id := range g.ids {
		if placed[i] && ranks[i] >= 0 {
			res.Ranks[id] = ranks[i]
		}
	}
	for _, i := range orphans {
		res.Orphans = append(res.Orphans, g.ids[i])
	}
	for i, e := range g.edges {
		if reversed[i] {
			res.ReversedEdges = append(res.ReversedEdges, e.id)
		}
	}
	return res
}

func (o Options) footprint(kind models.NodeKind, expanded bool) Size {
	fp, ok := o.Footprints[kind]
	if !ok {
		return fallbackSize
	}
	if expanded && fp.Expanded.Width > 0 && fp.Expanded.Height > 0 {
		return fp.Expanded
	}
	if fp.Collapsed.Width > 0 && fp.Collapsed.Height > 0 {
		return fp.Collapsed
	}
	return fallbackSize
}

// workEdge is an edge between node indices.
type workEdge struct {
	from, to int
	id       string
}

// workGraph is the index-based view the algorithm runs on. Node indices follow
// sorted id order.
type workGraph struct {
	ids          []string
	kinds        []models.NodeKind
	index        map[string]int
	discovery    []int // node indices in input order
	discoveredAt []int // node index -> position in the input slice
	edges        []workEdge
	connected    []bool
}

func newWorkGraph(nodes []models.GraphNode, edges []models.GraphEdge) *workGraph {
	first := make(map[string]int, len(nodes))
	var ids []string
	for i, n := range nodes {
		if _, dup := first[n.ID]; dup {
			continue
		}
		first[n.ID] = i
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	g := &workGraph{
		ids:          ids,
		kinds:        make([]models.NodeKind, len(ids)),
		index:        make(map[string]int, len(ids)),
		discoveredAt: make([]int, len(ids)),
		connected:    make([]bool, len(ids)),
	}
	for i, id := range ids {
		g.index[id] = i
		g.discoveredAt[i] = first[id]
		g.kinds[i] = nodes[first[id]].Kind
	}
	for i, n := range nodes {
		if idx := g.index[n.ID]; g.discoveredAt[idx] == i {
			g.discovery = append(g.discovery, idx)
		}
	}

	for _, e := range edges {
		from, ok1 := g.index[e.Source]
		to, ok2 := g.index[e.Target]
		if !ok1 || !ok2 || from == to {
			continue
		}
		g.edges = append(g.edges, workEdge{from: from, to: to, id: e.ID})
		g.connected[from] = true
		g.connected[to] = true
	}
	sort.SliceStable(g.edges, func(a, b int) bool {
		ea, eb := g.edges[a], g.edges[b]
		if ea.from != eb.from {
			return ea.from < eb.from
		}
		if ea.to != eb.to {
			return ea.to < eb.to
		}
		return ea.id < eb.id
	})
	return g
}
