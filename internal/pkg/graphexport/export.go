// Package graphexport renders a positioned access graph as JSON, SVG, draw.io XML,
// Mermaid or Graphviz DOT.
package graphexport

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// Format is an export format name.
type Format string

const (
	FormatJSON    Format = "json"
	FormatSVG     Format = "svg"
	FormatDrawio  Format = "drawio"
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
)

// ContentType returns the HTTP content type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatDrawio:
		return "application/xml"
	case FormatMermaid:
		return "text/plain; charset=utf-8"
	case FormatDOT:
		return "text/vnd.graphviz"
	}
	return "application/json"
}

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatSVG, FormatDrawio, FormatMermaid, FormatDOT:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Export renders the graph in the given format.
func Export(g *models.RBACGraph, f Format) ([]byte, error) {
	switch f {
	case FormatJSON, "":
		return GraphToJSON(g)
	case FormatSVG:
		return GraphToSVG(g)
	case FormatDrawio:
		return GraphToDrawioXML(g)
	case FormatMermaid:
		return []byte(GraphToMermaid(g)), nil
	case FormatDOT:
		return []byte(GraphToDOT(g)), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

const (
	gridGapX = 300
	gridGapY = 120
)

var footprints = layout.DefaultFootprints()

func nodeSize(kind models.NodeKind) layout.Size {
	if fp, ok := footprints[kind]; ok {
		return fp.Collapsed
	}
	return layout.Size{Width: 200, Height: 60}
}

// ApplySimpleLayout assigns grid positions to nodes that don't have Position set.
// Graphs from the service are always positioned; this covers hand-built input.
func ApplySimpleLayout(g *models.RBACGraph) {
	if g == nil {
		return
	}
	n := len(g.Nodes)
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	for i := range g.Nodes {
		if g.Nodes[i].Position != nil {
			continue
		}
		row := i / cols
		col := i % cols
		g.Nodes[i].Position = &models.Position{X: float64(col)*gridGapX + 20, Y: float64(row)*gridGapY + 20}
	}
}

// GraphToJSON returns the graph as indented JSON.
func GraphToJSON(g *models.RBACGraph) ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	return json.MarshalIndent(g, "", "  ")
}

var kindFill = map[models.NodeKind]string{
	models.NodeKindClusterRole: "#ff9900",
	models.NodeKindRole:        "#ffb84d",
	models.NodeKindBinding:     "#ffcc00",
	models.NodeKindSubject:     "#2f6de1",
	models.NodeKindWorkload:    "#22a06b",
}

func fillFor(n models.GraphNode) string {
	if _, implicit := n.Payload.(models.ImplicitSubject); implicit {
		return "#9db7ef"
	}
	if c, ok := kindFill[n.Kind]; ok {
		return c
	}
	return "#e2e8f0"
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// GraphToSVG returns an SVG document of the graph using node positions and kind footprints.
func GraphToSVG(g *models.RBACGraph) ([]byte, error) {
	if g == nil || len(g.Nodes) == 0 {
		return []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="100"><text x="20" y="50" font-size="14">No access relationships</text></svg>`), nil
	}
	ApplySimpleLayout(g)

	maxX, maxY := 0.0, 0.0
	for _, n := range g.Nodes {
		s := nodeSize(n.Kind)
		maxX = math.Max(maxX, n.Position.X+s.Width)
		maxY = math.Max(maxY, n.Position.Y+s.Height)
	}
	const margin = 20
	width := int(math.Max(maxX+2*margin, 400))
	height := int(math.Max(maxY+2*margin, 200))

	byID := make(map[string]models.GraphNode, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height)
	buf.WriteString(`<defs><style>.node { stroke: #334155; stroke-width: 1; } .edge { stroke: #94a3b8; stroke-width: 2; fill: none; } .edge.aggregates { stroke-dasharray: 6 4; } .label { font: 12px sans-serif; fill: #0f172a; }</style></defs>`)
	fmt.Fprintf(&buf, `<g transform="translate(%d,%d)">`, margin, margin)
	for _, e := range g.Edges {
		src, ok1 := byID[e.Source]
		dst, ok2 := byID[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		ss, ds := nodeSize(src.Kind), nodeSize(dst.Kind)
		fmt.Fprintf(&buf, `<path class="edge %s" d="M %.1f %.1f L %.1f %.1f"/>`,
			e.Kind,
			src.Position.X+ss.Width/2, src.Position.Y+ss.Height,
			dst.Position.X+ds.Width/2, dst.Position.Y)
	}
	for _, n := range g.Nodes {
		s := nodeSize(n.Kind)
		fmt.Fprintf(&buf, `<rect class="node" x="%.1f" y="%.1f" width="%.0f" height="%.0f" rx="6" fill="%s"/>`,
			n.Position.X, n.Position.Y, s.Width, s.Height, fillFor(n))
		fmt.Fprintf(&buf, `<text class="label" x="%.1f" y="%.1f" text-anchor="middle">%s: %s</text>`,
			n.Position.X+s.Width/2, n.Position.Y+s.Height/2+4, escapeXML(string(n.Kind)), escapeXML(truncate(n.Label, 28)))
	}
	buf.WriteString("</g></svg>")
	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;").Replace(s)
}

// draw.io mxfile structure (minimal valid export)
type mxfile struct {
	XMLName  xml.Name  `xml:"mxfile"`
	Host     string    `xml:"host,attr"`
	Modified string    `xml:"modified,attr"`
	Agent    string    `xml:"agent,attr"`
	Version  string    `xml:"version,attr"`
	Diagram  mxDiagram `xml:"diagram"`
}

type mxDiagram struct {
	XMLName      xml.Name     `xml:"diagram"`
	ID           string       `xml:"id,attr"`
	Name         string       `xml:"name,attr"`
	MxGraphModel mxGraphModel `xml:"mxGraphModel"`
}

type mxGraphModel struct {
	XMLName  xml.Name `xml:"mxGraphModel"`
	DX       int      `xml:"dx,attr"`
	DY       int      `xml:"dy,attr"`
	Grid     int      `xml:"grid,attr"`
	GridSize int      `xml:"gridSize,attr"`
	Root     mxRoot   `xml:"root"`
}

type mxRoot struct {
	XMLName xml.Name `xml:"root"`
	Cells   []mxCell `xml:"mxCell"`
}

type mxCell struct {
	XMLName  xml.Name    `xml:"mxCell"`
	ID       string      `xml:"id,attr"`
	Parent   string      `xml:"parent,attr,omitempty"`
	Value    string      `xml:"value,attr,omitempty"`
	Style    string      `xml:"style,attr,omitempty"`
	Vertex   string      `xml:"vertex,attr,omitempty"`
	Edge     string      `xml:"edge,attr,omitempty"`
	Source   string      `xml:"source,attr,omitempty"`
	Target   string      `xml:"target,attr,omitempty"`
	Geometry *mxGeometry `xml:"mxGeometry,omitempty"`
}

type mxGeometry struct {
	XMLName  xml.Name `xml:"mxGeometry"`
	X        string   `xml:"x,attr,omitempty"`
	Y        string   `xml:"y,attr,omitempty"`
	Width    string   `xml:"width,attr,omitempty"`
	Height   string   `xml:"height,attr,omitempty"`
	Relative string   `xml:"relative,attr,omitempty"`
	As       string   `xml:"as,attr,omitempty"`
}

// GraphToDrawioXML returns draw.io (diagrams.net) XML. The modified stamp is fixed so
// equal graphs export to equal bytes.
func GraphToDrawioXML(g *models.RBACGraph) ([]byte, error) {
	if g == nil || len(g.Nodes) == 0 {
		return []byte(`<mxfile host="app.diagrams.net"><diagram id="0" name="empty"><mxGraphModel dx="0" dy="0" grid="1" gridSize="10"><root><mxCell id="0"/><mxCell id="1" parent="0"/></root></mxGraphModel></diagram></mxfile>`), nil
	}
	ApplySimpleLayout(g)

	cellID := 2
	cells := []mxCell{{ID: "0"}, {ID: "1", Parent: "0"}}
	nodeIDToCell := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		cid := fmt.Sprintf("%d", cellID)
		cellID++
		nodeIDToCell[n.ID] = cid
		s := nodeSize(n.Kind)
		cells = append(cells, mxCell{
			ID:     cid,
			Parent: "1",
			Value:  truncate(string(n.Kind)+": "+n.Label, 60),
			Style:  "rounded=1;whiteSpace=wrap;html=1;fillColor=" + fillFor(n) + ";strokeColor=#334155;",
			Vertex: "1",
			Geometry: &mxGeometry{
				X: fmt.Sprintf("%.1f", n.Position.X), Y: fmt.Sprintf("%.1f", n.Position.Y),
				Width: fmt.Sprintf("%.0f", s.Width), Height: fmt.Sprintf("%.0f", s.Height), As: "geometry",
			},
		})
	}
	for _, e := range g.Edges {
		srcID, ok1 := nodeIDToCell[e.Source]
		dstID, ok2 := nodeIDToCell[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		style := "endArrow=classic;html=1;strokeColor=#94a3b8;"
		if e.Kind == models.EdgeKindAggregates {
			style += "dashed=1;"
		}
		cells = append(cells, mxCell{
			ID:       fmt.Sprintf("%d", cellID),
			Parent:   "1",
			Value:    string(e.Kind),
			Edge:     "1",
			Source:   srcID,
			Target:   dstID,
			Style:    style,
			Geometry: &mxGeometry{Relative: "1", As: "geometry"},
		})
		cellID++
	}
	mx := mxfile{
		Host: "app.diagrams.net", Modified: "2025-01-01T00:00:00.000Z", Agent: "rbacgraph", Version: "21.0.0",
		Diagram: mxDiagram{
			ID: "rbac", Name: "RBAC",
			MxGraphModel: mxGraphModel{DX: 1200, DY: 800, Grid: 1, GridSize: 10, Root: mxRoot{Cells: cells}},
		},
	}
	return xml.MarshalIndent(mx, "", "  ")
}
