package graphexport

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

func sampleGraph() *models.RBACGraph {
	return &models.RBACGraph{
		SchemaVersion: "1.0",
		Nodes: []models.GraphNode{
			{ID: "role:Role:ns1:viewer", Kind: models.NodeKindRole, Label: "viewer", Position: &models.Position{X: 0, Y: 0},
				Payload: models.RolePayload{Role: models.AccessRole{Kind: models.KindRole, Name: "viewer", Namespace: "ns1"}}},
			{ID: "binding:RoleBinding:ns1:view", Kind: models.NodeKindBinding, Label: "view", Position: &models.Position{X: 0, Y: 200},
				Payload: models.BindingPayload{Binding: models.AccessBinding{Kind: models.KindRoleBinding, Name: "view", Namespace: "ns1"}}},
			{ID: "subject:User::alice", Kind: models.NodeKindSubject, Label: "alice & <co>", Position: &models.Position{X: 0, Y: 380},
				Payload: models.ExplicitSubject{Subject: models.Subject{Kind: models.SubjectKindUser, Name: "alice"}}},
			{ID: "role:ClusterRole::agg", Kind: models.NodeKindClusterRole, Label: "agg", Position: &models.Position{X: 400, Y: 0}},
		},
		Edges: []models.GraphEdge{
			{ID: "e1", Source: "role:Role:ns1:viewer", Target: "binding:RoleBinding:ns1:view", Kind: models.EdgeKindGrants},
			{ID: "e2", Source: "binding:RoleBinding:ns1:view", Target: "subject:User::alice", Kind: models.EdgeKindBinds},
			{ID: "e3", Source: "role:ClusterRole::agg", Target: "role:Role:ns1:viewer", Kind: models.EdgeKindAggregates},
			{ID: "dangling", Source: "missing", Target: "subject:User::alice", Kind: models.EdgeKindBinds},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("DOT")
	require.NoError(t, err)
	assert.Equal(t, FormatDOT, f)
	assert.Equal(t, "text/vnd.graphviz", f.ContentType())

	_, err = ParseFormat("png")
	assert.Error(t, err)
}

func TestGraphToJSON(t *testing.T) {
	data, err := GraphToJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = GraphToJSON(sampleGraph())
	require.NoError(t, err)
	var back models.RBACGraph
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Len(t, back.Nodes, 4)
	_, ok := back.Nodes[2].Payload.(models.ExplicitSubject)
	assert.True(t, ok)
}

func TestGraphToSVG(t *testing.T) {
	data, err := GraphToSVG(nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	data, err = GraphToSVG(sampleGraph())
	require.NoError(t, err)
	svg := string(data)
	assert.Equal(t, 4, strings.Count(svg, `<rect class="node"`))
	assert.Equal(t, 3, strings.Count(svg, `<path class="edge`))
	assert.Contains(t, svg, "alice &amp; &lt;co&gt;")
	assert.Contains(t, svg, `class="edge aggregates"`)
}

func TestGraphToDrawioXML(t *testing.T) {
	data, err := GraphToDrawioXML(sampleGraph())
	require.NoError(t, err)

	var mx mxfile
	require.NoError(t, xml.Unmarshal(data, &mx))
	cells := mx.Diagram.MxGraphModel.Root.Cells
	var vertices, edges int
	for _, c := range cells {
		if c.Vertex == "1" {
			vertices++
		}
		if c.Edge == "1" {
			edges++
		}
	}
	assert.Equal(t, 4, vertices)
	assert.Equal(t, 3, edges)

	again, err := GraphToDrawioXML(sampleGraph())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestGraphToDrawioXMLEmpty(t *testing.T) {
	data, err := GraphToDrawioXML(&models.RBACGraph{})
	require.NoError(t, err)
	assert.Contains(t, string(data), "mxfile")
}

func TestGraphToMermaid(t *testing.T) {
	assert.Contains(t, GraphToMermaid(nil), "No access relationships")

	m := GraphToMermaid(sampleGraph())
	assert.True(t, strings.HasPrefix(m, "flowchart TB"))
	assert.Contains(t, m, `role_Role_ns1_viewer["role: viewer"]`)
	assert.Contains(t, m, `binding_RoleBinding_ns1_view -->|binds| subject_User_alice`)
	assert.Contains(t, m, `-.->|aggregates|`)
	assert.NotContains(t, m, "missing")
}

func TestMermaidIDCollisions(t *testing.T) {
	g := &models.RBACGraph{Nodes: []models.GraphNode{
		{ID: "a:b", Kind: models.NodeKindRole, Label: "x"},
		{ID: "a/b", Kind: models.NodeKindRole, Label: "y"},
	}}
	m := GraphToMermaid(g)
	assert.Contains(t, m, `a_b["role: x"]`)
	assert.Contains(t, m, `a_b_2["role: y"]`)
}

func TestGenerateDrawioURL(t *testing.T) {
	u, err := GenerateDrawioURL("")
	require.NoError(t, err)
	assert.Equal(t, drawioBaseURL, u)

	u, err = GenerateDrawioURL(GraphToMermaid(sampleGraph()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, drawioBaseURL+"?"))
	assert.Contains(t, u, "#create=")
}

func TestGraphToDOT(t *testing.T) {
	out := GraphToDOT(sampleGraph())
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "subgraph cluster")
	assert.Contains(t, out, "doubleoctagon")
	assert.Contains(t, out, "aggregates")
	assert.NotContains(t, out, "missing")

	assert.Contains(t, GraphToDOT(nil), "digraph")
}

func TestExport(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatSVG, FormatDrawio, FormatMermaid, FormatDOT} {
		data, err := Export(sampleGraph(), f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, data, f)
	}
	_, err := Export(sampleGraph(), Format("pdf"))
	assert.Error(t, err)
}
