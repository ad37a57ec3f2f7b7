package graphexport

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

const drawioBaseURL = "https://app.diagrams.net/"

var (
	unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	repeatedUnder = regexp.MustCompile(`_+`)
)

// sanitizeID makes a string safe for Mermaid node IDs. Node ids carry kind and
// namespace prefixes, so collisions after sanitizing are resolved by the caller.
func sanitizeID(s string) string {
	s = unsafeIDChars.ReplaceAllString(s, "_")
	s = repeatedUnder.ReplaceAllString(s, "_")
	if s == "" {
		s = "node"
	}
	return s
}

// GraphToMermaid converts a graph to Mermaid flowchart syntax.
func GraphToMermaid(g *models.RBACGraph) string {
	if g == nil || len(g.Nodes) == 0 {
		return "flowchart TB\n  empty[No access relationships]"
	}

	lines := []string{"flowchart TB"}
	used := make(map[string]bool, len(g.Nodes))
	safe := make(map[string]string, len(g.Nodes))
	for _, node := range g.Nodes {
		id := sanitizeID(node.ID)
		for base, i := id, 2; used[id]; i++ {
			id = base + "_" + strconv.Itoa(i)
		}
		used[id] = true
		safe[node.ID] = id

		label := strings.ReplaceAll(truncate(node.Label, 40), `"`, "'")
		lines = append(lines, `  `+id+shape(node.Kind, string(node.Kind)+": "+label))
	}

	for _, edge := range g.Edges {
		from, ok1 := safe[edge.Source]
		to, ok2 := safe[edge.Target]
		if !ok1 || !ok2 {
			continue
		}
		arrow := " -->"
		if edge.Kind == models.EdgeKindAggregates {
			arrow = " -.->"
		}
		lines = append(lines, `  `+from+arrow+`|`+string(edge.Kind)+`| `+to)
	}
	return strings.Join(lines, "\n")
}

func shape(kind models.NodeKind, label string) string {
	switch kind {
	case models.NodeKindBinding:
		return `{{"` + label + `"}}`
	case models.NodeKindSubject:
		return `(["` + label + `"])`
	case models.NodeKindWorkload:
		return `[/"` + label + `"/]`
	}
	return `["` + label + `"]`
}

// createObj is the draw.io JSON structure for create= hash.
type createObj struct {
	Type       string `json:"type"`
	Compressed bool   `json:"compressed"`
	Data       string `json:"data"`
}

// GenerateDrawioURL creates a draw.io URL that opens the editor with the given Mermaid content.
func GenerateDrawioURL(mermaid string) (string, error) {
	if mermaid == "" {
		return drawioBaseURL, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write([]byte(url.QueryEscape(mermaid))); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	obj := createObj{
		Type:       "mermaid",
		Compressed: true,
		Data:       base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return drawioBaseURL + "?grid=0&pv=0&border=10&edit=_blank#create=" + url.QueryEscape(string(jsonBytes)), nil
}
