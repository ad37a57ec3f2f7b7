package models

import (
	"encoding/json"
	"fmt"
)

// NodeKind is the kind of a graph node.
type NodeKind string

const (
	NodeKindClusterRole NodeKind = "cluster-role"
	NodeKindRole        NodeKind = "role"
	NodeKindBinding     NodeKind = "binding"
	NodeKindSubject     NodeKind = "subject"
	NodeKindWorkload    NodeKind = "workload"
)

// EdgeKind is the relationship an edge represents.
type EdgeKind string

const (
	EdgeKindGrants     EdgeKind = "grants"     // role -> binding
	EdgeKindBinds      EdgeKind = "binds"      // binding (or role when bindings are hidden) -> subject
	EdgeKindRunsAs     EdgeKind = "runs-as"    // subject -> workload
	EdgeKindAggregates EdgeKind = "aggregates" // aggregating cluster role -> aggregated cluster role
)

// Position is the top-left corner of a node's footprint.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphNode is a node of the access graph.
type GraphNode struct {
	ID       string      `json:"id"`
	Kind     NodeKind    `json:"kind"`
	Label    string      `json:"label"`
	Position *Position   `json:"position,omitempty"`
	Payload  NodePayload `json:"-"`
}

// GraphEdge is a directed edge between two nodes.
type GraphEdge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
}

// NodePayload is the resource data carried by a node. The set of payload types is closed.
type NodePayload interface {
	PayloadType() string
}

// Payload type discriminators.
const (
	PayloadRole            = "role"
	PayloadBinding         = "binding"
	PayloadExplicitSubject = "explicit-subject"
	PayloadImplicitSubject = "implicit-subject"
	PayloadWorkload        = "workload"
)

// RolePayload carries a Role or ClusterRole.
type RolePayload struct {
	Role AccessRole `json:"role"`
}

func (RolePayload) PayloadType() string { return PayloadRole }

// BindingPayload carries a RoleBinding or ClusterRoleBinding.
type BindingPayload struct {
	Binding AccessBinding `json:"binding"`
}

func (BindingPayload) PayloadType() string { return PayloadBinding }

// ExplicitSubject is a subject named by at least one binding.
type ExplicitSubject struct {
	Subject    Subject  `json:"subject"`
	BindingIDs []string `json:"bindingIds"`
}

func (ExplicitSubject) PayloadType() string { return PayloadExplicitSubject }

// ImplicitSubject is a service account synthesized because a workload runs as it
// and no visible binding names it.
type ImplicitSubject struct {
	Subject Subject `json:"subject"`
	Reason  string  `json:"reason"`
}

func (ImplicitSubject) PayloadType() string { return PayloadImplicitSubject }

// WorkloadPayload carries a workload instance.
type WorkloadPayload struct {
	Workload WorkloadInstance `json:"workload"`
}

func (WorkloadPayload) PayloadType() string { return PayloadWorkload }

type graphNodeJSON struct {
	ID          string          `json:"id"`
	Kind        NodeKind        `json:"kind"`
	Label       string          `json:"label"`
	Position    *Position       `json:"position,omitempty"`
	PayloadType string          `json:"payloadType,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON writes the payload together with its type discriminator.
func (n GraphNode) MarshalJSON() ([]byte, error) {
	out := graphNodeJSON{ID: n.ID, Kind: n.Kind, Label: n.Label, Position: n.Position}
	if n.Payload != nil {
		data, err := json.Marshal(n.Payload)
		if err != nil {
			return nil, err
		}
		out.PayloadType = n.Payload.PayloadType()
		out.Payload = data
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the concrete payload type from the discriminator.
func (n *GraphNode) UnmarshalJSON(data []byte) error {
	var in graphNodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	n.ID, n.Kind, n.Label, n.Position = in.ID, in.Kind, in.Label, in.Position
	n.Payload = nil
	if in.PayloadType == "" {
		return nil
	}
	payload, err := decodePayload(in.PayloadType, in.Payload)
	if err != nil {
		return fmt.Errorf("node %s: %w", in.ID, err)
	}
	n.Payload = payload
	return nil
}

func decodePayload(kind string, data json.RawMessage) (NodePayload, error) {
	switch kind {
	case PayloadRole:
		var p RolePayload
		err := json.Unmarshal(data, &p)
		return p, err
	case PayloadBinding:
		var p BindingPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case PayloadExplicitSubject:
		var p ExplicitSubject
		err := json.Unmarshal(data, &p)
		return p, err
	case PayloadImplicitSubject:
		var p ImplicitSubject
		err := json.Unmarshal(data, &p)
		return p, err
	case PayloadWorkload:
		var p WorkloadPayload
		err := json.Unmarshal(data, &p)
		return p, err
	}
	return nil, fmt.Errorf("unknown payload type %q", kind)
}

// RBACGraph is the positioned access graph returned to the presentation layer.
type RBACGraph struct {
	SchemaVersion string        `json:"schemaVersion"`
	Nodes         []GraphNode   `json:"nodes"`
	Edges         []GraphEdge   `json:"edges"`
	Metadata      GraphMetadata `json:"metadata"`
}

// GraphMetadata summarises a build. It carries no timestamps so identical inputs
// produce identical bytes.
type GraphMetadata struct {
	SnapshotDigest string       `json:"snapshotDigest,omitempty"`
	LayoutSeed     string       `json:"layoutSeed"`
	NodeCount      int          `json:"nodeCount"`
	EdgeCount      int          `json:"edgeCount"`
	OrphanCount    int          `json:"orphanCount"`
	ReversedEdges  []string     `json:"reversedEdges,omitempty"`
	Width          float64      `json:"width"`
	Height         float64      `json:"height"`
	Diagnostics    []Diagnostic `json:"diagnostics,omitempty"`
}

// Node returns the node with the given id.
func (g *RBACGraph) Node(id string) (GraphNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}
