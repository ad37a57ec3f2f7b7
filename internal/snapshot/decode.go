package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// ErrEmptyInput is returned when a manifest stream holds no documents.
var ErrEmptyInput = errors.New("no documents in input")

// Result is a decoded snapshot plus the documents that were skipped.
type Result struct {
	Snapshot *models.Snapshot
	Skipped  []string
}

type typeMeta struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Metadata   struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
	} `json:"metadata"`

	// Present only in native snapshot documents.
	ClusterRoles        []interface{} `json:"clusterRoles"`
	Roles               []interface{} `json:"roles"`
	ClusterRoleBindings []interface{} `json:"clusterRoleBindings"`
	RoleBindings        []interface{} `json:"roleBindings"`
}

func (t *typeMeta) isNativeSnapshot() bool {
	return t.Kind == "" && (t.ClusterRoles != nil || t.Roles != nil || t.ClusterRoleBindings != nil || t.RoleBindings != nil)
}

// listItems holds the items of a List as JSON; sigs.k8s.io/yaml converts YAML
// to JSON before decoding.
type listItems struct {
	Items []json.RawMessage `json:"items"`
}

type decoder struct {
	objs      Objects
	native    []*models.Snapshot
	skipped   []string
	documents int
}

// Decode reads a stream of YAML or JSON documents. Each document is either a
// native snapshot, an RBAC object, a Pod, or a List of those. Other kinds are
// skipped and reported in Result.Skipped.
func Decode(r io.Reader) (*Result, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(r))
	d := &decoder{}
	for {
		doc, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read document %d: %w", d.documents+1, err)
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		d.documents++
		if err := d.decodeDocument(doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", d.documents, err)
		}
	}
	if d.documents == 0 {
		return nil, ErrEmptyInput
	}
	return &Result{Snapshot: d.merge(), Skipped: d.skipped}, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (*Result, error) {
	return Decode(bytes.NewReader(data))
}

func (d *decoder) decodeDocument(doc []byte) error {
	var meta typeMeta
	if err := yaml.Unmarshal(doc, &meta); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}
	if meta.isNativeSnapshot() {
		var snap models.Snapshot
		if err := yaml.Unmarshal(doc, &snap); err != nil {
			return fmt.Errorf("failed to parse snapshot: %w", err)
		}
		d.native = append(d.native, &snap)
		return nil
	}
	if meta.Kind == "" {
		d.skipped = append(d.skipped, "document without kind")
		return nil
	}
	if meta.Kind == "List" || strings.HasSuffix(meta.Kind, "List") {
		var list listItems
		if err := yaml.Unmarshal(doc, &list); err != nil {
			return fmt.Errorf("failed to parse %s: %w", meta.Kind, err)
		}
		for _, item := range list.Items {
			if err := d.decodeDocument(item); err != nil {
				return err
			}
		}
		return nil
	}
	return d.decodeObject(meta, doc)
}

func (d *decoder) decodeObject(meta typeMeta, doc []byte) error {
	group := meta.APIVersion
	if i := strings.Index(group, "/"); i >= 0 {
		group = group[:i]
	}
	switch {
	case meta.Kind == "Pod" && (meta.APIVersion == "v1" || meta.APIVersion == ""):
		var pod corev1.Pod
		if err := yaml.Unmarshal(doc, &pod); err != nil {
			return fmt.Errorf("failed to parse Pod %s: %w", meta.Metadata.Name, err)
		}
		d.objs.Pods = append(d.objs.Pods, pod)
	case group != rbacv1.GroupName && meta.APIVersion != "":
		d.skip(meta)
	case meta.Kind == models.KindClusterRole:
		var cr rbacv1.ClusterRole
		if err := yaml.Unmarshal(doc, &cr); err != nil {
			return fmt.Errorf("failed to parse ClusterRole %s: %w", meta.Metadata.Name, err)
		}
		d.objs.ClusterRoles = append(d.objs.ClusterRoles, cr)
	case meta.Kind == models.KindRole:
		var role rbacv1.Role
		if err := yaml.Unmarshal(doc, &role); err != nil {
			return fmt.Errorf("failed to parse Role %s: %w", meta.Metadata.Name, err)
		}
		d.objs.Roles = append(d.objs.Roles, role)
	case meta.Kind == models.KindClusterRoleBinding:
		var crb rbacv1.ClusterRoleBinding
		if err := yaml.Unmarshal(doc, &crb); err != nil {
			return fmt.Errorf("failed to parse ClusterRoleBinding %s: %w", meta.Metadata.Name, err)
		}
		d.objs.ClusterRoleBindings = append(d.objs.ClusterRoleBindings, crb)
	case meta.Kind == models.KindRoleBinding:
		var rb rbacv1.RoleBinding
		if err := yaml.Unmarshal(doc, &rb); err != nil {
			return fmt.Errorf("failed to parse RoleBinding %s: %w", meta.Metadata.Name, err)
		}
		d.objs.RoleBindings = append(d.objs.RoleBindings, rb)
	default:
		d.skip(meta)
	}
	return nil
}

func (d *decoder) skip(meta typeMeta) {
	name := meta.Kind
	if meta.Metadata.Namespace != "" {
		name += " " + meta.Metadata.Namespace + "/" + meta.Metadata.Name
	} else if meta.Metadata.Name != "" {
		name += " " + meta.Metadata.Name
	}
	d.skipped = append(d.skipped, name)
}

// merge combines object documents with any native snapshots, in input order.
func (d *decoder) merge() *models.Snapshot {
	snap := FromObjects(&d.objs)
	for _, n := range d.native {
		snap.ClusterRoles = append(snap.ClusterRoles, n.ClusterRoles...)
		snap.Roles = append(snap.Roles, n.Roles...)
		snap.ClusterRoleBindings = append(snap.ClusterRoleBindings, n.ClusterRoleBindings...)
		snap.RoleBindings = append(snap.RoleBindings, n.RoleBindings...)
		if n.Workloads != nil {
			if snap.Workloads == nil {
				snap.Workloads = []models.WorkloadInstance{}
			}
			snap.Workloads = append(snap.Workloads, n.Workloads...)
		}
	}
	return snap
}
