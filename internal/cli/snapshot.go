package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

type snapshotOptions struct {
	live      bool
	workloads bool
	format    string
	output    string
}

func newSnapshotCmd(a *app) *cobra.Command {
	o := &snapshotOptions{}
	cmd := &cobra.Command{
		Use:   "snapshot [FILE|DIR|-]...",
		Short: "Capture RBAC objects as a snapshot document",
		Long:  "snapshot writes the roles, bindings and pods of a cluster or a set of manifests as one snapshot document, ready to upload or render later.",
		Example: `  rbacgraph snapshot --live -o prod.json
  rbacgraph snapshot manifests/ --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSnapshot(cmd.Context(), o, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.live, "live", false, "read RBAC objects from the current cluster")
	f.BoolVar(&o.workloads, "workloads", true, "include pods when reading a cluster")
	f.StringVar(&o.format, "format", "json", "output format: json or yaml")
	f.StringVarP(&o.output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func (a *app) runSnapshot(ctx context.Context, o *snapshotOptions, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format := strings.ToLower(o.format)
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported snapshot format %q", o.format)
	}

	snap, err := a.loadSnapshot(ctx, o.live, o.workloads, args)
	if err != nil {
		return err
	}
	data, err := encodeSnapshot(snap, format)
	if err != nil {
		return err
	}
	if err := a.writeOutput(o.output, data); err != nil {
		return err
	}
	if o.output != "" && o.output != "-" {
		c := snap.Counts()
		fmt.Fprintf(a.stderr, "wrote %d roles, %d bindings and %d workloads to %s\n",
			c["clusterRoles"]+c["roles"], c["clusterRoleBindings"]+c["roleBindings"], c["workloads"], o.output)
	}
	return nil
}

func encodeSnapshot(snap *models.Snapshot, format string) ([]byte, error) {
	if format == "yaml" {
		return yaml.Marshal(snap)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
