// Package cli implements the rbacgraph command line: render access graphs from
// manifests or a live cluster without running the server.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/k8s"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/logger"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/snapshot"
)

// Version is reported by --version.
var Version = "dev"

type app struct {
	kubeconfig string
	context    string
	timeout    time.Duration
	qps        float64
	verbose    bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	log    *zap.Logger

	// source overrides the cluster loader, for tests.
	source func(ctx context.Context, includeWorkloads bool) (*models.Snapshot, error)
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut, log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "rbacgraph",
		Short:         "Visualize Kubernetes RBAC as an access graph",
		Long:          "rbacgraph turns roles, bindings and pods into a laid-out graph of who can do what, from manifests or a live cluster.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !a.verbose {
				return nil
			}
			l, err := logger.New(logger.Options{Level: "debug"})
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	cmd.PersistentFlags().StringVar(&a.context, "context", "", "kubeconfig context for --live")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 60*time.Second, "timeout for reading a live cluster")
	cmd.PersistentFlags().Float64Var(&a.qps, "qps", 20, "max list calls per second against the API server; 0 = unlimited")
	cmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "log progress to stderr")

	cmd.AddCommand(
		newRenderCmd(a),
		newSnapshotCmd(a),
	)
	return cmd
}

// loadSnapshot reads a snapshot from the cluster when live is set, otherwise
// from the given manifest paths ("-" or none means stdin).
func (a *app) loadSnapshot(ctx context.Context, live, includeWorkloads bool, paths []string) (*models.Snapshot, error) {
	if live {
		if len(paths) > 0 {
			return nil, fmt.Errorf("--live does not take file arguments")
		}
		return a.loadLive(ctx, includeWorkloads)
	}

	r, err := a.openInputs(paths)
	if err != nil {
		return nil, err
	}
	res, err := snapshot.Decode(r)
	if err != nil {
		return nil, err
	}
	for _, s := range res.Skipped {
		a.log.Debug("skipped document", zap.String("document", s))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(a.stderr, "skipped %d non-RBAC document(s)\n", len(res.Skipped))
	}
	return res.Snapshot, nil
}

func (a *app) loadLive(ctx context.Context, includeWorkloads bool) (*models.Snapshot, error) {
	if a.source != nil {
		return a.source(ctx, includeWorkloads)
	}
	client, err := k8s.NewClient(a.kubeconfig, a.context)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	client.SetTimeout(a.timeout)
	if a.qps > 0 {
		client.SetLimiter(rate.NewLimiter(rate.Limit(a.qps), int(a.qps)+1))
	}
	loader := k8s.NewLoader(client, k8s.LoaderOptions{IncludeWorkloads: includeWorkloads}, a.log)
	return loader.Load(ctx)
}

// openInputs joins the manifest files into one YAML stream. Directories
// contribute their .yaml, .yml and .json files in name order.
func (a *app) openInputs(paths []string) (io.Reader, error) {
	if len(paths) == 0 || (len(paths) == 1 && paths[0] == "-") {
		return a.stdin, nil
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var inDir []string
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".yaml", ".yml", ".json":
				if !e.IsDir() {
					inDir = append(inDir, filepath.Join(p, e.Name()))
				}
			}
		}
		sort.Strings(inDir)
		files = append(files, inDir...)
	}

	readers := make([]io.Reader, 0, 2*len(files))
	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			readers = append(readers, strings.NewReader("\n---\n"))
		}
		readers = append(readers, strings.NewReader(string(data)))
	}
	return io.MultiReader(readers...), nil
}

// writeOutput writes data to path, or to stdout when path is empty or "-".
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
