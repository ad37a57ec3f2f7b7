package k8s

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/metrics"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/tracing"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/snapshot"
)

const defaultPageSize = 500

// LoaderOptions controls what a Loader collects.
type LoaderOptions struct {
	// IncludeWorkloads lists pods so workloads appear in the graph.
	IncludeWorkloads bool
	// PageSize is the list chunk size; 0 uses 500.
	PageSize int64
}

// Loader collects a snapshot from a live cluster.
type Loader struct {
	client *Client
	opts   LoaderOptions
	log    *zap.Logger
}

// NewLoader creates a loader over client.
func NewLoader(client *Client, opts LoaderOptions, log *zap.Logger) *Loader {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{client: client, opts: opts, log: log}
}

// Load lists cluster roles, roles, both binding kinds and optionally pods, all
// namespaces, concurrently. A forbidden pod list leaves workloads out of the
// snapshot instead of failing; any other list error fails the load. While the
// cluster keeps failing, Load returns ErrCircuitOpen without calling it.
func (l *Loader) Load(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()
	defer func() { metrics.LiveSnapshotDurationSeconds.Observe(time.Since(start).Seconds()) }()

	ctx, span := tracing.StartSpanWithAttributes(ctx, "k8s.LoadSnapshot",
		attribute.String("k8s.context", l.client.Context),
		attribute.Bool("k8s.include_workloads", l.opts.IncludeWorkloads),
	)
	defer span.End()

	ctx, cancel := l.client.withTimeout(ctx)
	defer cancel()

	var objs *snapshot.Objects
	collect := func(ctx context.Context) error {
		var err error
		objs, err = l.collect(ctx)
		return err
	}
	var err error
	if l.client.breaker != nil {
		err = l.client.breaker.Execute(ctx, collect)
	} else {
		err = collect(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	snap := snapshot.FromObjects(objs)
	l.log.Info("collected live snapshot",
		zap.String("context", l.client.Context),
		zap.Any("counts", snap.Counts()),
		zap.Duration("duration", time.Since(start)),
	)
	return snap, nil
}

func (l *Loader) collect(ctx context.Context) (*snapshot.Objects, error) {
	cs := l.client.Clientset
	var objs snapshot.Objects
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := listAll(gctx, l, cs.RbacV1().ClusterRoles().List,
			func(list *rbacv1.ClusterRoleList) ([]rbacv1.ClusterRole, string) { return list.Items, list.Continue })
		if err != nil {
			return fmt.Errorf("failed to list cluster roles: %w", err)
		}
		objs.ClusterRoles = items
		return nil
	})
	g.Go(func() error {
		items, err := listAll(gctx, l, cs.RbacV1().Roles(metav1.NamespaceAll).List,
			func(list *rbacv1.RoleList) ([]rbacv1.Role, string) { return list.Items, list.Continue })
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}
		objs.Roles = items
		return nil
	})
	g.Go(func() error {
		items, err := listAll(gctx, l, cs.RbacV1().ClusterRoleBindings().List,
			func(list *rbacv1.ClusterRoleBindingList) ([]rbacv1.ClusterRoleBinding, string) { return list.Items, list.Continue })
		if err != nil {
			return fmt.Errorf("failed to list cluster role bindings: %w", err)
		}
		objs.ClusterRoleBindings = items
		return nil
	})
	g.Go(func() error {
		items, err := listAll(gctx, l, cs.RbacV1().RoleBindings(metav1.NamespaceAll).List,
			func(list *rbacv1.RoleBindingList) ([]rbacv1.RoleBinding, string) { return list.Items, list.Continue })
		if err != nil {
			return fmt.Errorf("failed to list role bindings: %w", err)
		}
		objs.RoleBindings = items
		return nil
	})
	if l.opts.IncludeWorkloads {
		g.Go(func() error {
			items, err := listAll(gctx, l, cs.CoreV1().Pods(metav1.NamespaceAll).List,
				func(list *corev1.PodList) ([]corev1.Pod, string) { return list.Items, list.Continue })
			if apierrors.IsForbidden(err) {
				l.log.Warn("pod list forbidden, snapshot has no workloads", zap.Error(err))
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to list pods: %w", err)
			}
			if items == nil {
				items = []corev1.Pod{}
			}
			objs.Pods = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &objs, nil
}

// listAll pages through a list call, waiting on the rate limiter and retrying
// each page on 5xx/429.
func listAll[L any, T any](
	ctx context.Context,
	l *Loader,
	list func(context.Context, metav1.ListOptions) (L, error),
	page func(L) ([]T, string),
) ([]T, error) {
	var out []T
	opts := metav1.ListOptions{Limit: l.opts.PageSize}
	for {
		if err := l.client.waitRateLimit(ctx); err != nil {
			return nil, err
		}
		result, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (L, error) {
			return list(ctx, opts)
		})
		if err != nil {
			return nil, err
		}
		items, next := page(result)
		out = append(out, items...)
		if next == "" {
			return out, nil
		}
		opts.Continue = next
	}
}
