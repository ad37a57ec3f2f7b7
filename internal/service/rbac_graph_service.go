package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphcache"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/graphexport"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/logger"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/metrics"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/tracing"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/validate"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/rbacgraph"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/repository"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/snapshot"
)

// Snapshot sources.
const (
	SourceUpload   = "upload"
	SourceManifest = "manifest"
	SourceLive     = "live"
)

// Snapshot events broadcast to WebSocket clients.
const (
	EventSnapshotCreated = "snapshot_created"
	EventSnapshotDeleted = "snapshot_deleted"
)

// GraphRequest is the filter and layout state of one graph request.
type GraphRequest struct {
	Filter rbacgraph.FilterState `json:"filter"`
	Layout layout.Options        `json:"layout"`
}

// DefaultGraphRequest returns the default filter state and layout options.
func DefaultGraphRequest() GraphRequest {
	return GraphRequest{Filter: rbacgraph.DefaultFilterState(), Layout: layout.DefaultOptions()}
}

// SnapshotSource produces a snapshot from outside the process, e.g. a live cluster.
type SnapshotSource interface {
	Load(ctx context.Context) (*models.Snapshot, error)
}

// Broadcaster is notified when the set of stored snapshots changes.
type Broadcaster interface {
	BroadcastSnapshotEvent(event, snapshotID string)
}

// RBACGraphService builds positioned access graphs and manages stored snapshots.
// Graphs returned by the service may be shared with other callers and must not be mutated.
type RBACGraphService interface {
	BuildGraph(ctx context.Context, snap *models.Snapshot, req GraphRequest) (*models.RBACGraph, error)
	GetGraph(ctx context.Context, snapshotID string, req GraphRequest) (*models.RBACGraph, error)
	SelectNode(ctx context.Context, snapshotID, nodeID string, req GraphRequest) (*models.GraphNode, error)
	ExportGraph(ctx context.Context, snapshotID string, req GraphRequest, format graphexport.Format) ([]byte, error)

	CreateSnapshot(ctx context.Context, name, source string, snap *models.Snapshot) (*models.SnapshotSummary, error)
	ImportManifests(ctx context.Context, name string, r io.Reader) (*models.SnapshotSummary, []string, error)
	CaptureLive(ctx context.Context, name string) (*models.SnapshotSummary, error)
	GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]models.SnapshotSummary, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// Options configures the service.
type Options struct {
	// MaxNodes rejects graphs with more nodes before layout; 0 means unlimited.
	MaxNodes int
}

type rbacGraphService struct {
	repo  repository.SnapshotRepository
	live  SnapshotSource
	cache *graphcache.Cache
	group singleflight.Group
	opts  Options
	log   *zap.Logger

	broadcaster Broadcaster
}

// NewRBACGraphService creates the service. repo and live may be nil: without a
// repository only inline builds work, without a live source CaptureLive fails
// with ErrLiveClusterUnavailable.
func NewRBACGraphService(repo repository.SnapshotRepository, live SnapshotSource, cache *graphcache.Cache, opts Options, log *zap.Logger) RBACGraphService {
	if cache == nil {
		cache = graphcache.New(0, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &rbacGraphService{repo: repo, live: live, cache: cache, opts: opts, log: log}
}

// SetBroadcaster wires snapshot change notifications. svc must come from NewRBACGraphService.
func SetBroadcaster(svc RBACGraphService, b Broadcaster) {
	if s, ok := svc.(*rbacGraphService); ok {
		s.broadcaster = b
	}
}

func validateRequest(req GraphRequest) error {
	f := req.Filter
	if _, err := rbacgraph.ParseFilterType(string(f.FilterType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if !validate.FilterValue(f.FilterValue) || !validate.FilterValue(f.SearchTerm) {
		return fmt.Errorf("%w: value too long or contains control characters", ErrInvalidFilter)
	}
	if f.NamespaceScope != "" && !validate.Namespace(f.NamespaceScope) {
		return fmt.Errorf("%w: invalid namespace %q", ErrInvalidFilter, f.NamespaceScope)
	}
	switch f.IdentityKind {
	case "", models.SubjectKindUser, models.SubjectKindGroup, models.SubjectKindServiceAccount:
	default:
		return fmt.Errorf("%w: unknown identity kind %q", ErrInvalidFilter, f.IdentityKind)
	}
	return nil
}

// BuildGraph runs index, filter, build and layout for snap. Results are memoized
// by snapshot digest, filter state and layout options; concurrent identical
// requests share one computation.
func (s *rbacGraphService) BuildGraph(ctx context.Context, snap *models.Snapshot, req GraphRequest) (*models.RBACGraph, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	digest := snap.Digest()
	key := graphcache.Key(digest, req.Filter.Key(), req.Layout.Key())
	if g, ok := s.cache.Get(key); ok {
		return g, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		g, err := s.pipeline(ctx, snap, digest, req)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, g)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.RBACGraph), nil
}

func (s *rbacGraphService) pipeline(ctx context.Context, snap *models.Snapshot, digest string, req GraphRequest) (*models.RBACGraph, error) {
	log := logger.WithRequest(ctx, s.log)
	ctx, span := tracing.StartSpanWithAttributes(ctx, "rbacgraph.Pipeline",
		attribute.String("snapshot.digest", digest),
		attribute.String("filter.type", string(req.Filter.FilterType)),
	)
	defer span.End()

	start := time.Now()
	_, buildSpan := tracing.StartSpan(ctx, "rbacgraph.Build")
	result := rbacgraph.BuildFromSnapshot(snap, req.Filter)
	buildSpan.SetAttributes(
		attribute.Int("graph.nodes", len(result.Graph.Nodes)),
		attribute.Int("graph.edges", len(result.Graph.Edges)),
	)
	buildSpan.End()
	metrics.GraphBuildDurationSeconds.Observe(time.Since(start).Seconds())

	for _, d := range result.Diagnostics {
		metrics.GraphDiagnosticsTotal.WithLabelValues(d.Code).Inc()
		log.Warn("graph build diagnostic",
			zap.String("code", d.Code),
			zap.String("resource", d.Resource),
			zap.String("message", d.Message),
		)
	}

	if s.opts.MaxNodes > 0 && len(result.Graph.Nodes) > s.opts.MaxNodes {
		err := fmt.Errorf("%w: %d nodes exceeds limit of %d", ErrGraphTooLarge, len(result.Graph.Nodes), s.opts.MaxNodes)
		span.RecordError(err)
		return nil, err
	}

	kinds := make(map[models.NodeKind]int)
	for _, n := range result.Graph.Nodes {
		kinds[n.Kind]++
	}
	for kind, count := range kinds {
		metrics.GraphNodes.WithLabelValues(string(kind)).Observe(float64(count))
	}

	start = time.Now()
	_, layoutSpan := tracing.StartSpan(ctx, "layout.Apply")
	positioned := layout.Apply(result.Graph.Nodes, result.Graph.Edges, req.Layout)
	layoutSpan.SetAttributes(
		attribute.Int("layout.orphans", len(positioned.Orphans)),
		attribute.Int("layout.reversed_edges", len(positioned.ReversedEdges)),
	)
	layoutSpan.End()
	metrics.GraphLayoutDurationSeconds.Observe(time.Since(start).Seconds())

	g := result.Graph.ToRBACGraph(result.Diagnostics)
	g.Nodes = positioned.Nodes
	g.Metadata.SnapshotDigest = digest
	g.Metadata.OrphanCount = len(positioned.Orphans)
	g.Metadata.ReversedEdges = positioned.ReversedEdges
	g.Metadata.Width = positioned.Width
	g.Metadata.Height = positioned.Height

	log.Debug("graph built",
		zap.Int("nodes", g.Metadata.NodeCount),
		zap.Int("edges", g.Metadata.EdgeCount),
		zap.Int("orphans", g.Metadata.OrphanCount),
		zap.Int("diagnostics", len(result.Diagnostics)),
	)
	return &g, nil
}

// GetGraph builds the graph of a stored snapshot.
func (s *rbacGraphService) GetGraph(ctx context.Context, snapshotID string, req GraphRequest) (*models.RBACGraph, error) {
	snap, err := s.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	return s.BuildGraph(ctx, snap, req)
}

// SelectNode returns the node with nodeID from the graph of a stored snapshot, payload unmodified.
func (s *rbacGraphService) SelectNode(ctx context.Context, snapshotID, nodeID string, req GraphRequest) (*models.GraphNode, error) {
	g, err := s.GetGraph(ctx, snapshotID, req)
	if err != nil {
		return nil, err
	}
	n, ok := g.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return &n, nil
}

// ExportGraph renders the graph of a stored snapshot in format.
func (s *rbacGraphService) ExportGraph(ctx context.Context, snapshotID string, req GraphRequest, format graphexport.Format) ([]byte, error) {
	g, err := s.GetGraph(ctx, snapshotID, req)
	if err != nil {
		return nil, err
	}
	return graphexport.Export(g, format)
}

func (s *rbacGraphService) requireRepo() error {
	if s.repo == nil {
		return errors.New("snapshot storage is not configured")
	}
	return nil
}

// CreateSnapshot stores snap under name.
func (s *rbacGraphService) CreateSnapshot(ctx context.Context, name, source string, snap *models.Snapshot) (*models.SnapshotSummary, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidSnapshot)
	}
	if name == "" {
		name = source + "-" + time.Now().UTC().Format("20060102-150405")
	}
	if !validate.SnapshotName(name) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrInvalidSnapshot, name)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	rec := &models.SnapshotRecord{
		Name:   name,
		Source: source,
		Digest: snap.Digest(),
		Data:   string(data),
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	logger.WithRequest(ctx, s.log).Info("snapshot stored",
		zap.String("snapshot_id", rec.ID),
		zap.String("source", source),
		zap.Any("counts", snap.Counts()),
	)
	s.notify(EventSnapshotCreated, rec.ID)
	return summarize(rec, snap), nil
}

// ImportManifests decodes Kubernetes manifests and stores the result. The
// returned strings name skipped documents and risky rules.
func (s *rbacGraphService) ImportManifests(ctx context.Context, name string, r io.Reader) (*models.SnapshotSummary, []string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifests: %w", err)
	}
	res, err := snapshot.DecodeBytes(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	warnings := make([]string, 0, len(res.Skipped))
	for _, sk := range res.Skipped {
		warnings = append(warnings, "skipped "+sk)
	}
	warnings = append(warnings, validate.ManifestWarnings(string(data))...)

	summary, err := s.CreateSnapshot(ctx, name, SourceManifest, res.Snapshot)
	if err != nil {
		return nil, nil, err
	}
	return summary, warnings, nil
}

// CaptureLive reads the configured cluster and stores the result.
func (s *rbacGraphService) CaptureLive(ctx context.Context, name string) (*models.SnapshotSummary, error) {
	if s.live == nil {
		return nil, ErrLiveClusterUnavailable
	}
	snap, err := s.live.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLiveClusterUnavailable, err)
	}
	return s.CreateSnapshot(ctx, name, SourceLive, snap)
}

// GetSnapshot loads and decodes a stored snapshot.
func (s *rbacGraphService) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(rec.Data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (s *rbacGraphService) getRecord(ctx context.Context, id string) (*models.SnapshotRecord, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	rec, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return rec, nil
}

// ListSnapshots returns stored snapshots, newest first.
func (s *rbacGraphService) ListSnapshots(ctx context.Context, limit int) ([]models.SnapshotSummary, error) {
	if s.repo == nil {
		return []models.SnapshotSummary{}, nil
	}
	records, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]models.SnapshotSummary, 0, len(records))
	for _, rec := range records {
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(rec.Data), &snap); err != nil {
			s.log.Warn("stored snapshot is not decodable", zap.String("snapshot_id", rec.ID), zap.Error(err))
			out = append(out, *summarize(rec, nil))
			continue
		}
		out = append(out, *summarize(rec, &snap))
	}
	return out, nil
}

// DeleteSnapshot removes a stored snapshot and its memoized graphs.
func (s *rbacGraphService) DeleteSnapshot(ctx context.Context, id string) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	removed := s.cache.InvalidateDigest(rec.Digest)
	logger.WithRequest(ctx, s.log).Info("snapshot deleted",
		zap.String("snapshot_id", id),
		zap.Int("cached_graphs_removed", removed),
	)
	s.notify(EventSnapshotDeleted, id)
	return nil
}

func (s *rbacGraphService) notify(event, id string) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSnapshotEvent(event, id)
	}
}

func summarize(rec *models.SnapshotRecord, snap *models.Snapshot) *models.SnapshotSummary {
	sum := &models.SnapshotSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		Source:    rec.Source,
		Digest:    rec.Digest,
		CreatedAt: rec.CreatedAt,
	}
	if snap != nil {
		sum.Counts = snap.Counts()
	}
	return sum
}
