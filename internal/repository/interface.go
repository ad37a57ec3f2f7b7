package repository

import (
	"context"
	"errors"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

// ErrNotFound is returned when a snapshot id does not exist.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotRepository stores resource snapshots. Graphs and layouts are derived
// on demand and never stored.
type SnapshotRepository interface {
	Save(ctx context.Context, rec *models.SnapshotRecord) error
	Get(ctx context.Context, id string) (*models.SnapshotRecord, error)
	List(ctx context.Context, limit int) ([]*models.SnapshotRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
