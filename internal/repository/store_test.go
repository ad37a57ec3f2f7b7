package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := New(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotStoreSaveGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &models.SnapshotRecord{Name: "prod", Source: "upload", Digest: "abc", Data: `{"clusterRoles":[]}`}
	require.NoError(t, store.Save(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Data, got.Data)
	assert.Equal(t, rec.Digest, got.Digest)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestSnapshotStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrNotFound)
}

func TestSnapshotStoreListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "mid", "new"} {
		rec := &models.SnapshotRecord{Name: name, Source: "upload", Digest: name, Data: "{}", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.Save(ctx, rec))
	}

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].Name)
	assert.Equal(t, "old", list[2].Name)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSnapshotStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &models.SnapshotRecord{Name: "tmp", Source: "live", Digest: "d", Data: "{}"}
	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	_, err := store.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New("mysql", "")
	assert.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	store := newTestStore(t)
	list, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
