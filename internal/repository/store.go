// Package repository persists resource snapshots with sqlx over SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/migrations"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultListLimit = 100

// SnapshotStore implements SnapshotRepository. Queries are written with ? and
// rebound for the driver in use.
type SnapshotStore struct {
	db *sqlx.DB
}

var _ SnapshotRepository = (*SnapshotStore)(nil)

// New opens a store for driver ("sqlite" or "postgres") and runs migrations.
func New(driver, dsn string) (*SnapshotStore, error) {
	var (
		store *SnapshotStore
		err   error
	)
	switch driver {
	case DriverSQLite, "":
		store, err = NewSQLiteRepository(dsn)
	case DriverPostgres:
		store, err = NewPostgresRepository(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(migrations.FS); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// NewSQLiteRepository creates a new SQLite store
func NewSQLiteRepository(dbPath string) (*SnapshotStore, error) {
	db, err := sqlx.Connect(DriverSQLite, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	// One connection: :memory: databases are per-connection and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// NewPostgresRepository creates a new PostgreSQL store
func NewPostgresRepository(connectionString string) (*SnapshotStore, error) {
	db, err := sqlx.Connect(DriverPostgres, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SnapshotStore{db: db}, nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// RunMigrations executes every *.sql file of fsys in name order.
func (s *SnapshotStore) RunMigrations(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(data)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", name, err)
		}
	}
	return nil
}

// Save inserts rec, assigning an id and creation time when unset.
func (s *SnapshotStore) Save(ctx context.Context, rec *models.SnapshotRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	query := s.db.Rebind(`
		INSERT INTO snapshots (id, name, source, digest, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	return instrumentQuery("save", func() error {
		_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Name, rec.Source, rec.Digest, rec.Data, rec.CreatedAt)
		return err
	})
}

// Get returns the snapshot with id, or ErrNotFound.
func (s *SnapshotStore) Get(ctx context.Context, id string) (*models.SnapshotRecord, error) {
	var rec models.SnapshotRecord
	query := s.db.Rebind(`SELECT id, name, source, digest, data, created_at FROM snapshots WHERE id = ?`)
	err := instrumentQuery("get", func() error {
		return s.db.GetContext(ctx, &rec, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns up to limit snapshots, newest first. limit <= 0 means 100.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]*models.SnapshotRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	records := []*models.SnapshotRecord{}
	query := s.db.Rebind(`SELECT id, name, source, digest, data, created_at FROM snapshots ORDER BY created_at DESC, id LIMIT ?`)
	err := instrumentQuery("list", func() error {
		return s.db.SelectContext(ctx, &records, query, limit)
	})
	return records, err
}

// Delete removes the snapshot with id, or returns ErrNotFound.
func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	query := s.db.Rebind(`DELETE FROM snapshots WHERE id = ?`)
	var affected int64
	err := instrumentQuery("delete", func() error {
		res, err := s.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// PingContext checks the database connection.
func (s *SnapshotStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
