// Package persistence records workflow runs in a SQLite ledger: the goal,
// the task checklist, every status transition and the final report.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

// Run is one row of the runs table.
type Run struct {
	ID         string
	Goal       string
	State      string
	Success    bool
	Degraded   bool
	Iterations int
	Rationale  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while the run is in flight
}

// Store defines the run ledger.
type Store interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run, report []byte) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Checklist and transitions
	SaveTasks(ctx context.Context, runID string, tasks []*progress.Task) error
	ListTasks(ctx context.Context, runID string) ([]*progress.Task, error)
	AppendEvent(ctx context.Context, runID string, ev progress.StatusEvent) error
	History(ctx context.Context, runID string) ([]progress.StatusEvent, error)

	// Report returns the JSON report saved by FinishRun.
	Report(ctx context.Context, runID string) ([]byte, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the ledger at dbPath.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the DSN; set via PRAGMA below
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates a private in-memory store, used by tests and by runs
// with the ledger disabled.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	// A unique name keeps stores isolated while cache=shared lets the pool's
	// connections see the same database.
	connStr := fmt.Sprintf("file:aime-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// A single connection serialises writes and keeps PRAGMA state consistent.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
