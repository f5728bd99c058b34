package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

// ErrNotFound is returned when a run or report does not exist.
var ErrNotFound = errors.New("not found")

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// CreateRun inserts a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, goal, state, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Goal, run.State, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run and its JSON report.
func (s *SQLiteStore) FinishRun(ctx context.Context, run Run, report []byte) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, success = ?, degraded = ?, iterations = ?, rationale = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, run.State, run.Success, run.Degraded, run.Iterations, run.Rationale, run.Error, formatTime(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}

	if report != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reports (run_id, body) VALUES (?, ?)
			ON CONFLICT(run_id) DO UPDATE SET body = excluded.body
		`, run.ID, string(report))
		if err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const runColumns = `id, goal, state, success, degraded, iterations, rationale, error, started_at, finished_at`

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var started, finished string
	if err := scan(&run.ID, &run.Goal, &run.State, &run.Success, &run.Degraded, &run.Iterations,
		&run.Rationale, &run.Error, &started, &finished); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// SaveTasks upserts the checklist of a run, preserving slice order.
func (s *SQLiteStore) SaveTasks(ctx context.Context, runID string, tasks []*progress.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, task := range tasks {
		meta := "{}"
		if len(task.Metadata) > 0 {
			data, err := json.Marshal(task.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", task.ID, err)
			}
			meta = string(data)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (run_id, id, position, description, status, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, id) DO UPDATE SET
				position = excluded.position,
				description = excluded.description,
				status = excluded.status,
				metadata = excluded.metadata
		`, runID, task.ID, i, task.Description, string(task.Status), meta)
		if err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListTasks returns a run's checklist in seed order.
func (s *SQLiteStore) ListTasks(ctx context.Context, runID string) ([]*progress.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, status, metadata
		FROM tasks
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*progress.Task
	for rows.Next() {
		task := &progress.Task{}
		var status, meta string
		if err := rows.Scan(&task.ID, &task.Description, &status, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Status = progress.Status(status)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &task.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", task.ID, err)
			}
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// AppendEvent records one status transition.
func (s *SQLiteStore) AppendEvent(ctx context.Context, runID string, ev progress.StatusEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_events (run_id, task_id, status, notes, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, runID, ev.TaskID, string(ev.Status), ev.Notes, formatTime(ev.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append status event: %w", err)
	}
	return nil
}

// History returns a run's status events in insertion order.
func (s *SQLiteStore) History(ctx context.Context, runID string) ([]progress.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, notes, timestamp
		FROM status_events
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []progress.StatusEvent
	for rows.Next() {
		var ev progress.StatusEvent
		var status, ts string
		if err := rows.Scan(&ev.TaskID, &status, &ev.Notes, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan status event: %w", err)
		}
		ev.Status = progress.Status(status)
		if ev.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		history = append(history, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

// Report returns the JSON report saved for a run.
func (s *SQLiteStore) Report(ctx context.Context, runID string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	return []byte(body), nil
}
