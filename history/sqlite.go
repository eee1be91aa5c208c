package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *slog.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	expanded, err := homedir.Expand(dbPath)
	if err != nil {
		return nil, fmt.Errorf("expand db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", expanded)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets `history` read while a scheduled run writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Debug("sqlite recorder opened", "path", expanded)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			vendor      TEXT NOT NULL,
			mode        TEXT NOT NULL,
			start_date  TEXT,
			end_date    TEXT,
			total       INTEGER,
			succeeded   INTEGER,
			failed      INTEGER,
			path        TEXT,
			partial     INTEGER,
			error_count INTEGER,
			error       TEXT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_vendor ON runs(vendor, started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun inserts or replaces the entry with the same id.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, e *RunEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var finished any
	if !e.FinishedAt.IsZero() {
		finished = e.FinishedAt.UnixMilli()
	}

	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, vendor, mode, start_date, end_date, total, succeeded, failed,
		 path, partial, error_count, error, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Vendor, e.Mode, e.Start, e.End, e.Total, e.Succeeded, e.Failed,
		e.Path, boolToInt(e.Partial), e.ErrorCount, e.Error,
		e.StartedAt.UnixMilli(), finished,
	)
	return err
}

// ListRuns returns the newest runs first.
func (r *SQLiteRecorder) ListRuns(ctx context.Context, vendor string, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, vendor, mode, start_date, end_date, total, succeeded, failed,
		path, partial, error_count, error, started_at, finished_at
		FROM runs`
	args := []any{}
	if vendor != "" {
		query += ` WHERE vendor = ?`
		args = append(args, vendor)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var (
			e         RunEntry
			partial   int
			errText   sql.NullString
			startedAt int64
			finished  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Vendor, &e.Mode, &e.Start, &e.End,
			&e.Total, &e.Succeeded, &e.Failed, &e.Path, &partial,
			&e.ErrorCount, &errText, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Partial = partial != 0
		e.Error = errText.String
		e.StartedAt = time.UnixMilli(startedAt)
		if finished.Valid {
			e.FinishedAt = time.UnixMilli(finished.Int64)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
