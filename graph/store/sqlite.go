package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It persists checkpoints in a single-file database. Designed for:
//   - Local workflows requiring persistence across restarts
//   - Development and testing with zero setup
//   - Prototyping before migrating to a served database
//
// SQLiteStore uses WAL mode so readers don't block behind the single
// writer, and a transaction per save so the sequence check and the insert
// are atomic.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./runs.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close; tests only)
//
// The store automatically creates the schema, enables WAL mode, and sets a
// busy timeout so concurrent opens wait for locks instead of failing.
//
// Example:
//
//	st, err := store.NewSQLiteStore[*graph.Envelope]("./runs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step_cursor TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(run_id, seq)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON run_checkpoints(run_id, seq)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_run: %w", err)
	}
	return nil
}

// Save appends a checkpoint inside a transaction: the stale-sequence check
// and the insert commit together, so two writers can never interleave a
// non-increasing sequence.
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM run_checkpoints WHERE run_id = ?", cp.RunID).Scan(&latest)
	if err != nil {
		return fmt.Errorf("failed to read latest sequence: %w", err)
	}
	if latest.Valid && cp.Seq <= int(latest.Int64) {
		return ErrStaleSequence
	}

	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_checkpoints (run_id, seq, step_cursor, status, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cp.RunID, cp.Seq, cp.Cursor, cp.Status, string(stateJSON),
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the run's most recent checkpoint.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (Checkpoint[S], error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, seq, step_cursor, status, state, created_at
		 FROM run_checkpoints WHERE run_id = ? ORDER BY seq DESC LIMIT 1`, runID)
	return scanCheckpoint[S](row)
}

// History returns all retained checkpoints for a run in sequence order.
func (s *SQLiteStore[S]) History(ctx context.Context, runID string) ([]Checkpoint[S], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, step_cursor, status, state, created_at
		 FROM run_checkpoints WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Checkpoint[S]
	for rows.Next() {
		cp, err := scanCheckpoint[S](rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}

// Drop removes a run's checkpoints (retention policy hook).
func (s *SQLiteStore[S]) Drop(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM run_checkpoints WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to drop run checkpoints: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint[S any](row scanner) (Checkpoint[S], error) {
	var (
		cp        Checkpoint[S]
		stateJSON string
		createdAt string
	)
	err := row.Scan(&cp.RunID, &cp.Seq, &cp.Cursor, &cp.Status, &stateJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}
	if err != nil {
		var zero Checkpoint[S]
		return zero, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		var zero Checkpoint[S]
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		cp.CreatedAt = ts
	}
	return cp, nil
}
