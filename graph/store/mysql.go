package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for:
//   - Production workflows requiring persistence
//   - Long-running workflows that survive process restarts
//   - Audit trails over checkpoint history
//
// MySQLStore uses connection pooling and a transaction per save so the
// stale-sequence check and the insert commit atomically.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example:
//
//	user:password@tcp(localhost:3306)/workflows
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore[*graph.Envelope](dsn)
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store and ensures the schema
// exists.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			seq INT NOT NULL,
			step_cursor VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			state MEDIUMTEXT NOT NULL,
			created_at VARCHAR(64) NOT NULL,
			UNIQUE KEY uniq_run_seq (run_id, seq),
			KEY idx_run (run_id)
		) ENGINE=InnoDB
	`
	if _, err := m.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create run_checkpoints table: %w", err)
	}
	return nil
}

// Save appends a checkpoint inside a transaction, enforcing strictly
// increasing sequence numbers per run.
func (m *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM run_checkpoints WHERE run_id = ? FOR UPDATE", cp.RunID).Scan(&latest)
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
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (Checkpoint[S], error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT run_id, seq, step_cursor, status, state, created_at
		 FROM run_checkpoints WHERE run_id = ? ORDER BY seq DESC LIMIT 1`, runID)
	return scanCheckpoint[S](row)
}

// History returns all retained checkpoints for a run in sequence order.
func (m *MySQLStore[S]) History(ctx context.Context, runID string) ([]Checkpoint[S], error) {
	rows, err := m.db.QueryContext(ctx,
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
func (m *MySQLStore[S]) Drop(ctx context.Context, runID string) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM run_checkpoints WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to drop run checkpoints: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (m *MySQLStore[S]) Close() error {
	return m.db.Close()
}
