package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

// SQLiteSink persists run records to SQLite. The full record is stored
// as JSON alongside indexed columns for listing and filtering.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the audit database at dbPath.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	sink := &SQLiteSink{db: db}
	if err := sink.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return sink, nil
}

func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		final_action TEXT NOT NULL,
		position_size REAL NOT NULL,
		escalated INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		record TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_escalated ON runs(escalated) WHERE escalated = 1;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists one finalized run.
func (s *SQLiteSink) Record(ctx context.Context, run *models.RunState) error {
	data, err := Encode(run)
	if err != nil {
		return err
	}

	escalated := 0
	if run.FinalAction == models.ActionEscalated {
		escalated = 1
	}

	query := `
	INSERT INTO runs (run_id, symbol, final_action, position_size, escalated, started_at, record)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.RunID, run.Symbol, string(run.FinalAction), run.PositionSize,
		escalated, run.StartedAt, string(data))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// List returns stored runs newest first, optionally filtered by symbol.
func (s *SQLiteSink) List(ctx context.Context, symbol string, limit int) ([]*models.RunState, error) {
	query := `SELECT record FROM runs`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunState
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		run, err := Decode([]byte(record))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *SQLiteSink) Get(ctx context.Context, runID string) (*models.RunState, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE run_id = ?`, runID).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return Decode([]byte(record))
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
