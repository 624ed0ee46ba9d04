package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docparse/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withTimeFormat(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them applied and
	// serializes writers from concurrent runs.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// withTimeFormat stores timestamps in a sortable layout so ORDER BY and
// range filters on DATETIME columns compare correctly.
func withTimeFormat(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_time_format=sqlite"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	transaction_id TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	start_time     DATETIME NOT NULL,
	end_time       DATETIME,
	duration_ms    INTEGER,
	num_pages      INTEGER,
	num_characters INTEGER,
	parsed_text    TEXT
);

CREATE TABLE IF NOT EXISTS log_items (
	transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
	seq            INTEGER NOT NULL,
	step_name      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'STARTED',
	start_time     DATETIME NOT NULL,
	end_time       DATETIME,
	duration_ms    INTEGER,
	message        TEXT,
	PRIMARY KEY (transaction_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_start_time ON transactions(start_time);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, startedAt time.Time) (*model.Run, error) {
	id := uuid.New().String()
	startedAt = startedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (transaction_id, status, start_time) VALUES (?, ?, ?)`,
		id, string(model.RunStatusPending), startedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusPending,
		StartTime: startedAt,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, outcome model.RunOutcome) error {
	if !outcome.Status.Terminal() {
		return eris.Errorf("sqlite: finish run %s: status %q is not terminal", runID, outcome.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET status = ?, end_time = ?, duration_ms = ?, num_pages = ?, num_characters = ?, parsed_text = ?
		 WHERE transaction_id = ? AND status = ?`,
		string(outcome.Status), outcome.EndTime.UTC(), outcome.DurationMS,
		intArg(outcome.NumPages), intArg(outcome.NumCharacters), stringArg(outcome.ParsedText),
		runID, string(model.RunStatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return s.missOrTerminal(ctx,
			`SELECT COUNT(*) FROM transactions WHERE transaction_id = ?`, "run", runID, runID)
	}
	return nil
}

// GetRun reads the run and its stages inside one read transaction.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: begin read %s", runID)
	}
	defer tx.Rollback() //nolint:errcheck

	r, err := scanRun(tx.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM transactions WHERE transaction_id = ?`, runID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+stageColumns+` FROM log_items WHERE transaction_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list stages %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		r.Stages = append(r.Stages, *st)
	}
	return r, eris.Wrap(rows.Err(), "sqlite: list stages iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND start_time > ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY start_time DESC, rowid DESC LIMIT ?`
	args = append(args, filter.EffectiveLimit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID string, name model.StageName, startedAt time.Time) (*model.Stage, error) {
	startedAt = startedAt.UTC()

	// Stages can only be appended to a pending run; seq is the next insertion index.
	var seq int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO log_items (transaction_id, seq, step_name, status, start_time)
		 SELECT t.transaction_id,
		        (SELECT COALESCE(MAX(seq), 0) + 1 FROM log_items WHERE transaction_id = t.transaction_id),
		        ?, ?, ?
		 FROM transactions t
		 WHERE t.transaction_id = ? AND t.status = ?
		 RETURNING seq`,
		string(name), string(model.StageStatusStarted), startedAt, runID, string(model.RunStatusPending),
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrTerminal(ctx,
			`SELECT COUNT(*) FROM transactions WHERE transaction_id = ?`, "run", runID, runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
	}

	return &model.Stage{
		RunID:     runID,
		Seq:       seq,
		Name:      name,
		Status:    model.StageStatusStarted,
		StartTime: startedAt,
	}, nil
}

func (s *SQLiteStore) FinishStage(ctx context.Context, runID string, seq int, outcome model.StageOutcome) error {
	if !outcome.Status.Terminal() {
		return eris.Errorf("sqlite: finish stage %s/%d: status %q is not terminal", runID, seq, outcome.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE log_items SET status = ?, end_time = ?, duration_ms = ?, message = ?
		 WHERE transaction_id = ? AND seq = ? AND status = ?`,
		string(outcome.Status), outcome.EndTime.UTC(), outcome.DurationMS, stringArg(outcome.Message),
		runID, seq, string(model.StageStatusStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish stage %s/%d", runID, seq)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return s.missOrTerminal(ctx,
			`SELECT COUNT(*) FROM log_items WHERE transaction_id = ? AND seq = ?`, "stage", runID, runID, seq)
	}
	return nil
}

// missOrTerminal explains why a guarded write touched no rows.
func (s *SQLiteStore) missOrTerminal(ctx context.Context, countQuery, entity, id string, args ...any) error {
	var n int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&n); err != nil {
		return eris.Wrapf(err, "sqlite: lookup %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return eris.Wrapf(ErrTerminal, "sqlite: %s %s", entity, id)
}
