package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/db"
	"github.com/sells-group/docparse/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	transaction_id TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	start_time     TIMESTAMPTZ NOT NULL,
	end_time       TIMESTAMPTZ,
	duration_ms    BIGINT,
	num_pages      INTEGER,
	num_characters INTEGER,
	parsed_text    TEXT
);

CREATE TABLE IF NOT EXISTS log_items (
	transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
	seq            INTEGER NOT NULL,
	step_name      TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'STARTED',
	start_time     TIMESTAMPTZ NOT NULL,
	end_time       TIMESTAMPTZ,
	duration_ms    BIGINT,
	message        TEXT,
	PRIMARY KEY (transaction_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_start_time ON transactions(start_time DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, startedAt time.Time) (*model.Run, error) {
	id := uuid.New().String()
	startedAt = startedAt.UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (transaction_id, status, start_time) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusPending), startedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusPending,
		StartTime: startedAt,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, outcome model.RunOutcome) error {
	if !outcome.Status.Terminal() {
		return eris.Errorf("postgres: finish run %s: status %q is not terminal", runID, outcome.Status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions
		 SET status = $1, end_time = $2, duration_ms = $3, num_pages = $4, num_characters = $5, parsed_text = $6
		 WHERE transaction_id = $7 AND status = $8`,
		string(outcome.Status), outcome.EndTime.UTC(), outcome.DurationMS,
		intArg(outcome.NumPages), intArg(outcome.NumCharacters), stringArg(outcome.ParsedText),
		runID, string(model.RunStatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrTerminal(ctx,
			`SELECT COUNT(*) FROM transactions WHERE transaction_id = $1`, "run", runID, runID)
	}
	return nil
}

// GetRun reads the run and its stages from one repeatable-read snapshot.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: begin read %s", runID)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	r, err := scanRun(tx.QueryRow(ctx,
		`SELECT `+runColumns+` FROM transactions WHERE transaction_id = $1`, runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+stageColumns+` FROM log_items WHERE transaction_id = $1 ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stages %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		r.Stages = append(r.Stages, *st)
	}
	return r, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM transactions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.StartedAfter.IsZero() {
		query += fmt.Sprintf(` AND start_time > $%d`, argIdx)
		args = append(args, filter.StartedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY start_time DESC, transaction_id LIMIT $%d`, argIdx)
	args = append(args, filter.EffectiveLimit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreateStage(ctx context.Context, runID string, name model.StageName, startedAt time.Time) (*model.Stage, error) {
	startedAt = startedAt.UTC()

	var seq int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO log_items (transaction_id, seq, step_name, status, start_time)
		 SELECT t.transaction_id,
		        (SELECT COALESCE(MAX(seq), 0) + 1 FROM log_items WHERE transaction_id = t.transaction_id),
		        $1::text, $2::text, $3::timestamptz
		 FROM transactions t
		 WHERE t.transaction_id = $4 AND t.status = $5
		 RETURNING seq`,
		string(name), string(model.StageStatusStarted), startedAt, runID, string(model.RunStatusPending),
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrTerminal(ctx,
			`SELECT COUNT(*) FROM transactions WHERE transaction_id = $1`, "run", runID, runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage for run %s", runID)
	}

	return &model.Stage{
		RunID:     runID,
		Seq:       seq,
		Name:      name,
		Status:    model.StageStatusStarted,
		StartTime: startedAt,
	}, nil
}

func (s *PostgresStore) FinishStage(ctx context.Context, runID string, seq int, outcome model.StageOutcome) error {
	if !outcome.Status.Terminal() {
		return eris.Errorf("postgres: finish stage %s/%d: status %q is not terminal", runID, seq, outcome.Status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE log_items SET status = $1, end_time = $2, duration_ms = $3, message = $4
		 WHERE transaction_id = $5 AND seq = $6 AND status = $7`,
		string(outcome.Status), outcome.EndTime.UTC(), outcome.DurationMS, stringArg(outcome.Message),
		runID, seq, string(model.StageStatusStarted),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish stage %s/%d", runID, seq)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrTerminal(ctx,
			`SELECT COUNT(*) FROM log_items WHERE transaction_id = $1 AND seq = $2`, "stage", runID, runID, seq)
	}
	return nil
}

func (s *PostgresStore) missOrTerminal(ctx context.Context, countQuery, entity, id string, args ...any) error {
	var n int64
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&n); err != nil {
		return eris.Wrapf(err, "postgres: lookup %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: %s %s", entity, id)
	}
	return eris.Wrapf(ErrTerminal, "postgres: %s %s", entity, id)
}
