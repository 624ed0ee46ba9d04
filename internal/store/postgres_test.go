package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docparse/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var (
	runCols   = []string{"transaction_id", "status", "start_time", "end_time", "duration_ms", "num_pages", "num_characters", "parsed_text"}
	stageCols = []string{"transaction_id", "seq", "step_name", "status", "start_time", "end_time", "duration_ms", "message"}
)

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS transactions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO transactions \(transaction_id, status, start_time\)`).
		WithArgs(pgxmock.AnyArg(), "PENDING", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, model.RunStatusPending, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var readSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(readSnapshot)
	mock.ExpectQuery(`SELECT transaction_id, status, start_time, .* FROM transactions WHERE transaction_id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_WithStages(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	end := start.Add(2 * time.Second)

	mock.ExpectBeginTx(readSnapshot)
	mock.ExpectQuery(`FROM transactions WHERE transaction_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-1", "SUCCESS", start, end, int64(2000), int64(1), int64(11), "Hello World"))
	mock.ExpectQuery(`FROM log_items WHERE transaction_id = \$1 ORDER BY seq`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(stageCols).
			AddRow("run-1", 1, "Parameter Validation", "COMPLETED", start, end, int64(1), "").
			AddRow("run-1", 2, "Fetch", "COMPLETED", start, end, int64(900), ""))
	mock.ExpectRollback()

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	require.NotNil(t, run.NumCharacters)
	assert.Equal(t, 11, *run.NumCharacters)
	require.NotNil(t, run.DurationMS)
	assert.Equal(t, int64(2000), *run.DurationMS)
	assert.Equal(t, "Hello World", run.ParsedText)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, model.StageValidation, run.Stages[0].Name)
	assert.Equal(t, model.StageFetch, run.Stages[1].Name)
	assert.Equal(t, 2, run.Stages[1].Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_BeginFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(readSnapshot).WillReturnError(errors.New("too many connections"))

	_, err := s.GetRun(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: begin read run-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	pages, chars := 3, 42

	mock.ExpectExec(`UPDATE transactions\s+SET status = \$1`).
		WithArgs("SUCCESS", pgxmock.AnyArg(), int64(1200), int64(3), int64(42), "text", "run-1", "PENDING").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), "run-1", model.RunOutcome{
		Status:        model.RunStatusSuccess,
		EndTime:       time.Now(),
		DurationMS:    1200,
		NumPages:      &pages,
		NumCharacters: &chars,
		ParsedText:    "text",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_AlreadyTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE transactions`).
		WithArgs("FAILURE", pgxmock.AnyArg(), int64(0), nil, nil, nil, "run-1", "PENDING").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions WHERE transaction_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	err := s.FinishRun(context.Background(), "run-1", model.RunOutcome{
		Status: model.RunStatusFailure, EndTime: time.Now(),
	})
	assert.ErrorIs(t, err, ErrTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE transactions`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))

	err := s.FinishRun(context.Background(), "ghost", model.RunOutcome{
		Status: model.RunStatusFailure, EndTime: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO log_items .* RETURNING seq`).
		WithArgs("Fetch", "STARTED", pgxmock.AnyArg(), "run-1", "PENDING").
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(2))

	stage, err := s.CreateStage(context.Background(), "run-1", model.StageFetch, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, stage.Seq)
	assert.Equal(t, model.StageStatusStarted, stage.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateStage_TerminalRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO log_items`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	_, err := s.CreateStage(context.Background(), "run-1", model.StageConversion, time.Now())
	assert.ErrorIs(t, err, ErrTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishStage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE log_items SET status = \$1`).
		WithArgs("FAILED", pgxmock.AnyArg(), int64(12), "Unsupported file type: zip", "run-1", 3, "STARTED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishStage(context.Background(), "run-1", 3, model.StageOutcome{
		Status:     model.StageStatusFailed,
		EndTime:    time.Now(),
		DurationMS: 12,
		Message:    "Unsupported file type: zip",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishStage_AlreadyTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE log_items`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM log_items WHERE transaction_id = \$1 AND seq = \$2`).
		WithArgs("run-1", 1).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	err := s.FinishStage(context.Background(), "run-1", 1, model.StageOutcome{
		Status: model.StageStatusCompleted, EndTime: time.Now(),
	})
	assert.ErrorIs(t, err, ErrTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	start := after.Add(time.Hour)

	mock.ExpectQuery(`WHERE true AND status = \$1 AND start_time > \$2 ORDER BY start_time DESC, transaction_id LIMIT \$3 OFFSET \$4`).
		WithArgs("FAILURE", after, 5, 10).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-9", "FAILURE", start, start, int64(7), nil, nil, nil))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status:       model.RunStatusFailure,
		StartedAfter: after,
		Limit:        5,
		Offset:       10,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-9", runs[0].ID)
	assert.Nil(t, runs[0].NumPages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE true ORDER BY start_time DESC, transaction_id LIMIT \$1$`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(runCols))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
