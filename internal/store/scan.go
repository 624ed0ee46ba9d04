package store

import (
	"database/sql"
	"time"

	"github.com/sells-group/docparse/internal/model"
)

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

const runColumns = `transaction_id, status, start_time, end_time, duration_ms, num_pages, num_characters, parsed_text`

const stageColumns = `transaction_id, seq, step_name, status, start_time, end_time, duration_ms, message`

func scanRun(row scannable) (*model.Run, error) {
	var (
		r          model.Run
		status     string
		endTime    sql.NullTime
		durationMS sql.NullInt64
		numPages   sql.NullInt64
		numChars   sql.NullInt64
		parsedText sql.NullString
	)
	if err := row.Scan(&r.ID, &status, &r.StartTime, &endTime, &durationMS, &numPages, &numChars, &parsedText); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.StartTime = r.StartTime.UTC()
	r.EndTime = nullTime(endTime)
	r.DurationMS = nullInt64(durationMS)
	r.NumPages = nullInt(numPages)
	r.NumCharacters = nullInt(numChars)
	r.ParsedText = parsedText.String
	return &r, nil
}

func scanStage(row scannable) (*model.Stage, error) {
	var (
		st         model.Stage
		name       string
		status     string
		endTime    sql.NullTime
		durationMS sql.NullInt64
		message    sql.NullString
	)
	if err := row.Scan(&st.RunID, &st.Seq, &name, &status, &st.StartTime, &endTime, &durationMS, &message); err != nil {
		return nil, err
	}
	st.Name = model.StageName(name)
	st.Status = model.StageStatus(status)
	st.StartTime = st.StartTime.UTC()
	st.EndTime = nullTime(endTime)
	st.DurationMS = nullInt64(durationMS)
	st.Message = message.String
	return &st, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func stringArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}
