// Package tracker records the start, end, duration, status and message of
// each named stage of a pipeline run.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docparse/internal/model"
	"github.com/sells-group/docparse/internal/store"
)

// ErrStageClosed is returned when Complete or Fail is called on a handle
// that already reached a terminal status.
var ErrStageClosed = eris.New("tracker: stage already closed")

// Tracker persists stage transitions through a Store.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

// New creates a Tracker backed by s.
func New(s store.Store) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// Handle refers to one started stage. It is safe for concurrent use, but
// only the first terminal call wins.
type Handle struct {
	RunID string
	Seq   int
	Name  model.StageName

	started time.Time

	mu     sync.Mutex
	closed bool
}

// Begin persists a new stage in STARTED state.
func (t *Tracker) Begin(ctx context.Context, runID string, name model.StageName) (*Handle, error) {
	started := t.now()
	stage, err := t.store.CreateStage(ctx, runID, name, started)
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: begin %s", name)
	}

	zap.L().Info("tracker: stage started",
		zap.String("run_id", runID),
		zap.String("stage", string(name)),
		zap.Int("seq", stage.Seq),
	)
	return &Handle{RunID: runID, Seq: stage.Seq, Name: name, started: started}, nil
}

// Complete marks the stage COMPLETED with an optional message.
func (t *Tracker) Complete(ctx context.Context, h *Handle, message string) error {
	return t.finish(ctx, h, model.StageStatusCompleted, message)
}

// Fail marks the stage FAILED with the failure message.
func (t *Tracker) Fail(ctx context.Context, h *Handle, message string) error {
	return t.finish(ctx, h, model.StageStatusFailed, message)
}

func (t *Tracker) finish(ctx context.Context, h *Handle, status model.StageStatus, message string) error {
	if h == nil {
		return eris.New("tracker: nil stage handle")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return eris.Wrapf(ErrStageClosed, "tracker: %s stage %s/%d", status, h.RunID, h.Seq)
	}
	h.closed = true

	end := t.now()
	duration := end.Sub(h.started).Milliseconds()

	err := t.store.FinishStage(ctx, h.RunID, h.Seq, model.StageOutcome{
		Status:     status,
		EndTime:    end,
		DurationMS: duration,
		Message:    message,
	})
	if err != nil {
		return eris.Wrapf(err, "tracker: finish %s", h.Name)
	}

	fields := []zap.Field{
		zap.String("run_id", h.RunID),
		zap.String("stage", string(h.Name)),
		zap.Int64("duration_ms", duration),
	}
	if status == model.StageStatusFailed {
		zap.L().Error("tracker: stage failed", append(fields, zap.String("message", message))...)
	} else {
		zap.L().Info("tracker: stage complete", fields...)
	}
	return nil
}

// Closed reports whether a terminal call has been made on the handle.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
