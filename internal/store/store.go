// Package store persists pipeline runs (transactions) and their ordered stages (log items).
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/model"
)

var (
	// ErrNotFound is returned when a run or stage does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrTerminal is returned when a terminal run or stage would be rewritten.
	ErrTerminal = eris.New("store: already terminal")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	StartedAfter time.Time       `json:"started_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 100

// EffectiveLimit returns Limit, or DefaultListLimit when unset.
func (f RunFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for pipeline runs.
// Implementations must allow concurrent runs to write their own rows.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, startedAt time.Time) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, outcome model.RunOutcome) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name model.StageName, startedAt time.Time) (*model.Stage, error)
	FinishStage(ctx context.Context, runID string, seq int, outcome model.StageOutcome) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
