package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docparse/internal/failure"
	"github.com/sells-group/docparse/internal/model"
	"github.com/sells-group/docparse/internal/pipeline"
)

func TestReadIDs(t *testing.T) {
	input := "068A\n\n  068B  \n# skipped\n068C\n"
	ids, err := readIDs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"068A", "068B", "068C"}, ids)
}

func TestReadIDs_Empty(t *testing.T) {
	ids, err := readIDs(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProcessBatch_CountsOutcomes(t *testing.T) {
	ids := []string{"ok-1", "bad-1", "ok-2", "bad-2", "ok-3"}

	sum := processBatch(context.Background(), ids, 2, func(_ context.Context, id string) (*pipeline.Result, error) {
		if strings.HasPrefix(id, "bad") {
			return &pipeline.Result{RunID: "run-" + id, Status: model.RunStatusFailure},
				failure.New(failure.KindNotFound, model.StageFetch, errors.New("No file found for DocumentId "+id))
		}
		return &pipeline.Result{RunID: "run-" + id, Status: model.RunStatusSuccess, NumPages: 1}, nil
	})

	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Contains(t, sum.String(), "processed 5 documents: 3 succeeded, 2 failed")
}

func TestProcessBatch_RespectsConcurrency(t *testing.T) {
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = "doc"
	}

	var inFlight, peak atomic.Int64
	sum := processBatch(context.Background(), ids, 3, func(context.Context, string) (*pipeline.Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &pipeline.Result{RunID: "r"}, nil
	})

	assert.Equal(t, 12, sum.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestProcessBatch_FailureDoesNotStopOthers(t *testing.T) {
	var calls atomic.Int64
	sum := processBatch(context.Background(), []string{"a", "b", "c"}, 1, func(_ context.Context, id string) (*pipeline.Result, error) {
		calls.Add(1)
		if id == "a" {
			// No run could be recorded.
			return nil, errors.New("store unavailable")
		}
		return &pipeline.Result{RunID: id}, nil
	})

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Succeeded)
}

func TestProcessBatch_ZeroConcurrency(t *testing.T) {
	sum := processBatch(context.Background(), []string{"a"}, 0, func(context.Context, string) (*pipeline.Result, error) {
		return &pipeline.Result{RunID: "r"}, nil
	})
	assert.Equal(t, 1, sum.Succeeded)
}

func TestProcessBatch_Empty(t *testing.T) {
	sum := processBatch(context.Background(), nil, 4, func(context.Context, string) (*pipeline.Result, error) {
		t.Fatal("should not be called")
		return nil, nil
	})
	assert.Equal(t, batchSummary{Duration: sum.Duration}, sum)
}
