// Package mocks provides test doubles for the run store.
package mocks

import (
	"context"
	"time"

	mock "github.com/stretchr/testify/mock"

	model "github.com/sells-group/docparse/internal/model"
	store "github.com/sells-group/docparse/internal/store"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

var _ store.Store = (*MockStore)(nil)

// CreateRun provides a mock function with given fields: ctx, startedAt
func (_m *MockStore) CreateRun(ctx context.Context, startedAt time.Time) (*model.Run, error) {
	ret := _m.Called(ctx, startedAt)

	if len(ret) == 0 {
		panic("no return value specified for CreateRun")
	}

	var r0 *model.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, time.Time) (*model.Run, error)); ok {
		return rf(ctx, startedAt)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Run)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// FinishRun provides a mock function with given fields: ctx, runID, outcome
func (_m *MockStore) FinishRun(ctx context.Context, runID string, outcome model.RunOutcome) error {
	ret := _m.Called(ctx, runID, outcome)

	if len(ret) == 0 {
		panic("no return value specified for FinishRun")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, model.RunOutcome) error); ok {
		return rf(ctx, runID, outcome)
	}
	return ret.Error(0)
}

// GetRun provides a mock function with given fields: ctx, runID
func (_m *MockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	ret := _m.Called(ctx, runID)

	if len(ret) == 0 {
		panic("no return value specified for GetRun")
	}

	var r0 *model.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.Run, error)); ok {
		return rf(ctx, runID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Run)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// ListRuns provides a mock function with given fields: ctx, filter
func (_m *MockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	ret := _m.Called(ctx, filter)

	if len(ret) == 0 {
		panic("no return value specified for ListRuns")
	}

	var r0 []model.Run
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, store.RunFilter) ([]model.Run, error)); ok {
		return rf(ctx, filter)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Run)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// CreateStage provides a mock function with given fields: ctx, runID, name, startedAt
func (_m *MockStore) CreateStage(ctx context.Context, runID string, name model.StageName, startedAt time.Time) (*model.Stage, error) {
	ret := _m.Called(ctx, runID, name, startedAt)

	if len(ret) == 0 {
		panic("no return value specified for CreateStage")
	}

	var r0 *model.Stage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, model.StageName, time.Time) (*model.Stage, error)); ok {
		return rf(ctx, runID, name, startedAt)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Stage)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// FinishStage provides a mock function with given fields: ctx, runID, seq, outcome
func (_m *MockStore) FinishStage(ctx context.Context, runID string, seq int, outcome model.StageOutcome) error {
	ret := _m.Called(ctx, runID, seq, outcome)

	if len(ret) == 0 {
		panic("no return value specified for FinishStage")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, int, model.StageOutcome) error); ok {
		return rf(ctx, runID, seq, outcome)
	}
	return ret.Error(0)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}
	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}
	return ret.Error(0)
}

// NewMockStore creates a new instance of MockStore.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	mock := &MockStore{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
