package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docparse/internal/cache"
	"github.com/sells-group/docparse/internal/model"
)

// CachedStore serves GetRun for terminal runs from a cache.
// Terminal runs never change, so entries need no invalidation.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps s with a lookup cache.
func NewCached(s Store, c cache.Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: s, cache: c, ttl: ttl}
}

func runKey(runID string) string {
	return "run:" + runID
}

// cachedRun is the cache encoding of a run. It carries the fields the API
// encoding of model.Run leaves out.
type cachedRun struct {
	Run        *model.Run `json:"run"`
	ParsedText string     `json:"parsed_text"`
	Seqs       []int      `json:"seqs"`
}

func encodeRun(r *model.Run) ([]byte, error) {
	seqs := make([]int, len(r.Stages))
	for i, st := range r.Stages {
		seqs[i] = st.Seq
	}
	return json.Marshal(cachedRun{Run: r, ParsedText: r.ParsedText, Seqs: seqs})
}

func decodeRun(data []byte) (*model.Run, error) {
	var c cachedRun
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Run == nil || len(c.Seqs) != len(c.Run.Stages) {
		return nil, eris.New("store: malformed cache entry")
	}
	c.Run.ParsedText = c.ParsedText
	for i := range c.Run.Stages {
		c.Run.Stages[i].RunID = c.Run.ID
		c.Run.Stages[i].Seq = c.Seqs[i]
	}
	return c.Run, nil
}

func (s *CachedStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	key := runKey(runID)

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		r, decErr := decodeRun(data)
		if decErr == nil {
			return r, nil
		}
		zap.L().Warn("store: decode cached run", zap.String("run_id", runID), zap.Error(decErr))
	case !errors.Is(err, cache.ErrMiss):
		zap.L().Warn("store: cache get", zap.String("run_id", runID), zap.Error(err))
	}

	r, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !r.Status.Terminal() {
		return r, nil
	}

	enc, err := encodeRun(r)
	if err != nil {
		zap.L().Warn("store: encode run for cache", zap.String("run_id", runID), zap.Error(err))
		return r, nil
	}
	if err := s.cache.Set(ctx, key, enc, s.ttl); err != nil {
		zap.L().Warn("store: cache set", zap.String("run_id", runID), zap.Error(err))
	}
	return r, nil
}

func (s *CachedStore) Close() error {
	err := s.Store.Close()
	if cerr := s.cache.Close(); err == nil {
		err = cerr
	}
	return err
}
