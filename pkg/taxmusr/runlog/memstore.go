package runlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memStore is an in-memory Store for tests and dry runs.
type memStore struct {
	mu      sync.RWMutex
	runs    map[string]Run
	samples map[string][]Sample
}

// NewMemStore creates an empty in-memory run log.
func NewMemStore() Store {
	return &memStore{
		runs:    make(map[string]Run),
		samples: make(map[string][]Sample),
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) CreateRun(ctx context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.runs[r.ID]; dup {
		return fmt.Errorf("runlog: run %s already exists", r.ID)
	}
	m.runs[r.ID] = r
	return nil
}

func (m *memStore) FinishRun(ctx context.Context, id string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("runlog: run %s not found", id)
	}
	r.FinishedAt = finishedAt
	m.runs[id] = r
	return nil
}

func (m *memStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok, nil
}

func (m *memStore) RecordSample(ctx context.Context, s Sample) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[s.RunID] = append(m.samples[s.RunID], s)
	return nil
}

func (m *memStore) SamplesForRun(ctx context.Context, runID string) ([]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sample(nil), m.samples[runID]...), nil
}

func (m *memStore) RunStats(ctx context.Context, runID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st Stats
	for _, s := range m.samples[runID] {
		st.Samples++
		if s.Status == "failed" {
			st.Failed++
		}
		st.TotalTokens += s.TotalTokens
	}
	return st, nil
}
