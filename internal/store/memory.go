package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/lvonguyen/sectorintel/internal/intel"
)

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	latest string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Run)}
}

// SaveRun stores a copy of run.
func (m *MemoryStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" || run.ID == LatestRunID {
		return fmt.Errorf("invalid run id %q", run.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	m.latest = run.ID
	return nil
}

// LoadRun returns a copy of the stored run.
func (m *MemoryStore) LoadRun(ctx context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id == LatestRunID {
		id = m.latest
	}
	run, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneRun(run), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func cloneRun(run Run) Run {
	out := run
	out.Indicators = make([]intel.Indicator, len(run.Indicators))
	for i, ind := range run.Indicators {
		out.Indicators[i] = ind.Clone()
	}
	return out
}
