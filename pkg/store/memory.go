package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// MemoryStore implements Store using in-memory data structures.
// Used for tests and for runs that index without a datastore directory.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	units map[string]map[int]types.UnitRecord // keyed by run ID, then seq
	blobs map[types.BlobID]map[string]struct{} // run IDs per blob
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]*Run),
		units: make(map[string]map[int]types.UnitRecord),
		blobs: make(map[types.BlobID]map[string]struct{}),
	}
}

// AddRun stores a run, replacing the manifest of an existing run with the same ID.
func (m *MemoryStore) AddRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.runs[run.ID]; ok {
		existing.Manifest = run.Manifest
		return nil
	}
	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

// AddUnit records an emitted unit.
func (m *MemoryStore) AddUnit(runID string, seq int, rec types.UnitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	units := m.units[runID]
	if units == nil {
		units = make(map[int]types.UnitRecord)
		m.units[runID] = units
	}
	if _, exists := units[seq]; exists {
		// Idempotent - already recorded
		return nil
	}
	units[seq] = rec
	if m.blobs[rec.BlobID] == nil {
		m.blobs[rec.BlobID] = make(map[string]struct{})
	}
	m.blobs[rec.BlobID][runID] = struct{}{}
	return nil
}

// UnitExists checks if a run other than exceptRun has emitted a unit with
// this blob ID.
func (m *MemoryStore) UnitExists(id types.BlobID, exceptRun string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for runID := range m.blobs[id] {
		if runID != exceptRun {
			return true, nil
		}
	}
	return false, nil
}

// GetRun retrieves a run by ID.
func (m *MemoryStore) GetRun(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	copied := *run
	return &copied, nil
}

// GetRuns retrieves all runs, oldest first.
func (m *MemoryStore) GetRuns() ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		copied := *run
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.Before(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetUnits retrieves a run's units in stream order.
func (m *MemoryStore) GetUnits(runID string) ([]types.UnitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	units := m.units[runID]
	seqs := make([]int, 0, len(units))
	for seq := range units {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	result := make([]types.UnitRecord, 0, len(seqs))
	for _, seq := range seqs {
		result = append(result, units[seq])
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
