package correlation

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is meant for tests and
// single-process `serve` runs where losing the join on restart is acceptable.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (m *MemoryStore) FindOrCreate(_ context.Context, id string, fields Fields) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		return &rec, nil
	}
	rec := Record{DeploymentID: id}
	rec.merge(fields)
	m.records[id] = rec
	return nil, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fields Fields) error {
	if err := checkUpdate(id, fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		rec = Record{DeploymentID: id}
	}
	rec.merge(fields)
	m.records[id] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) Close() error { return nil }
