package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"StratFlow-Chain/internal/strategy"
)

// MemoryRepository keeps strategies in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

// Create implements Repository.
func (m *MemoryRepository) Create(_ context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return ErrStrategyExists
	}
	now := time.Now().Unix()
	record.CreatedAt = now
	record.UpdatedAt = now
	clone, err := cloneRecord(record)
	if err != nil {
		return err
	}
	m.records[record.ID] = clone
	return nil
}

// Get returns a copy of the stored strategy.
func (m *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return cloneRecord(record)
}

// Update replaces the stored strategy.
func (m *MemoryRepository) Update(_ context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[record.ID]
	if !ok {
		return ErrStrategyNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().Unix()
	clone, err := cloneRecord(record)
	if err != nil {
		return err
	}
	m.records[record.ID] = clone
	return nil
}

// Delete removes the stored strategy.
func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrStrategyNotFound
	}
	delete(m.records, id)
	return nil
}

// List returns stored strategies, most recently updated first.
func (m *MemoryRepository) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		clone, err := cloneRecord(record)
		if err != nil {
			return nil, err
		}
		results = append(results, clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt != results[j].UpdatedAt {
			return results[i].UpdatedAt > results[j].UpdatedAt
		}
		return results[i].ID > results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Snapshot returns the graph of the stored strategy.
func (m *MemoryRepository) Snapshot(_ context.Context, id string) (*strategy.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return snapshotOf(record)
}

// Close is a no-op for the memory repository.
func (m *MemoryRepository) Close() error {
	return nil
}

func cloneRecord(record *Record) (*Record, error) {
	clone := *record
	graph, err := record.Graph.Clone()
	if err != nil {
		return nil, err
	}
	clone.Graph = *graph
	return &clone, nil
}

var _ Repository = (*MemoryRepository)(nil)
