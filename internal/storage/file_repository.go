package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
)

const (
	journalOpPut    = "put"
	journalOpDelete = "delete"

	// Graph snapshots can grow well past bufio's default token size.
	journalMaxLine = 1 << 20
)

type journalEntry struct {
	Op     string  `json:"op"`
	ID     string  `json:"id"`
	Record *Record `json:"record,omitempty"`
}

// FileRepository persists strategies to an append-only JSON journal. The
// journal is replayed on startup; the last entry per id wins. It gives
// single-node deployments durability without a database.
type FileRepository struct {
	mu      sync.RWMutex
	path    string
	records map[string]*Record
}

// NewFileRepository opens or creates the journal at path.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "strategy journal path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "create strategy data directory")
	}
	repo := &FileRepository{path: path, records: make(map[string]*Record)}
	if err := repo.replay(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (f *FileRepository) replay() error {
	file, err := os.OpenFile(f.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "open strategy journal")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), journalMaxLine)
	for scanner.Scan() {
		var entry journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// A torn tail write loses one entry, not the journal.
			continue
		}
		switch entry.Op {
		case journalOpPut:
			if entry.Record != nil {
				f.records[entry.Record.ID] = entry.Record
			}
		case journalOpDelete:
			delete(f.records, entry.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "replay strategy journal")
	}
	return nil
}

func (f *FileRepository) append(entry journalEntry) error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "open strategy journal")
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode journal entry")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write strategy journal")
	}
	return nil
}

// Create implements Repository.
func (f *FileRepository) Create(_ context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[record.ID]; ok {
		return ErrStrategyExists
	}
	now := time.Now().Unix()
	record.CreatedAt = now
	record.UpdatedAt = now
	clone, err := cloneRecord(record)
	if err != nil {
		return err
	}
	if err := f.append(journalEntry{Op: journalOpPut, ID: clone.ID, Record: clone}); err != nil {
		return err
	}
	f.records[clone.ID] = clone
	return nil
}

// Get returns a copy of the stored strategy.
func (f *FileRepository) Get(_ context.Context, id string) (*Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	record, ok := f.records[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return cloneRecord(record)
}

// Update replaces the stored strategy.
func (f *FileRepository) Update(_ context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.records[record.ID]
	if !ok {
		return ErrStrategyNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().Unix()
	clone, err := cloneRecord(record)
	if err != nil {
		return err
	}
	if err := f.append(journalEntry{Op: journalOpPut, ID: clone.ID, Record: clone}); err != nil {
		return err
	}
	f.records[clone.ID] = clone
	return nil
}

// Delete removes the stored strategy.
func (f *FileRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return ErrStrategyNotFound
	}
	if err := f.append(journalEntry{Op: journalOpDelete, ID: id}); err != nil {
		return err
	}
	delete(f.records, id)
	return nil
}

// List returns stored strategies, most recently updated first.
func (f *FileRepository) List(_ context.Context, limit int) ([]*Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]*Record, 0, len(f.records))
	for _, record := range f.records {
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
func (f *FileRepository) Snapshot(_ context.Context, id string) (*strategy.Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	record, ok := f.records[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	return snapshotOf(record)
}

// Close is a no-op; every write is flushed as it happens.
func (f *FileRepository) Close() error {
	return nil
}

var _ Repository = (*FileRepository)(nil)
