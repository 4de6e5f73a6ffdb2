// Package storage persists strategy definitions. A stored strategy is the
// graph snapshot the execution pipeline runs, plus the metadata the API
// exposes around it.
package storage

import (
	"context"
	"strings"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
)

// Record is one stored strategy.
type Record struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Graph       strategy.Snapshot `json:"graph"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

// Repository abstracts strategy persistence. Its Snapshot method is what the
// run processor uses to load the graph for an execution.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, record *Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]*Record, error)
	Snapshot(ctx context.Context, id string) (*strategy.Snapshot, error)
	Close() error
}

var (
	// ErrStrategyNotFound means the requested strategy does not exist.
	ErrStrategyNotFound = xerrors.New(xerrors.CodeNotFound, "strategy not found")
	// ErrStrategyExists means a strategy with the id is already stored.
	ErrStrategyExists = xerrors.New(xerrors.CodeConflict, "strategy already exists")
)

func validateRecord(record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "strategy record must not be nil")
	}
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "strategy id must not be empty")
	}
	if strings.TrimSpace(record.Name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "strategy name must not be empty")
	}
	if len(record.Graph.Nodes) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "strategy graph must not be empty",
			xerrors.WithMetadata("strategy_id", record.ID))
	}
	return nil
}

func snapshotOf(record *Record) (*strategy.Snapshot, error) {
	clone, err := record.Graph.Clone()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "clone strategy graph")
	}
	return clone, nil
}
