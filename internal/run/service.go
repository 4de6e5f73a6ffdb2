package run

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/pkg/logger"
)

// Service creates and queries runs.
type Service struct {
	store       Store
	producer    Producer
	maxAttempts int
}

// NewService builds a run service. maxAttempts bounds how often a retryable
// failure may be re-queued.
func NewService(store Store, producer Producer, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Service{store: store, producer: producer, maxAttempts: maxAttempts}
}

// Submit creates a run for the strategy and pushes it onto the queue.
// Re-submitting an id that already exists returns the existing run.
func (s *Service) Submit(ctx context.Context, id, strategyID string) (*Run, error) {
	if strings.TrimSpace(strategyID) == "" {
		return nil, xerrors.New(CodeRunValidation, "strategy id must not be empty")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "run service not initialized")
	}

	runID := strings.TrimSpace(id)
	if runID != "" {
		existing, err := s.store.Get(ctx, runID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrRunNotFound) {
			return nil, err
		}
	} else {
		runID = uuid.NewString()
	}

	r := &Run{
		ID:          runID,
		StrategyID:  strategyID,
		Status:      StatusPending,
		MaxAttempts: s.maxAttempts,
	}
	if err := s.store.Create(ctx, r); err != nil {
		if stdErrors.Is(err, ErrRunConflict) {
			existing, getErr := s.store.Get(ctx, runID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrRunNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, runID); err != nil {
		logger.L().Error("enqueue run failed", slog.Any("error", err), slog.String("run_id", runID))
		wrapped := xerrors.Wrap(CodeRunPublish, err, "publish run to queue")
		_ = s.store.MarkFailed(ctx, runID, CodeRunPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Exec().Info("run queued",
		slog.String("run_id", runID),
		slog.String("strategy_id", strategyID),
		slog.Int("max_attempts", r.MaxAttempts),
	)
	return r, nil
}

// Get returns one run.
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "run store not initialized")
	}
	return s.store.Get(ctx, id)
}

// List returns runs matching the filters.
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "run store not initialized")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats aggregates run counts matching the filters.
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (RunStats, error) {
	if s.store == nil {
		return RunStats{}, xerrors.New(xerrors.CodeInitializationFailure, "run store not initialized")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close releases the store and producer.
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted polls the run until it reaches a terminal status or the
// context expires.
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Run, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status == StatusSucceeded || r.Status == StatusFailed {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
