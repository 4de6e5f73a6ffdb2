package run

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/exec"
	"StratFlow-Chain/internal/observability/alerting"
	"StratFlow-Chain/internal/observability/metrics"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/pkg/logger"
)

// Executor drives one execution attempt. *exec.Controller satisfies it.
type Executor interface {
	Execute(ctx context.Context, snapshot *strategy.Snapshot) (*exec.Result, error)
}

// SnapshotSource loads the graph a run executes. The strategy store
// satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, strategyID string) (*strategy.Snapshot, error)
}

// Processor consumes queued runs and drives them through the executor.
type Processor struct {
	executor    Executor
	source      SnapshotSource
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption configures optional processor behaviour.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets a debug logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount sets the number of consuming goroutines.
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher wires failure alerting.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor builds a Processor.
func NewProcessor(executor Executor, source SnapshotSource, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		source:      source,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start blocks consuming runs until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "no run consumer configured")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, runID string) error {
	if p.store == nil || p.executor == nil || p.source == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor not initialized")
	}
	r, err := p.store.Claim(ctx, runID)
	if err != nil {
		if stdErrors.Is(err, ErrRunNotFound) || stdErrors.Is(err, ErrRunCompleted) || stdErrors.Is(err, ErrRunExhausted) {
			p.logDebug("skipping run", slog.String("run_id", runID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("claim run failed", slog.Any("error", err), slog.String("run_id", runID))
		return err
	}

	snapshot, err := p.source.Snapshot(ctx, r.StrategyID)
	if err != nil {
		return p.handleFailure(ctx, r, xerrors.Wrap(xerrors.CodeOf(err), err,
			fmt.Sprintf("load strategy %s", r.StrategyID)))
	}

	result, execErr := p.executor.Execute(ctx, snapshot)
	if execErr != nil {
		return p.handleFailure(ctx, r, execErr)
	}
	metrics.ObserveExecution(string(result.Status), result.Batched)

	// Terminal FAILED and TIMED_OUT outcomes are recorded against the run
	// and never re-submitted: the calls may already be on chain, and a user
	// rejection must be respected, not retried.
	if result.Status == exec.StatusFailed || result.Status == exec.StatusTimedOut {
		if err := p.store.MarkFailed(ctx, r.ID, result.FailureCode, result.Reason, true); err != nil {
			logger.L().Error("mark run failed errored", slog.Any("error", err), slog.String("run_id", r.ID))
			return err
		}
		logger.Exec().Warn("run finished unsuccessfully",
			slog.String("run_id", r.ID),
			slog.String("strategy_id", r.StrategyID),
			slog.String("status", string(result.Status)),
			slog.String("error_code", string(result.FailureCode)),
		)
		p.emitAlert(ctx, r, result.FailureCode, result.Reason, string(result.Status))
		metrics.ObserveRun(string(StatusFailed))
		return nil
	}

	if err := p.store.MarkSucceeded(ctx, r.ID, *result); err != nil {
		logger.L().Error("mark run succeeded errored", slog.Any("error", err), slog.String("run_id", r.ID))
		if storeErr := p.store.MarkFailed(ctx, r.ID, xerrors.CodeStorageFailure, err.Error(), false); storeErr != nil {
			logger.L().Error("fallback failure write errored", slog.Any("error", storeErr), slog.String("run_id", r.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return xerrors.Wrap(CodeRunPublish, pubErr,
				fmt.Sprintf("republish run %s after success-write failure", r.ID))
		}
		return nil
	}
	metrics.ObserveRun(string(StatusSucceeded))
	logger.Exec().Info("run finished",
		slog.String("run_id", r.ID),
		slog.String("strategy_id", r.StrategyID),
		slog.String("status", string(result.Status)),
		slog.Bool("batched", result.Batched),
		slog.Int("tx_count", len(result.TxHashes)),
	)
	return nil
}

// handleFailure records an executor error. Retryable errors below the attempt
// budget go back on the queue; everything else is terminal.
func (p *Processor) handleFailure(ctx context.Context, r *Run, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeRunProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := r.Attempts >= r.MaxAttempts || !retryable

	if storeErr := p.store.MarkFailed(ctx, r.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("mark run failed errored", slog.Any("error", storeErr), slog.String("run_id", r.ID))
		return storeErr
	}
	logger.Exec().Warn("run attempt failed",
		slog.String("run_id", r.ID),
		slog.String("strategy_id", r.StrategyID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", r.Attempts),
		slog.Int("max_attempts", r.MaxAttempts),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
		metrics.ObserveRun(string(StatusFailed))
	}
	p.emitAlert(ctx, r, code, execErr.Error(), stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return xerrors.Wrap(CodeRunPublish, pubErr, fmt.Sprintf("republish run %s", r.ID))
		}
		p.logDebug("run requeued", slog.String("run_id", r.ID), slog.Int("attempts", r.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, r *Run, code xerrors.Code, message, stage string) {
	if p == nil || p.alerter == nil || r == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if !attrs.Alert {
		return
	}
	event := alerting.Event{
		Code:        code,
		Message:     message,
		Severity:    attrs.Severity,
		RunID:       r.ID,
		StrategyID:  r.StrategyID,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		Metadata:    map[string]string{"stage": stage},
		OccurredAt:  time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("alert dispatch failed",
			slog.Any("error", err),
			slog.String("run_id", r.ID),
			slog.String("stage", stage),
		)
	}
}
