// Package run queues and tracks execution runs. A run is one request to
// execute a stored strategy: it is persisted, pushed onto a queue, picked up
// by a worker and driven through the execution controller exactly once per
// attempt.
package run

import (
	stdErrors "errors"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/exec"
)

// Status is the queue-level lifecycle of a run. The settlement outcome of a
// finished run lives in Result.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one queued execution of a strategy.
type Run struct {
	ID          string       `json:"id"`
	StrategyID  string       `json:"strategy_id"`
	Status      Status       `json:"status"`
	Attempts    int          `json:"attempts"`
	MaxAttempts int          `json:"max_attempts"`
	LastError   string       `json:"last_error,omitempty"`
	ErrorCode   string       `json:"error_code,omitempty"`
	Result      *exec.Result `json:"result,omitempty"`
	CreatedAt   int64        `json:"created_at"`
	UpdatedAt   int64        `json:"updated_at"`
}

var (
	// ErrRunNotFound means the requested run does not exist.
	ErrRunNotFound = xerrors.New(CodeRunNotFound, "run not found")
	// ErrRunConflict means the run cannot take the requested transition.
	ErrRunConflict = xerrors.New(CodeRunConflict, "run conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRunCompleted means the run already finished successfully.
	ErrRunCompleted = xerrors.New(CodeRunCompleted, "run already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrRunExhausted means the run has no attempts left.
	ErrRunExhausted = xerrors.New(CodeRunExhausted, "run attempts exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeRunNotFound   xerrors.Code = "RUN_NOT_FOUND"
	CodeRunConflict   xerrors.Code = "RUN_CONFLICT"
	CodeRunCompleted  xerrors.Code = "RUN_COMPLETED"
	CodeRunExhausted  xerrors.Code = "RUN_ATTEMPTS_EXHAUSTED"
	CodeRunValidation xerrors.Code = "RUN_VALIDATION_FAILED"
	CodeRunPublish    xerrors.Code = "RUN_PUBLISH_FAILED"
	CodeRunProcessing xerrors.Code = "RUN_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeRunNotFound, xerrors.Attributes{
		Message:  "run not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRunConflict, xerrors.Attributes{
		Message:  "run conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeRunCompleted, xerrors.Attributes{
		Message:  "run already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRunExhausted, xerrors.Attributes{
		Message:  "run attempts exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeRunValidation, xerrors.Attributes{
		Message:  "run validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRunPublish, xerrors.Attributes{
		Message:   "failed to publish run",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeRunProcessing, xerrors.Attributes{
		Message:  "run execution failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// IsRunError reports whether err is one of the sentinel run errors carrying
// the given code.
func IsRunError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch {
	case stdErrors.Is(err, ErrRunNotFound):
		return target == CodeRunNotFound
	case stdErrors.Is(err, ErrRunConflict):
		return target == CodeRunConflict
	case stdErrors.Is(err, ErrRunCompleted):
		return target == CodeRunCompleted
	case stdErrors.Is(err, ErrRunExhausted):
		return target == CodeRunExhausted
	}
	return false
}

// IsValidStatus checks the status against the supported enum.
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}
