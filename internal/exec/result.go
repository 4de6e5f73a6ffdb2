package exec

import (
	xerrors "StratFlow-Chain/internal/errors"
)

// Status is the terminal outcome of an execution attempt. Attempts pass
// through PREPARING and SUBMITTED internally; only terminal states are
// reported.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusSubmitted Status = "SUBMITTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
	// StatusHalted means a guard evaluated false. Steps before the guard
	// were submitted and settled; the remainder was never attempted.
	StatusHalted Status = "HALTED"
)

// Terminal reports whether the status ends an attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusTimedOut, StatusHalted:
		return true
	}
	return false
}

// StepResult is the per-step progress a finished attempt reports.
type StepResult struct {
	NodeID   string `json:"node_id"`
	Label    string `json:"label,omitempty"`
	Seq      int    `json:"seq"`
	Executed bool   `json:"executed"`
}

// Result summarizes one execution attempt.
type Result struct {
	Strategy string       `json:"strategy,omitempty"`
	Status   Status       `json:"status"`
	Batched  bool         `json:"batched"`
	BatchID  string       `json:"batch_id,omitempty"`
	TxHashes []string     `json:"tx_hashes,omitempty"`
	Steps    []StepResult `json:"steps"`
	// HaltedAt names the guard node that stopped the attempt, if any.
	HaltedAt string `json:"halted_at,omitempty"`
	// FailureCode and Reason are set on FAILED and TIMED_OUT attempts.
	FailureCode xerrors.Code `json:"failure_code,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

const (
	CodeNothingToExecute  xerrors.Code = "NOTHING_TO_EXECUTE"
	CodeNonNumericCompare xerrors.Code = "NON_NUMERIC_COMPARE"
	CodeExecutionTimeout  xerrors.Code = "EXECUTION_TIMEOUT"
	CodeBatchFailed       xerrors.Code = "BATCH_FAILED"
	CodeExecutionInFlight xerrors.Code = "EXECUTION_IN_FLIGHT"
	CodeAtomicUnsupported xerrors.Code = "ATOMIC_UNSUPPORTED"
)

func init() {
	xerrors.Register(CodeNothingToExecute, xerrors.Attributes{
		Message:  "strategy has no executable steps",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeNonNumericCompare, xerrors.Attributes{
		Message:  "guard returned a value that cannot be compared numerically",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeExecutionTimeout, xerrors.Attributes{
		Message:   "batch did not reach a terminal status within the polling budget",
		Severity:  xerrors.SeverityWarning,
		Alert:     true,
		Retryable: true,
	})
	xerrors.Register(CodeBatchFailed, xerrors.Attributes{
		Message:  "wallet reported the batch as failed",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeExecutionInFlight, xerrors.Attributes{
		Message:   "another execution attempt is already running",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
	})
	xerrors.Register(CodeAtomicUnsupported, xerrors.Attributes{
		Message:  "wallet cannot execute the strategy atomically",
		Severity: xerrors.SeverityWarning,
	})
}
