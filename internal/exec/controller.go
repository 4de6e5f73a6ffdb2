package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"StratFlow-Chain/internal/compile"
	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/plan"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/internal/wallet"
	"StratFlow-Chain/pkg/logger"
)

// Wallet is the submission surface the executors drive. *wallet.Client
// satisfies it; tests substitute fakes.
type Wallet interface {
	Capabilities(ctx context.Context, address string) (wallet.Capabilities, error)
	SendCalls(ctx context.Context, req wallet.SendCallsRequest) (string, error)
	CallsStatus(ctx context.Context, id string) (wallet.CallsStatusResult, error)
	SendTransaction(ctx context.Context, req wallet.TransactionRequest) (string, error)
}

// Controller owns the lifecycle of execution attempts for one wallet account
// on one chain. Execute is the single entry point; a second call while an
// attempt is in flight is refused.
type Controller struct {
	wallet    Wallet
	evaluator *Evaluator
	chain     compile.ChainContext
	account   string

	pollInterval  time.Duration
	maxPolls      int
	requireAtomic bool
	log           *slog.Logger
	execLog       *slog.Logger

	inFlight atomic.Bool
}

// Option configures optional controller behaviour.
type Option func(*Controller)

// WithPollInterval overrides how often a submitted batch is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithMaxPolls overrides how many polls a submitted batch gets before the
// attempt times out.
func WithMaxPolls(polls int) Option {
	return func(c *Controller) {
		if polls > 0 {
			c.maxPolls = polls
		}
	}
}

// WithRequireAtomic refuses attempts the wallet cannot land as one atomic
// batch instead of falling back to sequential transactions.
func WithRequireAtomic(require bool) Option {
	return func(c *Controller) {
		c.requireAtomic = require
	}
}

// WithLogger replaces the default loggers.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxPolls     = 20
)

// NewController wires a controller for the given wallet endpoint, guard
// evaluator and chain context. account is the address submissions are made
// from.
func NewController(w Wallet, evaluator *Evaluator, chain compile.ChainContext, account string, opts ...Option) *Controller {
	c := &Controller{
		wallet:       w,
		evaluator:    evaluator,
		chain:        chain,
		account:      account,
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
		log:          logger.Named("exec"),
		execLog:      logger.Exec(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// callUnit ties a compiled call back to the plan entry that produced it so
// the sequential path can mark steps executed one by one.
type callUnit struct {
	step int
	call compile.Call
}

// Execute runs one attempt against a snapshot of the strategy graph. The
// snapshot is cloned first; concurrent edits to the caller's copy do not
// affect the attempt. Refusals (nothing to execute, unconfigured step,
// attempt already in flight) come back as errors; FAILED and TIMED_OUT
// attempts come back as a Result.
func (c *Controller) Execute(ctx context.Context, snapshot *strategy.Snapshot) (*Result, error) {
	if c.wallet == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "no wallet configured")
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, xerrors.New(CodeExecutionInFlight, "an execution attempt is already in flight")
	}
	defer c.inFlight.Store(false)

	frozen, err := snapshot.Clone()
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(frozen)
	if err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, xerrors.New(CodeNothingToExecute, "strategy has no executable steps")
	}

	result := &Result{
		Strategy: p.Strategy,
		Status:   StatusPreparing,
		Steps:    make([]StepResult, len(p.Entries)),
	}
	for i, entry := range p.Entries {
		result.Steps[i] = StepResult{NodeID: entry.Node.ID, Label: entry.Node.Label(), Seq: entry.Seq}
	}

	units, err := c.prepare(ctx, p, result)
	if err != nil {
		return nil, err
	}
	halted := result.Status == StatusHalted
	if len(units) == 0 {
		if halted {
			c.log.Info("execution halted by guard",
				"strategy", p.Strategy, "node", result.HaltedAt)
		} else {
			// Every step was a guard that passed.
			result.Status = StatusConfirmed
		}
		return result, nil
	}

	batched := c.atomicBatchSupported(ctx)
	if !batched && c.requireAtomic {
		return nil, xerrors.New(CodeAtomicUnsupported,
			"wallet cannot execute the strategy as one atomic batch")
	}
	result.Batched = batched
	if batched {
		c.runBatch(ctx, units, result)
	} else {
		c.runSequential(ctx, units, result)
	}
	if halted && result.Status == StatusConfirmed {
		// The prefix before the failing guard settled; the attempt as a
		// whole stopped at the guard.
		result.Status = StatusHalted
		c.log.Info("execution halted by guard",
			"strategy", p.Strategy, "node", result.HaltedAt)
	}
	return result, nil
}

// prepare walks the plan in order, evaluating guards in place and compiling
// every action step. A guard that evaluates false marks the result halted and
// stops compilation; calls compiled for the steps before it are still
// returned for submission, steps after it are never attempted.
func (c *Controller) prepare(ctx context.Context, p *plan.Plan, result *Result) ([]callUnit, error) {
	var units []callUnit
	for i, entry := range p.Entries {
		if isGuard(entry.Node) {
			proceed, err := c.evaluator.Evaluate(ctx, entry.Node)
			if err != nil {
				return nil, err
			}
			if !proceed {
				result.Status = StatusHalted
				result.HaltedAt = entry.Node.ID
				return units, nil
			}
			result.Steps[i].Executed = true
			continue
		}
		calls, err := compile.Compile(ctx, entry.Node, c.chain)
		if err != nil {
			return nil, err
		}
		for _, call := range calls {
			units = append(units, callUnit{step: i, call: call})
		}
	}
	return units, nil
}

func isGuard(n *strategy.Node) bool {
	switch n.Kind() {
	case strategy.KindConditional, strategy.KindBalanceGuard:
		return true
	}
	return false
}

// atomicBatchSupported asks the wallet whether it can land the whole call
// list atomically on the active chain. Any capability-query failure selects
// the sequential path rather than failing the attempt.
func (c *Controller) atomicBatchSupported(ctx context.Context) bool {
	caps, err := c.wallet.Capabilities(ctx, c.account)
	if err != nil {
		c.log.Warn("capability query failed, falling back to sequential", "err", err)
		return false
	}
	return caps.AtomicBatch(hexChainID(c.chain.ChainID))
}

func hexChainID(chainID uint64) string {
	return fmt.Sprintf("0x%x", chainID)
}
