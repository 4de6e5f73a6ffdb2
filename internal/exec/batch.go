package exec

import (
	"context"
	"encoding/hex"
	"time"

	"StratFlow-Chain/internal/compile"
	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/wallet"
)

// sendCallsVersion is the wallet_sendCalls payload version the engine speaks.
const sendCallsVersion = "2.0.0"

// runBatch submits every compiled call as one atomic batch and polls until
// the wallet reports a terminal status or the polling budget runs out. All
// submitted steps settle together: on CONFIRMED every step that contributed
// a call is marked executed, on any other outcome none are.
func (c *Controller) runBatch(ctx context.Context, units []callUnit, result *Result) {
	req := wallet.SendCallsRequest{
		Version:        sendCallsVersion,
		ChainID:        hexChainID(c.chain.ChainID),
		From:           c.account,
		AtomicRequired: true,
		Calls:          make([]wallet.Call, len(units)),
	}
	for i, unit := range units {
		req.Calls[i] = encodeCall(unit.call)
	}

	id, err := c.wallet.SendCalls(ctx, req)
	if err != nil {
		c.failResult(result, err)
		return
	}
	result.Status = StatusSubmitted
	result.BatchID = id
	c.execLog.Info("batch submitted",
		"strategy", result.Strategy, "batch_id", id, "calls", len(req.Calls))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			c.failResult(result, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "status polling cancelled"))
			return
		case <-ticker.C:
		}

		status, err := c.wallet.CallsStatus(ctx, id)
		if err != nil {
			c.log.Warn("status poll failed", "batch_id", id, "err", err)
			continue
		}
		switch status.Status {
		case wallet.StatusConfirmed:
			result.Status = StatusConfirmed
			for _, unit := range units {
				result.Steps[unit.step].Executed = true
			}
			for _, receipt := range status.Receipts {
				if receipt.TransactionHash != "" {
					result.TxHashes = append(result.TxHashes, receipt.TransactionHash)
				}
			}
			c.execLog.Info("batch confirmed",
				"strategy", result.Strategy, "batch_id", id, "tx_hashes", result.TxHashes)
			return
		case wallet.StatusFailed:
			result.Status = StatusFailed
			result.FailureCode = CodeBatchFailed
			result.Reason = "wallet reported the batch as failed"
			c.execLog.Info("batch failed", "strategy", result.Strategy, "batch_id", id)
			return
		}
	}

	result.Status = StatusTimedOut
	result.FailureCode = CodeExecutionTimeout
	result.Reason = "batch did not settle within the polling budget"
	c.execLog.Info("batch timed out", "strategy", result.Strategy, "batch_id", id)
}

// failResult records a submission-time failure. A user rejection is a normal
// terminal outcome, not an engine fault.
func (c *Controller) failResult(result *Result, err error) {
	result.Status = StatusFailed
	result.FailureCode = xerrors.CodeOf(err)
	result.Reason = err.Error()
	c.execLog.Info("submission failed",
		"strategy", result.Strategy, "code", string(result.FailureCode), "reason", result.Reason)
}

// encodeCall renders a compiled call in the hex wire shape the wallet RPC
// surface expects.
func encodeCall(call compile.Call) wallet.Call {
	encoded := wallet.Call{To: call.To.Hex(), Value: "0x0"}
	if len(call.Data) > 0 {
		encoded.Data = "0x" + hex.EncodeToString(call.Data)
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		encoded.Value = "0x" + call.Value.Text(16)
	}
	return encoded
}
