package exec

import (
	"context"

	"StratFlow-Chain/internal/wallet"
)

// runSequential submits one eth_sendTransaction per call in plan order,
// waiting for the wallet to accept each before moving on. A step is marked
// executed once all of its calls are accepted; a rejection aborts the
// remainder but already-executed marks survive. There is no rollback.
func (c *Controller) runSequential(ctx context.Context, units []callUnit, result *Result) {
	result.Status = StatusSubmitted

	remaining := make(map[int]int)
	for _, unit := range units {
		remaining[unit.step]++
	}

	for _, unit := range units {
		req := wallet.TransactionRequest{
			From:    c.account,
			ChainID: hexChainID(c.chain.ChainID),
		}
		encoded := encodeCall(unit.call)
		req.To = encoded.To
		req.Data = encoded.Data
		req.Value = encoded.Value

		hash, err := c.wallet.SendTransaction(ctx, req)
		if err != nil {
			c.failResult(result, err)
			return
		}
		result.TxHashes = append(result.TxHashes, hash)
		c.execLog.Info("transaction submitted",
			"strategy", result.Strategy, "step", result.Steps[unit.step].NodeID, "tx_hash", hash)

		remaining[unit.step]--
		if remaining[unit.step] == 0 {
			result.Steps[unit.step].Executed = true
		}
	}

	result.Status = StatusConfirmed
	c.execLog.Info("sequential run complete",
		"strategy", result.Strategy, "tx_hashes", len(result.TxHashes))
}
