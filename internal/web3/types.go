package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reader is the read-only chain surface the engine depends on. Guard steps
// and the call compiler never submit anything through it; submission goes
// through the wallet RPC surface instead.
type Reader interface {
	// ReadContract abi-encodes a view-function call, performs eth_call and
	// returns the decoded output values.
	ReadContract(ctx context.Context, contract common.Address, abiJSON, function string, args ...any) ([]any, error)
	// BalanceAt returns the native-asset balance of an account in base units.
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	// ChainID returns the chain the reader is connected to.
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Token describes one fungible token deployment on a specific chain.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

// NativeDecimals is the precision of the chain's native asset.
const NativeDecimals = 18
