// Package compile turns configured strategy steps into chain-agnostic call
// descriptors: destination, calldata and native value. Compilation performs
// no submission; its only I/O is name resolution.
package compile

import (
	"context"
	"math/big"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one on-chain invocation: destination, optional calldata and the
// native-asset value in base units. Immutable once produced.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// NameResolver resolves a name-service identifier to an address. A zero
// address with a nil error means the name has no record.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (common.Address, error)
}

// ChainContext carries everything compilation needs to know about the active
// chain.
type ChainContext struct {
	ChainID      uint64
	NativeSymbol string
	Tokens       *web3.TokenBook
	Resolver     NameResolver
	// Routers maps protocol names to their entry contract on this chain.
	Routers map[string]common.Address
}

const (
	CodeInvalidRecipient    xerrors.Code = "INVALID_RECIPIENT"
	CodeUnresolvedName      xerrors.Code = "UNRESOLVED_NAME"
	CodeInvalidAmount       xerrors.Code = "INVALID_AMOUNT"
	CodeUnsupportedAsset    xerrors.Code = "UNSUPPORTED_ASSET"
	CodeUnsupportedProtocol xerrors.Code = "UNSUPPORTED_PROTOCOL"
)

func init() {
	xerrors.Register(CodeInvalidRecipient, xerrors.Attributes{
		Message:  "recipient is not a valid address or name",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeUnresolvedName, xerrors.Attributes{
		Message:  "name did not resolve to an address",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidAmount, xerrors.Attributes{
		Message:  "amount is not a valid decimal number",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeUnsupportedAsset, xerrors.Attributes{
		Message:  "asset has no known deployment on the active chain",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeUnsupportedProtocol, xerrors.Attributes{
		Message:  "no sub-compiler registered for protocol",
		Severity: xerrors.SeverityInfo,
	})
}

// Compile produces the call descriptors for one configured step. Guard steps
// (wallet, conditional, balance-guard) produce no calls; they gate execution
// instead.
func Compile(ctx context.Context, node *strategy.Node, cc ChainContext) ([]Call, error) {
	if node == nil || node.Data == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "cannot compile an empty node")
	}
	switch data := node.Data.(type) {
	case *strategy.WalletData, *strategy.ConditionalData, *strategy.BalanceGuardData:
		return nil, nil
	case *strategy.TransferData:
		return compileTransfer(ctx, node.ID, data, cc)
	case *strategy.CustomContractData:
		return compileCustom(node.ID, data)
	case *strategy.LendingData:
		return dispatchProtocol(ctx, node, data.Protocol, cc)
	case *strategy.SwapData:
		return dispatchProtocol(ctx, node, data.Protocol, cc)
	}
	return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s has unsupported kind %s", node.ID, node.Kind())
}
