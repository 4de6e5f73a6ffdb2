package compile

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SubCompiler compiles one protocol-specific action node into calls. The
// registry fixes the output contract only; each protocol owns its encoding.
type SubCompiler interface {
	CompileAction(ctx context.Context, node *strategy.Node, cc ChainContext) ([]Call, error)
}

var (
	subMu        sync.RWMutex
	subCompilers = map[string]SubCompiler{}
)

// RegisterProtocol installs a sub-compiler under a protocol name. Protocols
// register themselves during init; a later registration under the same name
// replaces the earlier one.
func RegisterProtocol(name string, sub SubCompiler) {
	subMu.Lock()
	defer subMu.Unlock()
	subCompilers[strings.ToLower(name)] = sub
}

func lookupProtocol(name string) (SubCompiler, bool) {
	subMu.RLock()
	defer subMu.RUnlock()
	sub, ok := subCompilers[strings.ToLower(name)]
	return sub, ok
}

func dispatchProtocol(ctx context.Context, node *strategy.Node, protocol string, cc ChainContext) ([]Call, error) {
	name := strings.TrimSpace(protocol)
	if name == "" {
		name = routerProtocolName
	}
	sub, ok := lookupProtocol(name)
	if !ok {
		return nil, xerrors.New(CodeUnsupportedProtocol,
			fmt.Sprintf("node %s: no sub-compiler registered for protocol %q", node.ID, name),
			xerrors.WithMetadata("node_id", node.ID))
	}
	return sub.CompileAction(ctx, node, cc)
}

// routerProtocolName is the built-in reference protocol: a single router
// contract exposing action(asset, amount) style entry points.
const routerProtocolName = "router"

const routerABI = `[
  {"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"borrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"repay","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"fromAsset","type":"address"},{"name":"toAsset","type":"address"},{"name":"amountIn","type":"uint256"}],"name":"swap","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"addLiquidity","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"removeLiquidity","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var routerMethods = mustParseABI(routerABI)

type routerCompiler struct{}

func init() {
	RegisterProtocol(routerProtocolName, routerCompiler{})
}

func (routerCompiler) CompileAction(_ context.Context, node *strategy.Node, cc ChainContext) ([]Call, error) {
	router, ok := cc.Routers[routerProtocolName]
	if !ok {
		return nil, xerrors.New(CodeUnsupportedProtocol,
			fmt.Sprintf("node %s: protocol router has no deployment on chain %d", node.ID, cc.ChainID),
			xerrors.WithMetadata("node_id", node.ID))
	}
	parsed := routerMethods

	switch data := node.Data.(type) {
	case *strategy.LendingData:
		if strings.TrimSpace(data.Asset) == "" {
			return packPair(parsed, router, node.ID, data.Action, data.TokenA, data.TokenB, cc)
		}
		token, err := lookupAsset(node.ID, data.Asset, cc)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(node.ID, data.Amount, token.Decimals)
		if err != nil {
			return nil, err
		}
		action := strings.TrimSpace(data.Action)
		if _, ok := parsed.Methods[action]; !ok {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: unsupported lending action %q", node.ID, data.Action)
		}
		calldata, err := parsed.Pack(action, token.Address, amount)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: encode %s", node.ID, action))
		}
		return []Call{{To: router, Data: calldata, Value: new(big.Int)}}, nil

	case *strategy.SwapData:
		if strings.TrimSpace(data.FromAsset) == "" {
			return packPair(parsed, router, node.ID, data.Action, data.TokenA, data.TokenB, cc)
		}
		from, err := lookupAsset(node.ID, data.FromAsset, cc)
		if err != nil {
			return nil, err
		}
		to, err := lookupAsset(node.ID, data.ToAsset, cc)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(node.ID, data.Amount, from.Decimals)
		if err != nil {
			return nil, err
		}
		calldata, err := parsed.Pack("swap", from.Address, to.Address, amount)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: encode swap", node.ID))
		}
		return []Call{{To: router, Data: calldata, Value: new(big.Int)}}, nil
	}
	return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s is not a protocol action", node.ID)
}

func packPair(parsed abi.ABI, router common.Address, nodeID, action, tokenA, tokenB string, cc ChainContext) ([]Call, error) {
	a, err := lookupAsset(nodeID, tokenA, cc)
	if err != nil {
		return nil, err
	}
	b, err := lookupAsset(nodeID, tokenB, cc)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(action)
	if _, ok := parsed.Methods[name]; !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: unsupported liquidity action %q", nodeID, action)
	}
	calldata, err := parsed.Pack(name, a.Address, b.Address)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: encode %s", nodeID, name))
	}
	return []Call{{To: router, Data: calldata, Value: new(big.Int)}}, nil
}

func lookupAsset(nodeID, symbol string, cc ChainContext) (web3.Token, error) {
	token, ok := cc.Tokens.Lookup(cc.ChainID, symbol)
	if !ok {
		return web3.Token{}, xerrors.New(CodeUnsupportedAsset,
			fmt.Sprintf("node %s: asset %s has no deployment on chain %d", nodeID, symbol, cc.ChainID),
			xerrors.WithMetadata("node_id", nodeID))
	}
	return token, nil
}
