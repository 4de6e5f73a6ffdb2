package compile

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/internal/web3"
	"StratFlow-Chain/internal/web3/ens"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

var erc20ABI = mustParseABI(erc20TransferABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func compileTransfer(ctx context.Context, nodeID string, data *strategy.TransferData, cc ChainContext) ([]Call, error) {
	recipient, err := resolveRecipient(ctx, nodeID, data.RecipientAddress, cc.Resolver)
	if err != nil {
		return nil, err
	}

	asset := strings.ToUpper(strings.TrimSpace(data.Asset))
	native := strings.ToUpper(strings.TrimSpace(cc.NativeSymbol))
	if native == "" {
		native = "ETH"
	}

	if asset == native {
		value, err := ParseAmount(nodeID, data.Amount, web3.NativeDecimals)
		if err != nil {
			return nil, err
		}
		return []Call{{To: recipient, Value: value}}, nil
	}

	token, ok := cc.Tokens.Lookup(cc.ChainID, asset)
	if !ok {
		return nil, xerrors.New(CodeUnsupportedAsset,
			fmt.Sprintf("node %s: asset %s has no deployment on chain %d", nodeID, asset, cc.ChainID),
			xerrors.WithMetadata("node_id", nodeID))
	}
	amount, err := ParseAmount(nodeID, data.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	calldata, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, fmt.Sprintf("node %s: encode token transfer", nodeID))
	}
	return []Call{{To: token.Address, Data: calldata, Value: new(big.Int)}}, nil
}

// resolveRecipient accepts a hex address as-is, resolves name-service
// identifiers, and rejects everything else.
func resolveRecipient(ctx context.Context, nodeID, recipient string, resolver NameResolver) (common.Address, error) {
	trimmed := strings.TrimSpace(recipient)
	if common.IsHexAddress(trimmed) {
		return common.HexToAddress(trimmed), nil
	}
	if ens.IsName(trimmed) {
		if resolver == nil {
			return common.Address{}, xerrors.New(CodeUnresolvedName,
				fmt.Sprintf("node %s: no name service configured for %q", nodeID, trimmed),
				xerrors.WithMetadata("node_id", nodeID))
		}
		resolved, err := resolver.Resolve(ctx, trimmed)
		if err != nil {
			return common.Address{}, xerrors.Wrap(CodeUnresolvedName, err,
				fmt.Sprintf("node %s: resolve %q", nodeID, trimmed),
				xerrors.WithMetadata("node_id", nodeID))
		}
		if resolved == (common.Address{}) {
			return common.Address{}, xerrors.New(CodeUnresolvedName,
				fmt.Sprintf("node %s: name %q has no address record", nodeID, trimmed),
				xerrors.WithMetadata("node_id", nodeID))
		}
		return resolved, nil
	}
	return common.Address{}, xerrors.New(CodeInvalidRecipient,
		fmt.Sprintf("node %s: %q is neither an address nor a resolvable name", nodeID, trimmed),
		xerrors.WithMetadata("node_id", nodeID))
}
