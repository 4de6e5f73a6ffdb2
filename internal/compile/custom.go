package compile

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func compileCustom(nodeID string, data *strategy.CustomContractData) ([]Call, error) {
	if !common.IsHexAddress(data.ContractAddress) {
		return nil, xerrors.New(CodeInvalidRecipient,
			fmt.Sprintf("node %s: %q is not a contract address", nodeID, data.ContractAddress),
			xerrors.WithMetadata("node_id", nodeID))
	}

	parsed, err := abi.JSON(strings.NewReader(data.ABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: parse abi", nodeID))
	}
	method, ok := parsed.Methods[data.Function]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: abi has no function %q", nodeID, data.Function)
	}
	if len(data.Args) != len(method.Inputs) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument,
			"node %s: function %s expects %d arguments, got %d", nodeID, data.Function, len(method.Inputs), len(data.Args))
	}

	args := make([]any, len(method.Inputs))
	for i, input := range method.Inputs {
		value, err := parseArgument(nodeID, input.Type, data.Args[i])
		if err != nil {
			return nil, err
		}
		args[i] = value
	}

	calldata, err := parsed.Pack(data.Function, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: encode %s call", nodeID, data.Function))
	}
	return []Call{{To: common.HexToAddress(data.ContractAddress), Data: calldata, Value: new(big.Int)}}, nil
}

// ParseArguments converts form-entered argument strings into the Go values
// the abi encoder expects for the named function. Guard evaluation uses this
// to issue view calls with the same argument semantics as compiled calls.
func ParseArguments(nodeID, abiJSON, function string, raw []string) ([]any, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: parse abi", nodeID))
	}
	method, ok := parsed.Methods[function]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: abi has no function %q", nodeID, function)
	}
	if len(raw) != len(method.Inputs) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument,
			"node %s: function %s expects %d arguments, got %d", nodeID, function, len(method.Inputs), len(raw))
	}
	args := make([]any, len(method.Inputs))
	for i, input := range method.Inputs {
		value, err := parseArgument(nodeID, input.Type, raw[i])
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return args, nil
}

// parseArgument converts the form-entered string into the Go value the abi
// encoder expects for the declared solidity type.
func parseArgument(nodeID string, typ abi.Type, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	switch typ.T {
	case abi.UintTy, abi.IntTy:
		value, ok := parseInteger(trimmed)
		if !ok {
			return nil, xerrors.New(CodeInvalidAmount,
				fmt.Sprintf("node %s: %q is not an integer", nodeID, raw),
				xerrors.WithMetadata("node_id", nodeID))
		}
		sized, err := sizeInteger(typ, value)
		if err != nil {
			return nil, xerrors.New(CodeInvalidAmount,
				fmt.Sprintf("node %s: %q overflows %s", nodeID, raw, typ.String()),
				xerrors.WithMetadata("node_id", nodeID))
		}
		return sized, nil
	case abi.BoolTy:
		return trimmed == "1" || strings.EqualFold(trimmed, "true"), nil
	case abi.AddressTy:
		if !common.IsHexAddress(trimmed) {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: %q is not an address", nodeID, raw)
		}
		return common.HexToAddress(trimmed), nil
	case abi.BytesTy:
		decoded, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("node %s: decode bytes argument", nodeID))
		}
		return decoded, nil
	case abi.FixedBytesTy:
		decoded, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
		if err != nil || len(decoded) != typ.Size {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: %q is not bytes%d", nodeID, raw, typ.Size)
		}
		if typ.Size == 32 {
			var fixed [32]byte
			copy(fixed[:], decoded)
			return fixed, nil
		}
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: bytes%d arguments are not supported", nodeID, typ.Size)
	case abi.StringTy:
		return trimmed, nil
	}
	return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "node %s: unsupported argument type %s", nodeID, typ.String())
}

// sizeInteger converts the parsed value into the exact Go type the abi
// encoder expects for the declared width.
func sizeInteger(typ abi.Type, value *big.Int) (any, error) {
	if typ.Size > 64 {
		if value.BitLen() > typ.Size {
			return nil, fmt.Errorf("value overflows %s", typ.String())
		}
		return value, nil
	}
	if typ.T == abi.UintTy {
		if !value.IsUint64() || value.BitLen() > typ.Size {
			return nil, fmt.Errorf("value overflows %s", typ.String())
		}
		u := value.Uint64()
		switch typ.Size {
		case 8:
			return uint8(u), nil
		case 16:
			return uint16(u), nil
		case 32:
			return uint32(u), nil
		default:
			return u, nil
		}
	}
	if !value.IsInt64() {
		return nil, fmt.Errorf("value overflows %s", typ.String())
	}
	i := value.Int64()
	switch typ.Size {
	case 8:
		if i < -1<<7 || i > 1<<7-1 {
			return nil, fmt.Errorf("value overflows %s", typ.String())
		}
		return int8(i), nil
	case 16:
		if i < -1<<15 || i > 1<<15-1 {
			return nil, fmt.Errorf("value overflows %s", typ.String())
		}
		return int16(i), nil
	case 32:
		if i < -1<<31 || i > 1<<31-1 {
			return nil, fmt.Errorf("value overflows %s", typ.String())
		}
		return int32(i), nil
	default:
		return i, nil
	}
}

func parseInteger(raw string) (*big.Int, bool) {
	if raw == "" {
		return nil, false
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		value, ok := new(big.Int).SetString(raw[2:], 16)
		return value, ok
	}
	return new(big.Int).SetString(raw, 10)
}
