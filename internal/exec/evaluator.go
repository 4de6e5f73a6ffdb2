package exec

import (
	"context"
	"fmt"
	"math/big"

	"StratFlow-Chain/internal/compile"
	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Evaluator decides whether execution may proceed past a guard step. It only
// reads chain state; a guard never produces a call of its own.
type Evaluator struct {
	reader web3.Reader
}

// NewEvaluator returns an Evaluator backed by the given chain reader.
func NewEvaluator(reader web3.Reader) *Evaluator {
	return &Evaluator{reader: reader}
}

// Evaluate runs the guard's comparison. true means proceed, false means the
// remainder of the plan is skipped. Nodes that are not guards always pass.
func (e *Evaluator) Evaluate(ctx context.Context, node *strategy.Node) (bool, error) {
	switch data := node.Data.(type) {
	case *strategy.BalanceGuardData:
		return e.evaluateBalance(ctx, node.ID, data)
	case *strategy.ConditionalData:
		return e.evaluateConditional(ctx, node.ID, data)
	}
	return true, nil
}

func (e *Evaluator) evaluateBalance(ctx context.Context, nodeID string, data *strategy.BalanceGuardData) (bool, error) {
	if !common.IsHexAddress(data.TargetAddress) {
		return false, xerrors.Newf(xerrors.CodeInvalidArgument,
			"node %s: %q is not an address", nodeID, data.TargetAddress)
	}
	balance, err := e.reader.BalanceAt(ctx, common.HexToAddress(data.TargetAddress))
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeChainFailure, err,
			fmt.Sprintf("node %s: read balance", nodeID))
	}
	// Thresholds are entered in whole native units, the same way transfer
	// amounts are.
	threshold, err := compile.ParseAmount(nodeID, data.CompareValue, web3.NativeDecimals)
	if err != nil {
		return false, err
	}
	return compareIntegers(balance, data.Operator, threshold), nil
}

func (e *Evaluator) evaluateConditional(ctx context.Context, nodeID string, data *strategy.ConditionalData) (bool, error) {
	if !common.IsHexAddress(data.ContractAddress) {
		return false, xerrors.Newf(xerrors.CodeInvalidArgument,
			"node %s: %q is not a contract address", nodeID, data.ContractAddress)
	}
	args, err := compile.ParseArguments(nodeID, data.ABI, data.Function, data.Args)
	if err != nil {
		return false, err
	}
	outputs, err := e.reader.ReadContract(ctx, common.HexToAddress(data.ContractAddress), data.ABI, data.Function, args...)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeChainFailure, err,
			fmt.Sprintf("node %s: call %s", nodeID, data.Function))
	}
	if len(outputs) == 0 {
		return false, xerrors.Newf(CodeNonNumericCompare,
			"node %s: %s returned nothing to compare", nodeID, data.Function)
	}
	return compareValues(nodeID, outputs[0], data.Operator, data.CompareValue)
}

// compareValues applies the guard operator to a view-function return value
// and the user-entered threshold. Both sides must be integer-like for
// ordering operators; inequality additionally accepts a plain string compare.
func compareValues(nodeID string, returned any, op strategy.Comparator, threshold string) (bool, error) {
	left, leftOK := toBigInt(returned)
	right, rightOK := new(big.Int).SetString(threshold, 10)
	if leftOK && rightOK {
		return compareIntegers(left, op, right), nil
	}
	if op == strategy.CompareNEQ {
		return fmt.Sprintf("%v", returned) != threshold, nil
	}
	return false, xerrors.Newf(CodeNonNumericCompare,
		"node %s: cannot order %T against %q", nodeID, returned, threshold)
}

func compareIntegers(left *big.Int, op strategy.Comparator, right *big.Int) bool {
	cmp := left.Cmp(right)
	switch op {
	case strategy.CompareGT:
		return cmp > 0
	case strategy.CompareGTE:
		return cmp >= 0
	case strategy.CompareLT:
		return cmp < 0
	case strategy.CompareLTE:
		return cmp <= 0
	case strategy.CompareNEQ:
		return cmp != 0
	}
	return false
}

// toBigInt widens whatever the abi decoder produced into a big integer.
func toBigInt(value any) (*big.Int, bool) {
	switch v := value.(type) {
	case *big.Int:
		return v, v != nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case int8:
		return big.NewInt(int64(v)), true
	case int16:
		return big.NewInt(int64(v)), true
	case int32:
		return big.NewInt(int64(v)), true
	case int64:
		return big.NewInt(v), true
	case int:
		return big.NewInt(int64(v)), true
	}
	return nil, false
}
