package compile

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "StratFlow-Chain/internal/errors"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string into base units at the
// given precision. "1.5" at 18 decimals becomes 1.5e18. Anything that is not
// a non-negative number, or that carries more fractional digits than the
// asset supports, is rejected.
func ParseAmount(nodeID, amount string, decimals int) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, invalidAmount(nodeID, amount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, invalidAmount(nodeID, amount)
	}
	if value.IsNegative() {
		return nil, invalidAmount(nodeID, amount)
	}
	shifted := value.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, invalidAmount(nodeID, amount)
	}
	return shifted.BigInt(), nil
}

func invalidAmount(nodeID, amount string) error {
	return xerrors.New(CodeInvalidAmount,
		fmt.Sprintf("node %s has invalid amount %q", nodeID, amount),
		xerrors.WithMetadata("node_id", nodeID))
}
