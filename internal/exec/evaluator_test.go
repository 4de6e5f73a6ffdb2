package exec

import (
	"context"
	"math/big"
	"testing"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
)

const viewABI = `[{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

func conditionalNode(op strategy.Comparator, compareValue string) *strategy.Node {
	return &strategy.Node{ID: "c", Data: &strategy.ConditionalData{
		ContractAddress: recipient,
		ABI:             viewABI,
		ABIVerified:     true,
		Function:        "totalSupply",
		Operator:        op,
		CompareValue:    compareValue,
	}}
}

func TestEvaluateConditionalIntegerCompare(t *testing.T) {
	e := NewEvaluator(&fakeReader{outputs: []any{big.NewInt(100)}})

	cases := []struct {
		op    strategy.Comparator
		value string
		want  bool
	}{
		{strategy.CompareGT, "99", true},
		{strategy.CompareGT, "100", false},
		{strategy.CompareGTE, "100", true},
		{strategy.CompareLT, "100", false},
		{strategy.CompareLTE, "100", true},
		{strategy.CompareNEQ, "100", false},
		{strategy.CompareNEQ, "101", true},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(context.Background(), conditionalNode(tc.op, tc.value))
		if err != nil {
			t.Fatalf("%s %s: %v", tc.op, tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("100 %s %s: got %v, want %v", tc.op, tc.value, got, tc.want)
		}
	}
}

func TestEvaluateConditionalNonNumeric(t *testing.T) {
	e := NewEvaluator(&fakeReader{outputs: []any{"mainnet"}})

	// Ordering operators cannot compare a string.
	_, err := e.Evaluate(context.Background(), conditionalNode(strategy.CompareGT, "1"))
	if xerrors.CodeOf(err) != CodeNonNumericCompare {
		t.Fatalf("expected NON_NUMERIC_COMPARE, got %v", err)
	}

	// Inequality falls back to a string compare.
	got, err := e.Evaluate(context.Background(), conditionalNode(strategy.CompareNEQ, "testnet"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got {
		t.Fatal("expected mainnet != testnet")
	}
}

func TestEvaluateBalanceGuardUsesNativeUnits(t *testing.T) {
	// 1.5 ETH on hand, threshold entered as whole units.
	balance, _ := new(big.Int).SetString("1500000000000000000", 10)
	e := NewEvaluator(&fakeReader{balance: balance})

	node := &strategy.Node{ID: "g", Data: &strategy.BalanceGuardData{
		TargetAddress: recipient, Operator: strategy.CompareGTE, CompareValue: "1",
	}}
	got, err := e.Evaluate(context.Background(), node)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !got {
		t.Fatal("expected 1.5 ETH to satisfy a 1 ETH floor")
	}

	node.Data.(*strategy.BalanceGuardData).CompareValue = "2"
	got, err = e.Evaluate(context.Background(), node)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got {
		t.Fatal("expected 1.5 ETH to miss a 2 ETH floor")
	}
}

func TestEvaluateNonGuardAlwaysPasses(t *testing.T) {
	e := NewEvaluator(&fakeReader{})
	got, err := e.Evaluate(context.Background(), &strategy.Node{ID: "t", Data: &strategy.TransferData{}})
	if err != nil || !got {
		t.Fatalf("expected pass, got %v %v", got, err)
	}
}
