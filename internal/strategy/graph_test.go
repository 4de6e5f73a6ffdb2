package strategy

import (
	"testing"
)

const sampleDocument = `{
  "name": "yield loop",
  "nodes": [
    {"id": "w", "type": "wallet", "position": {"x": 0, "y": 0}, "data": {"label": "Wallet"}},
    {"id": "g", "type": "balance-guard", "position": {"x": 120, "y": 0}, "data": {"targetAddress": "0x2222222222222222222222222222222222222222", "operator": ">=", "compareValue": "1"}},
    {"id": "t", "type": "transfer", "position": {"x": 240, "y": 0}, "data": {"asset": "ETH", "amount": "0.5", "recipientAddress": "0x1111111111111111111111111111111111111111"}}
  ],
  "edges": [
    {"source": "w", "target": "g"},
    {"source": "g", "target": "t"}
  ]
}`

func TestDecodeDispatchesVariants(t *testing.T) {
	snap, err := Decode([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Name != "yield loop" {
		t.Fatalf("unexpected name %q", snap.Name)
	}
	guard, ok := snap.Node("g").Data.(*BalanceGuardData)
	if !ok {
		t.Fatalf("expected balance-guard payload, got %T", snap.Node("g").Data)
	}
	if guard.Operator != CompareGTE || guard.CompareValue != "1" {
		t.Fatalf("unexpected guard payload: %+v", guard)
	}
	transfer, ok := snap.Node("t").Data.(*TransferData)
	if !ok {
		t.Fatalf("expected transfer payload, got %T", snap.Node("t").Data)
	}
	if transfer.Amount != "0.5" || transfer.Asset != "ETH" {
		t.Fatalf("unexpected transfer payload: %+v", transfer)
	}
}

func TestDecodeRejectsUnknownNodeType(t *testing.T) {
	_, err := Decode([]byte(`{"nodes": [{"id": "x", "type": "time-machine", "data": {}}], "edges": []}`))
	if err == nil {
		t.Fatal("expected unknown node type to be rejected")
	}
}

func TestRoundTripPreservesGraphAndOrder(t *testing.T) {
	snap, err := Decode([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Order(snap); err != nil {
		t.Fatalf("order: %v", err)
	}

	encoded, err := snap.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	reloaded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode round-trip: %v", err)
	}

	if len(reloaded.Nodes) != len(snap.Nodes) || len(reloaded.Edges) != len(snap.Edges) {
		t.Fatalf("round-trip changed graph shape: %d/%d nodes, %d/%d edges",
			len(reloaded.Nodes), len(snap.Nodes), len(reloaded.Edges), len(snap.Edges))
	}
	if err := Order(reloaded); err != nil {
		t.Fatalf("order reloaded: %v", err)
	}
	for i := range snap.Nodes {
		id := snap.Nodes[i].ID
		if reloaded.Node(id) == nil {
			t.Fatalf("node %s lost in round-trip", id)
		}
		if reloaded.Node(id).Seq() != snap.Nodes[i].Seq() {
			t.Fatalf("node %s changed rank after round-trip: %d -> %d", id, snap.Nodes[i].Seq(), reloaded.Node(id).Seq())
		}
	}
	if string(reloaded.Node("w").Position) == "" {
		t.Fatal("expected canvas position to pass through")
	}
}

func TestValidatorTransferRequiresRecipient(t *testing.T) {
	node := &Node{ID: "t", Data: &TransferData{Asset: "ETH", Amount: "1"}}
	if IsConfigured(node) {
		t.Fatal("transfer without recipient should not be configured")
	}
	node.Data.(*TransferData).RecipientAddress = "0x1111111111111111111111111111111111111111"
	if !IsConfigured(node) {
		t.Fatal("fully populated transfer should be configured")
	}
}

func TestValidatorVariants(t *testing.T) {
	cases := []struct {
		name string
		data NodeData
		want bool
	}{
		{"wallet", &WalletData{}, true},
		{"custom missing function", &CustomContractData{ContractAddress: "0x1", ABI: "[]"}, false},
		{"custom complete", &CustomContractData{ContractAddress: "0x1", ABI: "[]", Function: "ping"}, true},
		{"conditional unverified abi", &ConditionalData{ContractAddress: "0x1", ABI: "[]", Function: "f", Operator: CompareGT, CompareValue: "1"}, false},
		{"conditional complete", &ConditionalData{ContractAddress: "0x1", ABI: "[]", ABIVerified: true, Function: "f", Operator: CompareGT, CompareValue: "1"}, true},
		{"guard missing operator", &BalanceGuardData{TargetAddress: "0x1", CompareValue: "1"}, false},
		{"guard complete", &BalanceGuardData{TargetAddress: "0x1", Operator: CompareLT, CompareValue: "1"}, true},
		{"lending missing amount", &LendingData{Action: "supply", Asset: "USDC"}, false},
		{"lending supply", &LendingData{Action: "supply", Asset: "USDC", Amount: "100"}, true},
		{"lending liquidity pair", &LendingData{Action: "addLiquidity", TokenA: "USDC", TokenB: "WETH"}, true},
		{"swap missing to-asset", &SwapData{Action: "swap", FromAsset: "ETH", Amount: "1"}, false},
		{"swap complete", &SwapData{Action: "swap", FromAsset: "ETH", ToAsset: "USDC", Amount: "1"}, true},
	}
	for _, tc := range cases {
		node := &Node{ID: tc.name, Data: tc.data}
		if got := IsConfigured(node); got != tc.want {
			t.Fatalf("%s: expected configured=%v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestFirstUnconfiguredReportsEarliestStep(t *testing.T) {
	snap := &Snapshot{
		Nodes: []Node{
			walletNode("w"),
			{ID: "a", Data: &TransferData{Label: "Pay rent", Asset: "ETH", Amount: "1"}},
			{ID: "b", Data: &TransferData{Asset: "ETH"}},
		},
		Edges: []Edge{
			{Source: "w", Target: "a"},
			{Source: "a", Target: "b"},
		},
	}
	if err := Order(snap); err != nil {
		t.Fatalf("order: %v", err)
	}
	first := FirstUnconfigured(snap)
	if first == nil || first.ID != "a" {
		t.Fatalf("expected node a reported first, got %+v", first)
	}
	if first.Label() != "Pay rent" {
		t.Fatalf("expected label to surface, got %q", first.Label())
	}
}
