package strategy

import "strings"

// IsConfigured reports whether a node carries everything its compiler needs.
// It is a pure function of the node payload; no I/O is performed.
func IsConfigured(n *Node) bool {
	if n == nil || n.Data == nil {
		return false
	}
	switch data := n.Data.(type) {
	case *WalletData:
		return true
	case *TransferData:
		return filled(data.Amount) && filled(data.Asset) && filled(data.RecipientAddress)
	case *CustomContractData:
		return filled(data.ContractAddress) && filled(data.ABI) && filled(data.Function)
	case *ConditionalData:
		return filled(data.ContractAddress) && filled(data.ABI) && data.ABIVerified &&
			filled(data.Function) && data.Operator.Valid() && filled(data.CompareValue)
	case *BalanceGuardData:
		return filled(data.TargetAddress) && data.Operator.Valid() && filled(data.CompareValue)
	case *LendingData:
		if !filled(data.Action) {
			return false
		}
		if filled(data.Asset) && filled(data.Amount) {
			return true
		}
		// Liquidity actions carry a pair instead of a single asset.
		return filled(data.TokenA) && filled(data.TokenB)
	case *SwapData:
		if !filled(data.Action) {
			return false
		}
		if filled(data.FromAsset) && filled(data.ToAsset) && filled(data.Amount) {
			return true
		}
		return filled(data.TokenA) && filled(data.TokenB)
	}
	return false
}

// FirstUnconfigured returns the first reachable, sequence-numbered node that
// is not fully configured, in execution order. It returns nil when the whole
// strategy is executable.
func FirstUnconfigured(s *Snapshot) *Node {
	var worst *Node
	for i := range s.Nodes {
		node := &s.Nodes[i]
		if node.SequenceNumber == nil || node.Kind() == KindWallet {
			continue
		}
		if IsConfigured(node) {
			continue
		}
		if worst == nil || node.Seq() < worst.Seq() {
			worst = node
		}
	}
	return worst
}

func filled(value string) bool {
	return strings.TrimSpace(value) != ""
}
