package strategy

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the protocol variant of a node.
type Kind string

const (
	KindWallet         Kind = "wallet"
	KindLending        Kind = "lending-action"
	KindSwap           Kind = "swap-action"
	KindTransfer       Kind = "transfer"
	KindConditional    Kind = "conditional"
	KindBalanceGuard   Kind = "balance-guard"
	KindCustomContract Kind = "custom-contract"
)

// Comparator is the operator a guard or conditional step applies between the
// on-chain value and the user threshold.
type Comparator string

const (
	CompareGT  Comparator = ">"
	CompareGTE Comparator = ">="
	CompareLT  Comparator = "<"
	CompareLTE Comparator = "<="
	CompareNEQ Comparator = "!="
)

// Valid reports whether the comparator is one of the supported operators.
func (c Comparator) Valid() bool {
	switch c {
	case CompareGT, CompareGTE, CompareLT, CompareLTE, CompareNEQ:
		return true
	}
	return false
}

// NodeData is the variant-specific configuration payload of a node. Exactly
// one concrete type exists per Kind so compilers and validators can dispatch
// exhaustively instead of probing a loose field bag.
type NodeData interface {
	Kind() Kind
}

// WalletData is the root node payload. The account itself comes from the
// connected wallet at execution time; only the display label lives here.
type WalletData struct {
	Label string `json:"label,omitempty"`
}

func (WalletData) Kind() Kind { return KindWallet }

// TransferData configures a native or token transfer step.
type TransferData struct {
	Label            string `json:"label,omitempty"`
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	RecipientAddress string `json:"recipientAddress"`
}

func (TransferData) Kind() Kind { return KindTransfer }

// LendingData configures a lending protocol action. Liquidity actions carry a
// token pair instead of a single asset.
type LendingData struct {
	Label    string `json:"label,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Action   string `json:"action"`
	Asset    string `json:"asset,omitempty"`
	Amount   string `json:"amount,omitempty"`
	TokenA   string `json:"tokenA,omitempty"`
	TokenB   string `json:"tokenB,omitempty"`
}

func (LendingData) Kind() Kind { return KindLending }

// SwapData configures a swap protocol action.
type SwapData struct {
	Label     string `json:"label,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	Action    string `json:"action"`
	FromAsset string `json:"fromAsset,omitempty"`
	ToAsset   string `json:"toAsset,omitempty"`
	Amount    string `json:"amount,omitempty"`
	TokenA    string `json:"tokenA,omitempty"`
	TokenB    string `json:"tokenB,omitempty"`
}

func (SwapData) Kind() Kind { return KindSwap }

// ConditionalData configures a view-function comparison gate.
type ConditionalData struct {
	Label           string     `json:"label,omitempty"`
	ContractAddress string     `json:"contractAddress"`
	ABI             string     `json:"abi"`
	ABIVerified     bool       `json:"abiVerified"`
	Function        string     `json:"function"`
	Args            []string   `json:"args,omitempty"`
	Operator        Comparator `json:"operator"`
	CompareValue    string     `json:"compareValue"`
}

func (ConditionalData) Kind() Kind { return KindConditional }

// BalanceGuardData configures a native-balance comparison gate.
type BalanceGuardData struct {
	Label         string     `json:"label,omitempty"`
	TargetAddress string     `json:"targetAddress"`
	Operator      Comparator `json:"operator"`
	CompareValue  string     `json:"compareValue"`
}

func (BalanceGuardData) Kind() Kind { return KindBalanceGuard }

// CustomContractData configures an arbitrary contract invocation.
type CustomContractData struct {
	Label           string   `json:"label,omitempty"`
	ContractAddress string   `json:"contractAddress"`
	ABI             string   `json:"abi"`
	Function        string   `json:"function"`
	Args            []string `json:"args,omitempty"`
}

func (CustomContractData) Kind() Kind { return KindCustomContract }

// Node is one step of a strategy. SequenceNumber is assigned by the orderer;
// nil means the node is not reachable from the wallet root yet. Position is
// owned by the canvas and passes through untouched.
type Node struct {
	ID             string
	Data           NodeData
	Position       json.RawMessage
	SequenceNumber *int
}

// Kind returns the protocol variant of the node.
func (n *Node) Kind() Kind {
	if n == nil || n.Data == nil {
		return ""
	}
	return n.Data.Kind()
}

// Label returns the display label carried by the variant payload.
func (n *Node) Label() string {
	switch data := n.Data.(type) {
	case *WalletData:
		return data.Label
	case *TransferData:
		return data.Label
	case *LendingData:
		return data.Label
	case *SwapData:
		return data.Label
	case *ConditionalData:
		return data.Label
	case *BalanceGuardData:
		return data.Label
	case *CustomContractData:
		return data.Label
	}
	return ""
}

// Seq returns the assigned sequence number, or -1 when unassigned.
func (n *Node) Seq() int {
	if n == nil || n.SequenceNumber == nil {
		return -1
	}
	return *n.SequenceNumber
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     Kind            `json:"type"`
	Position json.RawMessage `json:"position,omitempty"`
	Data     json.RawMessage `json:"data"`
	Sequence *int            `json:"sequenceNumber,omitempty"`
}

// MarshalJSON renders the persisted node shape {id, type, position, data}.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Data == nil {
		return nil, fmt.Errorf("node %s has no data payload", n.ID)
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Type:     n.Data.Kind(),
		Position: n.Position,
		Data:     data,
		Sequence: n.SequenceNumber,
	})
}

// UnmarshalJSON dispatches the data payload into the variant matching the
// node type. Unknown types are rejected rather than decoded loosely.
func (n *Node) UnmarshalJSON(raw []byte) error {
	var wire nodeJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	var data NodeData
	switch wire.Type {
	case KindWallet:
		data = &WalletData{}
	case KindTransfer:
		data = &TransferData{}
	case KindLending:
		data = &LendingData{}
	case KindSwap:
		data = &SwapData{}
	case KindConditional:
		data = &ConditionalData{}
	case KindBalanceGuard:
		data = &BalanceGuardData{}
	case KindCustomContract:
		data = &CustomContractData{}
	default:
		return fmt.Errorf("node %s has unsupported type %q", wire.ID, wire.Type)
	}
	if len(wire.Data) > 0 {
		if err := json.Unmarshal(wire.Data, data); err != nil {
			return fmt.Errorf("decode %s node data: %w", wire.Type, err)
		}
	}

	n.ID = wire.ID
	n.Data = data
	n.Position = wire.Position
	n.SequenceNumber = wire.Sequence
	return nil
}
