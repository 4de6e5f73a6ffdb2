package strategy

import (
	"encoding/json"

	xerrors "StratFlow-Chain/internal/errors"
)

// Edge is a directed relation between two node ids. It carries no payload.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Snapshot is one immutable view of a strategy graph. The editor owns the
// live graph; the engine only ever works on a snapshot taken at planning
// time, so concurrent edits cannot affect an in-flight attempt.
type Snapshot struct {
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

var (
	// ErrNoWalletNode is returned when the graph lacks a unique wallet root.
	ErrNoWalletNode = xerrors.New(CodeNoWalletNode, "strategy has no unique wallet node")
	// ErrUnknownNode is returned when an edge or reorder references a missing id.
	ErrUnknownNode = xerrors.New(xerrors.CodeInvalidArgument, "strategy references unknown node id")
)

const (
	CodeNoWalletNode      xerrors.Code = "NO_WALLET_NODE"
	CodeStepNotConfigured xerrors.Code = "STEP_NOT_CONFIGURED"
)

func init() {
	xerrors.Register(CodeNoWalletNode, xerrors.Attributes{
		Message:  "strategy has no unique wallet node",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeStepNotConfigured, xerrors.Attributes{
		Message:  "strategy step is not fully configured",
		Severity: xerrors.SeverityInfo,
	})
}

// Decode parses the persisted strategy document {nodes, edges, name}.
func Decode(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode strategy document")
	}
	return &snap, nil
}

// Encode renders the snapshot back to the persisted document shape.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Clone returns a deep copy. Node payloads are copied by re-encoding, which
// keeps the copy honest about what actually round-trips.
func (s *Snapshot) Clone() (*Snapshot, error) {
	raw, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) *Node {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// Wallet returns the single wallet-typed node, or ErrNoWalletNode when the
// root is absent or ambiguous.
func (s *Snapshot) Wallet() (*Node, error) {
	var found *Node
	for i := range s.Nodes {
		if s.Nodes[i].Kind() != KindWallet {
			continue
		}
		if found != nil {
			return nil, ErrNoWalletNode
		}
		found = &s.Nodes[i]
	}
	if found == nil {
		return nil, ErrNoWalletNode
	}
	return found, nil
}

// outgoing builds the adjacency list source id -> target ids, preserving edge
// declaration order.
func (s *Snapshot) outgoing() map[string][]string {
	adj := make(map[string][]string, len(s.Nodes))
	for _, edge := range s.Edges {
		adj[edge.Source] = append(adj[edge.Source], edge.Target)
	}
	return adj
}

// inDegrees counts incoming edges per node id, counting only edges whose
// endpoints both exist in the snapshot.
func (s *Snapshot) inDegrees() map[string]int {
	degrees := make(map[string]int, len(s.Nodes))
	for i := range s.Nodes {
		degrees[s.Nodes[i].ID] = 0
	}
	for _, edge := range s.Edges {
		if _, ok := degrees[edge.Target]; !ok {
			continue
		}
		if _, ok := degrees[edge.Source]; !ok {
			continue
		}
		degrees[edge.Target]++
	}
	return degrees
}
