// Package plan turns a strategy snapshot into the linear list of steps an
// execution attempt walks through. A plan is built once per attempt and never
// mutated afterwards.
package plan

import (
	"fmt"
	"sort"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
)

// Entry is one executable step with its assigned rank. The wallet node holds
// rank zero and is not part of the plan.
type Entry struct {
	Node *strategy.Node
	Seq  int
}

// Plan is an ordered list of configured, reachable steps. Sequence numbers
// are strictly increasing from 1 and every entry's predecessors in the graph
// appear earlier in the list.
type Plan struct {
	Strategy string
	Entries  []Entry
}

// Empty reports whether the plan has no executable steps.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Entries) == 0
}

// Build orders the snapshot and assembles the plan. The snapshot is ranked in
// place, so callers working from shared state should pass a clone. Every node
// that would be executed must pass configuration checks; the first failure
// aborts the build so the caller can surface the offending step to the user.
func Build(s *strategy.Snapshot) (*Plan, error) {
	if err := strategy.Order(s); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(s.Nodes))
	for i := range s.Nodes {
		node := &s.Nodes[i]
		if node.SequenceNumber == nil || node.Kind() == strategy.KindWallet {
			continue
		}
		if !strategy.IsConfigured(node) {
			return nil, xerrors.New(strategy.CodeStepNotConfigured,
				fmt.Sprintf("step %q is missing required fields", displayName(node)),
				xerrors.WithMetadata("node_id", node.ID))
		}
		entries = append(entries, Entry{Node: node, Seq: node.Seq()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	return &Plan{Strategy: s.Name, Entries: entries}, nil
}

func displayName(n *strategy.Node) string {
	if label := n.Label(); label != "" {
		return label
	}
	return n.ID
}
