package strategy

// unrankedSentinel sorts nodes without a previous sequence number behind every
// node that already has one, so incremental edits keep the user's ordering.
const unrankedSentinel = 1 << 30

// Order recomputes sequence numbers for the snapshot via a breadth-first
// topological sort seeded at the wallet root. The wallet is always 0 and
// reachable nodes count up from 1 in visitation order. Nodes not reachable
// from the wallet (including members of a cycle, whose in-degree never drops
// to zero) are left without a number and thus outside any plan.
//
// Whenever several nodes are ready at once they are visited in order of their
// previous sequence number, so re-running the orderer on an unchanged graph
// is a fixpoint.
func Order(s *Snapshot) error {
	wallet, err := s.Wallet()
	if err != nil {
		return err
	}

	previous := make(map[string]int, len(s.Nodes))
	for i := range s.Nodes {
		node := &s.Nodes[i]
		if node.SequenceNumber != nil {
			previous[node.ID] = *node.SequenceNumber
		} else {
			previous[node.ID] = unrankedSentinel
		}
		node.SequenceNumber = nil
	}

	adjacency := s.outgoing()
	degrees := s.inDegrees()

	frontier := []string{wallet.ID}
	next := 0
	for len(frontier) > 0 {
		// Pop the frontier entry with the smallest previous rank; ties keep
		// insertion order.
		best := 0
		for i := 1; i < len(frontier); i++ {
			if previous[frontier[i]] < previous[frontier[best]] {
				best = i
			}
		}
		id := frontier[best]
		frontier = append(frontier[:best], frontier[best+1:]...)

		node := s.Node(id)
		seq := next
		node.SequenceNumber = &seq
		next++

		for _, target := range adjacency[id] {
			if s.Node(target) == nil {
				continue
			}
			degrees[target]--
			if degrees[target] == 0 && target != wallet.ID {
				frontier = append(frontier, target)
			}
		}
	}
	return nil
}

// AppendUnranked assigns display ranks after the current maximum to nodes the
// orderer left without a number, so freshly added, still-disconnected nodes
// keep a visible position in the side panel. These ranks are display-only:
// plan building re-derives reachability and ignores them.
func AppendUnranked(s *Snapshot) {
	max := 0
	for i := range s.Nodes {
		if seq := s.Nodes[i].Seq(); seq > max {
			max = seq
		}
	}
	for i := range s.Nodes {
		node := &s.Nodes[i]
		if node.SequenceNumber != nil || node.Kind() == KindWallet {
			continue
		}
		max++
		seq := max
		node.SequenceNumber = &seq
	}
}

// Reorder reassigns sequence numbers 1..N directly from a user-supplied total
// order of node ids, bypassing topological recomputation. The graph's first
// hop is forced consistent with the new order: every edge terminating at the
// new first node is removed and a single wallet -> first edge is added.
func Reorder(s *Snapshot, order []string) error {
	wallet, err := s.Wallet()
	if err != nil {
		return err
	}

	for _, id := range order {
		if node := s.Node(id); node == nil || node.Kind() == KindWallet {
			return ErrUnknownNode
		}
	}

	zero := 0
	wallet.SequenceNumber = &zero
	for rank, id := range order {
		seq := rank + 1
		s.Node(id).SequenceNumber = &seq
	}

	if len(order) == 0 {
		return nil
	}
	first := order[0]
	kept := s.Edges[:0]
	for _, edge := range s.Edges {
		if edge.Target == first {
			continue
		}
		kept = append(kept, edge)
	}
	s.Edges = append(kept, Edge{Source: wallet.ID, Target: first})
	return nil
}
