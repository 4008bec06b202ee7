package dag

// GatePolicy decides what happens downstream of a gate that evaluates false.
type GatePolicy string

const (
	// GateSkip resolves the gate's outgoing edges as dead. Nodes whose
	// incoming edges are all dead are skipped, and the skip propagates.
	// Edges with ConditionNever are always dead.
	GateSkip GatePolicy = "skip"
	// GateBlock leaves the gate's successors unscheduled and unreported.
	GateBlock GatePolicy = "block"
)

// Scheduler hands out batches of ready nodes in topological order. It is not
// safe for concurrent use; the engine drives it between batches.
type Scheduler struct {
	idx       *Index
	policy    GatePolicy
	remaining map[NodeID]int
	live      map[NodeID]int
	ready     []NodeID
	scheduled map[NodeID]bool
}

// NewScheduler prepares a scheduler over g. The first batch holds every node
// without incoming edges, in declaration order.
func NewScheduler(g *Graph, policy GatePolicy) *Scheduler {
	if policy == "" {
		policy = GateSkip
	}
	idx := g.Index()
	s := &Scheduler{
		idx:       idx,
		policy:    policy,
		remaining: make(map[NodeID]int, len(idx.IDs())),
		live:      make(map[NodeID]int, len(idx.IDs())),
		scheduled: make(map[NodeID]bool, len(idx.IDs())),
	}
	for _, e := range g.Edges {
		s.remaining[e.To]++
	}
	for _, id := range idx.IDs() {
		if s.remaining[id] == 0 {
			s.ready = append(s.ready, id)
		}
	}
	return s
}

// Done reports whether no node is waiting to run.
func (s *Scheduler) Done() bool { return len(s.ready) == 0 }

// Next returns the current batch and clears it.
func (s *Scheduler) Next() []NodeID {
	batch := s.ready
	s.ready = nil
	for _, id := range batch {
		s.scheduled[id] = true
	}
	return batch
}

// Resolve records that id finished. passed is the gate outcome for gates
// and true for every other node. Successors whose dependencies are all
// resolved join the next batch; under GateSkip the nodes skipped as a
// consequence are returned in the order they were skipped.
func (s *Scheduler) Resolve(id NodeID, passed bool) []NodeID {
	if !passed && s.policy == GateBlock {
		return nil
	}
	var skipped []NodeID
	s.release(id, passed, &skipped)
	return skipped
}

func (s *Scheduler) release(id NodeID, passed bool, skipped *[]NodeID) {
	for _, e := range s.idx.Outgoing(id) {
		if !s.idx.Has(e.To) {
			continue
		}
		s.remaining[e.To]--
		if s.edgeLive(e, passed) {
			s.live[e.To]++
		}
		if s.remaining[e.To] != 0 {
			continue
		}
		if s.live[e.To] > 0 {
			s.ready = append(s.ready, e.To)
			continue
		}
		s.scheduled[e.To] = true
		*skipped = append(*skipped, e.To)
		s.release(e.To, false, skipped)
	}
}

func (s *Scheduler) edgeLive(e Edge, passed bool) bool {
	if s.policy == GateBlock {
		return true
	}
	return passed && e.Condition != ConditionNever
}

// Unscheduled returns the nodes that never ran nor were skipped, in
// declaration order. Under GateBlock these sit behind a false gate.
func (s *Scheduler) Unscheduled() []NodeID {
	var out []NodeID
	for _, id := range s.idx.IDs() {
		if !s.scheduled[id] {
			out = append(out, id)
		}
	}
	return out
}
