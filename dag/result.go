package dag

import "time"

// Status is the outcome of a node within a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result holds the outcome of a graph execution.
type Result struct {
	RunID string
	Graph string
	// Batches lists the nodes dispatched per batch, in dispatch order.
	Batches  [][]NodeID
	Nodes    map[NodeID]NodeResult
	Duration time.Duration

	skipOrder []NodeID
}

// NodeResult holds the outcome of a single node.
type NodeResult struct {
	ID       NodeID
	Kind     Kind
	Status   Status
	Batch    int
	Attempts int
	// Gate is the evaluated condition; nil for other kinds.
	Gate     *bool
	Duration time.Duration
	Error    error
}

func (r *Result) record(nr NodeResult) {
	r.Nodes[nr.ID] = nr
	if nr.Status == StatusSkipped {
		r.skipOrder = append(r.skipOrder, nr.ID)
	}
}

func newResult(runID, graph string) *Result {
	return &Result{
		RunID: runID,
		Graph: graph,
		Nodes: make(map[NodeID]NodeResult),
	}
}

// Order flattens Batches into dispatch order.
func (r *Result) Order() []NodeID {
	var out []NodeID
	for _, b := range r.Batches {
		out = append(out, b...)
	}
	return out
}

// WithStatus returns the dispatched or skipped nodes in the given status,
// ordered by batch.
func (r *Result) WithStatus(status Status) []NodeID {
	var out []NodeID
	for batch := range r.Batches {
		for _, id := range r.nodesInBatch(batch) {
			if r.Nodes[id].Status == status {
				out = append(out, id)
			}
		}
	}
	return out
}

// Completed returns the nodes that finished successfully.
func (r *Result) Completed() []NodeID { return r.WithStatus(StatusCompleted) }

// Skipped returns the nodes skipped behind false gates.
func (r *Result) Skipped() []NodeID { return r.WithStatus(StatusSkipped) }

// Failed reports whether any node failed.
func (r *Result) Failed() bool {
	for _, nr := range r.Nodes {
		if nr.Status == StatusFailed {
			return true
		}
	}
	return false
}

// nodesInBatch returns dispatched nodes of the batch followed by the nodes
// skipped when it resolved.
func (r *Result) nodesInBatch(batch int) []NodeID {
	out := append([]NodeID(nil), r.Batches[batch]...)
	for _, id := range r.skipOrder {
		if r.Nodes[id].Batch == batch {
			out = append(out, id)
		}
	}
	return out
}
