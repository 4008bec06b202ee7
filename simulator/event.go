package simulator

import (
	"context"
	"time"

	"github.com/kbukum/dagflow/dag"
)

// EventKind names a simulation step.
type EventKind string

const (
	EventBatchStart         EventKind = "batch_start"
	EventNodeStart          EventKind = "node_start"
	EventNodeComplete       EventKind = "node_complete"
	EventNodeError          EventKind = "node_error"
	EventGateEvaluated      EventKind = "gate_evaluated"
	EventCollectWaiting     EventKind = "collect_waiting"
	EventBatchComplete      EventKind = "batch_complete"
	EventSimulationComplete EventKind = "simulation_complete"
)

// Event is one entry of the simulation log.
type Event struct {
	Seq   int        `json:"seq"`
	Kind  EventKind  `json:"kind"`
	RunID string     `json:"runId"`
	Batch int        `json:"batch"`
	Node  dag.NodeID `json:"node,omitempty"`
	// NodeKind is set on node events.
	NodeKind dag.Kind `json:"nodeKind,omitempty"`
	// Passed is the gate outcome on gate_evaluated.
	Passed *bool  `json:"passed,omitempty"`
	FormID string `json:"formId,omitempty"`
	Error  string `json:"error,omitempty"`
	// Nodes lists the batch on batch events and the completed nodes on
	// simulation_complete.
	Nodes []dag.NodeID `json:"nodes,omitempty"`
	Time  time.Time    `json:"time"`
}

// EventSink receives events as they are appended to the log.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }
