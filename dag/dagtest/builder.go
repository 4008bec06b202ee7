package dagtest

import (
	"time"

	"github.com/kbukum/dagflow/dag"
)

// GraphBuilder provides a fluent API for constructing test graphs. Ids are
// converted with dag.MustNodeID, so invalid literals panic.
type GraphBuilder struct {
	g           dag.Graph
	triggersSet bool
}

// NewGraph starts a graph named name at version 1.0.0 with a push trigger
// on main.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{g: dag.Graph{
		Name:     name,
		Version:  "1.0.0",
		Triggers: []dag.Trigger{dag.Push([]string{"main"}, nil)},
	}}
}

// Task adds a task running a shell script.
func (b *GraphBuilder) Task(id, run string) *GraphBuilder {
	return b.Node(dag.Task(dag.MustNodeID(id), dag.TaskConfig{Run: run}))
}

// Uses adds a task invoking an action.
func (b *GraphBuilder) Uses(id, uses string) *GraphBuilder {
	return b.Node(dag.Task(dag.MustNodeID(id), dag.TaskConfig{Uses: uses}))
}

// Gate adds a gate node.
func (b *GraphBuilder) Gate(id, condition string) *GraphBuilder {
	return b.Node(dag.Gate(dag.MustNodeID(id), condition))
}

// Fanout adds a fanout node.
func (b *GraphBuilder) Fanout(id string) *GraphBuilder {
	return b.Node(dag.Fanout(dag.MustNodeID(id)))
}

// Fanin adds a fanin node.
func (b *GraphBuilder) Fanin(id string) *GraphBuilder {
	return b.Node(dag.Fanin(dag.MustNodeID(id)))
}

// Collect adds a collect node.
func (b *GraphBuilder) Collect(id, formID string, timeout time.Duration) *GraphBuilder {
	return b.Node(dag.Collect(dag.MustNodeID(id), formID, timeout))
}

// Node adds an already built node.
func (b *GraphBuilder) Node(n dag.Node) *GraphBuilder {
	b.g.Nodes = append(b.g.Nodes, n)
	return b
}

// Edge adds an edge; the condition defaults to always.
func (b *GraphBuilder) Edge(from, to string, condition ...dag.Condition) *GraphBuilder {
	b.g.Edges = append(b.g.Edges, dag.Connect(dag.NodeID(from), dag.NodeID(to), condition...))
	return b
}

// Chain connects ids in sequence with always edges.
func (b *GraphBuilder) Chain(ids ...string) *GraphBuilder {
	for i := 1; i < len(ids); i++ {
		b.Edge(ids[i-1], ids[i])
	}
	return b
}

// Trigger replaces the default trigger list on first use and appends after.
func (b *GraphBuilder) Trigger(t dag.Trigger) *GraphBuilder {
	if !b.triggersSet {
		b.g.Triggers = nil
		b.triggersSet = true
	}
	b.g.Triggers = append(b.g.Triggers, t)
	return b
}

// Defaults sets graph-wide defaults.
func (b *GraphBuilder) Defaults(d *dag.Defaults) *GraphBuilder {
	b.g.Defaults = d
	return b
}

// Build returns the constructed Graph.
func (b *GraphBuilder) Build() *dag.Graph {
	g := b.g
	return &g
}
