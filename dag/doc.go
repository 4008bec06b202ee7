// Package dag models, validates and executes workflow graphs.
//
// A Graph is a list of typed nodes (task, gate, fanout, fanin, collect) and
// the edges between them. Graphs are decoded from JSON or YAML, checked by
// Validate and then either executed by an Engine or handed to a compiler.
//
// The Engine runs a graph in topological batches: every node whose
// predecessors have finished runs concurrently, and batch k+1 never starts
// before batch k has settled. Node semantics are delegated to a TaskRunner.
//
//	g, err := dag.LoadFile("ci.yml")
//	if _, err := dag.ValidateGraph(g); err != nil { ... }
//	res, err := dag.NewEngine().Execute(ctx, g, runner)
package dag
