// Package simulator replays a graph without doing any work.
//
// A Simulator walks the graph batch by batch like dag.Engine, but tasks only
// wait a fixed delay, gates flip a biased coin and collect nodes report that
// they are waiting before completing. Every step is recorded as an Event.
// Node failures, including panics from injected hooks, become node_error
// events and the simulation carries on.
//
// Events within a batch are ordered deterministically: batch_start, every
// node_start in batch order, each node's result events in batch order, then
// batch_complete. With a fixed seed the whole log is reproducible.
package simulator
