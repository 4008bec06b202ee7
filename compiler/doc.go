// Package compiler holds what the graph compilers share: the Error type and
// the YAML/JSON serializers for their targets.
//
// The compilers live in subpackages:
//
//	cijob        CI job graph (jobs, needs, if, steps)
//	statemachine state machine (StartAt, Task, Choice, Parallel)
//	diagram      mermaid-style flowchart text
//
// No compiler validates its input. Run dag.ValidateGraph first.
package compiler
