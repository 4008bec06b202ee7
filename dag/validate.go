package dag

import (
	"strings"

	"github.com/kbukum/dagflow/errors"
)

// ValidateOption configures Validate.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	collectAll bool
}

// WithCollectAll runs every check and returns all violations as
// ValidationErrors instead of stopping at the first.
func WithCollectAll() ValidateOption {
	return func(o *validateOptions) { o.collectAll = true }
}

// ValidationErrors aggregates the violations found with WithCollectAll.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each violation to errors.Is and errors.As.
func (v ValidationErrors) Unwrap() []error { return v }

type check func(idx *Index, edges []Edge) []error

// Validate checks the structural invariants of a graph in a fixed order:
// unique ids, edge references, self loops, gate conditions and cycles. The
// first failing check ends validation unless WithCollectAll is given.
func Validate(nodes []Node, edges []Edge, opts ...ValidateOption) error {
	o := &validateOptions{}
	for _, opt := range opts {
		opt(o)
	}

	idx := NewIndex(nodes, edges)
	checks := []check{
		checkDuplicates(nodes),
		checkEdgeReferences,
		checkSelfLoops,
		checkGateConditions,
		checkCycles,
	}

	var all ValidationErrors
	for _, c := range checks {
		errs := c(idx, edges)
		if len(errs) == 0 {
			continue
		}
		if !o.collectAll {
			return errs[0]
		}
		all = append(all, errs...)
	}
	if len(all) > 0 {
		return all
	}
	return nil
}

// ValidateGraph validates g and returns the same pointer on success.
func ValidateGraph(g *Graph, opts ...ValidateOption) (*Graph, error) {
	if err := Validate(g.Nodes, g.Edges, opts...); err != nil {
		return nil, err
	}
	return g, nil
}

func checkDuplicates(nodes []Node) check {
	return func(_ *Index, _ []Edge) []error {
		var errs []error
		seen := make(map[NodeID]bool, len(nodes))
		reported := make(map[NodeID]bool)
		for _, n := range nodes {
			if n == nil {
				continue
			}
			id := n.NodeID()
			if seen[id] && !reported[id] {
				errs = append(errs, errors.DuplicateNode(string(id)))
				reported[id] = true
			}
			seen[id] = true
		}
		return errs
	}
}

func checkEdgeReferences(idx *Index, edges []Edge) []error {
	var errs []error
	for _, e := range edges {
		if !idx.Has(e.From) {
			errs = append(errs, errors.MissingNode(string(e.From), string(e.To), string(e.From)))
		}
		if !idx.Has(e.To) {
			errs = append(errs, errors.MissingNode(string(e.From), string(e.To), string(e.To)))
		}
	}
	return errs
}

func checkSelfLoops(_ *Index, edges []Edge) []error {
	var errs []error
	for _, e := range edges {
		if e.From == e.To {
			errs = append(errs, errors.SelfLoop(string(e.From)))
		}
	}
	return errs
}

func checkGateConditions(idx *Index, _ []Edge) []error {
	var errs []error
	for _, id := range idx.IDs() {
		n, _ := idx.Node(id)
		if n.Kind() != KindGate {
			continue
		}
		for _, e := range idx.Outgoing(id) {
			if e.Condition == ConditionNever {
				errs = append(errs, errors.GateNever(string(id), string(e.To)))
			}
		}
	}
	return errs
}

const (
	white = iota
	grey
	black
)

// checkCycles runs a three-colour depth-first search seeded from every node
// in declaration order so disconnected components are covered. It reports
// one cycle, as the path that closes it. Self loops are left to
// checkSelfLoops.
func checkCycles(idx *Index, _ []Edge) []error {
	colour := make(map[NodeID]int, len(idx.IDs()))
	var stack []NodeID

	var visit func(id NodeID) []string
	visit = func(id NodeID) []string {
		colour[id] = grey
		stack = append(stack, id)
		for _, e := range idx.Outgoing(id) {
			next := e.To
			if next == id || !idx.Has(next) {
				continue
			}
			switch colour[next] {
			case grey:
				return cyclePath(stack, next)
			case white:
				if path := visit(next); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
		return nil
	}

	for _, id := range idx.IDs() {
		if colour[id] != white {
			continue
		}
		if path := visit(id); path != nil {
			return []error{errors.Cycle(path)}
		}
	}
	return nil
}

func cyclePath(stack []NodeID, start NodeID) []string {
	var path []string
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == start {
			for _, id := range stack[i:] {
				path = append(path, string(id))
			}
			break
		}
	}
	return append(path, string(start))
}
