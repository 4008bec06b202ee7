// Package diagram renders a graph as mermaid flowchart text.
package diagram

import (
	"fmt"
	"strings"

	"github.com/kbukum/dagflow/compiler"
	"github.com/kbukum/dagflow/dag"
)

// Direction is the flowchart orientation.
type Direction string

const (
	TopDown   Direction = "TD"
	LeftRight Direction = "LR"
)

type options struct {
	direction Direction
}

// Option configures Compile.
type Option func(*options)

// WithDirection sets the flowchart orientation. Default TopDown.
func WithDirection(d Direction) Option { return func(o *options) { o.direction = d } }

// Compile renders g: a header line, one line per edge (dashed for never
// edges), then one shape line per non-task node.
func Compile(g *dag.Graph, opts ...Option) (string, error) {
	o := options{direction: TopDown}
	for _, opt := range opts {
		opt(&o)
	}
	if o.direction != TopDown && o.direction != LeftRight {
		return "", compiler.Errorf(compiler.PhaseFormatting, string(o.direction), "unknown direction %q", o.direction)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "graph %s\n", o.direction)
	for _, e := range g.Edges {
		arrow := "-->"
		if e.Condition == dag.ConditionNever {
			arrow = "-.->"
		}
		fmt.Fprintf(&b, "  %s %s %s\n", e.From, arrow, e.To)
	}
	for _, n := range g.Nodes {
		if line := shape(n); line != "" {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String(), nil
}

func shape(n dag.Node) string {
	id := n.NodeID()
	switch n.Kind() {
	case dag.KindGate:
		return fmt.Sprintf("%s{%s}", id, id)
	case dag.KindFanout, dag.KindFanin:
		return fmt.Sprintf("%s((%s))", id, id)
	case dag.KindCollect:
		return fmt.Sprintf("%s[/%s/]", id, id)
	default:
		return ""
	}
}
