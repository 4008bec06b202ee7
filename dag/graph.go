package dag

import (
	"time"

	"github.com/kbukum/dagflow/errors"
)

// Condition qualifies an edge.
type Condition string

const (
	ConditionAlways Condition = "always"
	ConditionExpr   Condition = "expr"
	ConditionNever  Condition = "never"
)

// Edge is a dependency: To runs after From.
type Edge struct {
	From      NodeID    `json:"from" validate:"nodeid"`
	To        NodeID    `json:"to" validate:"nodeid"`
	Condition Condition `json:"condition" validate:"edgecond"`
}

// Connect builds an edge. The condition defaults to ConditionAlways.
func Connect(from, to NodeID, condition ...Condition) Edge {
	c := ConditionAlways
	if len(condition) > 0 && condition[0] != "" {
		c = condition[0]
	}
	return Edge{From: from, To: to, Condition: c}
}

// TriggerKind names what starts a graph.
type TriggerKind string

const (
	TriggerPush        TriggerKind = "push"
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerSchedule    TriggerKind = "schedule"
)

// Trigger is metadata describing when a graph runs. Branches and Paths apply
// to push, Branches to pull_request and Cron to schedule.
type Trigger struct {
	Kind     TriggerKind `json:"kind" validate:"oneof=push pull_request schedule"`
	Branches []string    `json:"branches,omitempty"`
	Paths    []string    `json:"paths,omitempty"`
	Cron     string      `json:"cron,omitempty" validate:"omitempty,cron"`
}

// Push builds a push trigger.
func Push(branches, paths []string) Trigger {
	return Trigger{Kind: TriggerPush, Branches: branches, Paths: paths}
}

// PullRequest builds a pull_request trigger.
func PullRequest(branches []string) Trigger {
	return Trigger{Kind: TriggerPullRequest, Branches: branches}
}

// Schedule builds a schedule trigger.
func Schedule(cron string) Trigger {
	return Trigger{Kind: TriggerSchedule, Cron: cron}
}

// RetryPolicy bounds how often a failing task is attempted.
type RetryPolicy struct {
	MaxAttempts int      `json:"maxAttempts" validate:"min=1,max=10"`
	Backoff     *Backoff `json:"backoff,omitempty"`
}

// Backoff is an exponential delay schedule: base * factor^(n-1), capped.
type Backoff struct {
	Kind        string  `json:"kind" validate:"eq=exponential"`
	BaseDelayMs int64   `json:"baseDelayMs" validate:"gt=0"`
	Factor      float64 `json:"factor" validate:"gt=1"`
	MaxDelayMs  int64   `json:"maxDelayMs" validate:"gt=0"`
}

// Exponential builds an exponential backoff.
func Exponential(base time.Duration, factor float64, max time.Duration) *Backoff {
	return &Backoff{
		Kind:        "exponential",
		BaseDelayMs: base.Milliseconds(),
		Factor:      factor,
		MaxDelayMs:  max.Milliseconds(),
	}
}

// Defaults apply to every node unless the node overrides them.
type Defaults struct {
	Retry   *RetryPolicy      `json:"retry,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty" validate:"gte=0"`
}

// Graph is the root aggregate. It is treated as immutable once built.
type Graph struct {
	Name     string    `json:"name" validate:"required,max=100"`
	Version  string    `json:"version" validate:"required,semver"`
	Triggers []Trigger `json:"triggers" validate:"min=1,dive"`
	Defaults *Defaults `json:"defaults,omitempty"`
	Nodes    []Node    `json:"nodes" validate:"min=1,dive,required"`
	Edges    []Edge    `json:"edges" validate:"dive"`
}

// Index is a read-only lookup view of a graph's nodes and edges. Slices
// preserve declaration order.
type Index struct {
	order    []NodeID
	nodes    map[NodeID]Node
	outgoing map[NodeID][]Edge
	incoming map[NodeID][]Edge
}

// NewIndex builds an Index over nodes and edges. Edges whose endpoints are
// missing are still indexed; duplicate ids keep the first node and nil
// nodes are ignored.
func NewIndex(nodes []Node, edges []Edge) *Index {
	idx := &Index{
		order:    make([]NodeID, 0, len(nodes)),
		nodes:    make(map[NodeID]Node, len(nodes)),
		outgoing: make(map[NodeID][]Edge),
		incoming: make(map[NodeID][]Edge),
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, dup := idx.nodes[n.NodeID()]; dup {
			continue
		}
		idx.order = append(idx.order, n.NodeID())
		idx.nodes[n.NodeID()] = n
	}
	for _, e := range edges {
		idx.outgoing[e.From] = append(idx.outgoing[e.From], e)
		idx.incoming[e.To] = append(idx.incoming[e.To], e)
	}
	return idx
}

// Index returns a lookup view of g.
func (g *Graph) Index() *Index {
	return NewIndex(g.Nodes, g.Edges)
}

// IDs returns node ids in declaration order.
func (x *Index) IDs() []NodeID { return x.order }

// Node looks up a node by id.
func (x *Index) Node(id NodeID) (Node, bool) {
	n, ok := x.nodes[id]
	return n, ok
}

// Has reports whether id names a node.
func (x *Index) Has(id NodeID) bool {
	_, ok := x.nodes[id]
	return ok
}

// Outgoing returns the edges leaving id.
func (x *Index) Outgoing(id NodeID) []Edge { return x.outgoing[id] }

// Incoming returns the edges entering id.
func (x *Index) Incoming(id NodeID) []Edge { return x.incoming[id] }

// Successors returns the targets of id's outgoing edges.
func (x *Index) Successors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(x.outgoing[id]))
	for _, e := range x.outgoing[id] {
		out = append(out, e.To)
	}
	return out
}

// Levels groups node ids by dependency depth using Kahn's algorithm.
// Nodes within a level have no edges between them. Ordering inside a level
// follows declaration order.
func Levels(g *Graph) ([][]NodeID, error) {
	idx := g.Index()
	inDegree := make(map[NodeID]int, len(idx.order))

	for _, e := range g.Edges {
		if !idx.Has(e.From) {
			return nil, errors.MissingNode(string(e.From), string(e.To), string(e.From))
		}
		if !idx.Has(e.To) {
			return nil, errors.MissingNode(string(e.From), string(e.To), string(e.To))
		}
		inDegree[e.To]++
	}

	var queue []NodeID
	for _, id := range idx.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var levels [][]NodeID
	visited := 0

	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []NodeID
		for _, id := range queue {
			for _, to := range idx.Successors(id) {
				inDegree[to]--
				if inDegree[to] == 0 {
					next = append(next, to)
				}
			}
		}
		queue = next
	}

	if visited != len(idx.order) {
		var stuck []string
		for _, id := range idx.order {
			if inDegree[id] > 0 {
				stuck = append(stuck, string(id))
			}
		}
		return nil, errors.Cycle(stuck)
	}

	return levels, nil
}
