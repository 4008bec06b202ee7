// Package statemachine compiles a graph into a state machine definition in
// the Amazon States Language shape.
package statemachine

import (
	"regexp"
	"time"

	"github.com/kbukum/dagflow/compiler"
	"github.com/kbukum/dagflow/dag"
)

// SuccessState is the synthetic terminal state Choice states fall back to.
const SuccessState = "SuccessState"

// RefVariable is the input path every Choice compares against.
const RefVariable = "$.ref"

// State types.
const (
	TypeTask     = "Task"
	TypeChoice   = "Choice"
	TypeParallel = "Parallel"
	TypeSucceed  = "Succeed"
	TypeWait     = "Wait"
)

// Machine is the compiled target.
type Machine struct {
	Comment string           `yaml:"Comment" json:"Comment"`
	StartAt string           `yaml:"StartAt" json:"StartAt"`
	States  map[string]State `yaml:"States" json:"States"`
}

type State struct {
	Type       string         `yaml:"Type" json:"Type"`
	Comment    string         `yaml:"Comment,omitempty" json:"Comment,omitempty"`
	Resource   string         `yaml:"Resource,omitempty" json:"Resource,omitempty"`
	Parameters map[string]any `yaml:"Parameters,omitempty" json:"Parameters,omitempty"`
	Seconds    int64          `yaml:"Seconds,omitempty" json:"Seconds,omitempty"`
	Choices    []Choice       `yaml:"Choices,omitempty" json:"Choices,omitempty"`
	Default    string         `yaml:"Default,omitempty" json:"Default,omitempty"`
	Branches   []Branch       `yaml:"Branches,omitempty" json:"Branches,omitempty"`
	Next       string         `yaml:"Next,omitempty" json:"Next,omitempty"`
	End        bool           `yaml:"End,omitempty" json:"End,omitempty"`
}

type Choice struct {
	Variable     string `yaml:"Variable" json:"Variable"`
	StringEquals string `yaml:"StringEquals" json:"StringEquals"`
	Next         string `yaml:"Next" json:"Next"`
}

type Branch struct {
	StartAt string           `yaml:"StartAt" json:"StartAt"`
	States  map[string]State `yaml:"States" json:"States"`
}

var quoted = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)

// Compile translates g. The start state is the first task without incoming
// edges. Gates only support conditions containing a quoted literal, which is
// compared against $.ref.
func Compile(g *dag.Graph) (*Machine, error) {
	idx := g.Index()

	start, ok := startNode(g, idx)
	if !ok {
		return nil, compiler.Errorf(compiler.PhaseValidation, g.Name, "graph %q has no task without incoming edges", g.Name)
	}

	m := &Machine{Comment: g.Name, StartAt: string(start), States: make(map[string]State, len(g.Nodes))}

	// Parallel branches embed their successors' states, so build every
	// other state first.
	for _, n := range g.Nodes {
		if n.Kind() == dag.KindFanout {
			continue
		}
		st, err := compileState(idx, n)
		if err != nil {
			return nil, err
		}
		m.States[string(n.NodeID())] = st
	}
	for _, n := range g.Nodes {
		if n.Kind() != dag.KindFanout {
			continue
		}
		m.States[string(n.NodeID())] = parallel(idx, n.NodeID(), m.States)
	}

	for _, st := range m.States {
		if st.Type == TypeChoice {
			m.States[SuccessState] = State{Type: TypeSucceed}
			break
		}
	}
	return m, nil
}

func startNode(g *dag.Graph, idx *dag.Index) (dag.NodeID, bool) {
	for _, n := range g.Nodes {
		if n.Kind() == dag.KindTask && len(idx.Incoming(n.NodeID())) == 0 {
			return n.NodeID(), true
		}
	}
	return "", false
}

func compileState(idx *dag.Index, n dag.Node) (State, error) {
	switch n := n.(type) {
	case *dag.TaskNode:
		return withTransition(idx, n.ID, task(n)), nil
	case *dag.GateNode:
		return choice(idx, n)
	case *dag.FaninNode:
		return State{Type: TypeSucceed}, nil
	case *dag.CollectNode:
		st := State{Type: TypeWait, Comment: "form " + n.FormID, Seconds: waitSeconds(n.Timeout)}
		return withTransition(idx, n.ID, st), nil
	default:
		return State{}, compiler.Errorf(compiler.PhaseCompilation, string(n.NodeID()), "unsupported node kind %q", n.Kind())
	}
}

// waitSeconds rounds d up to whole seconds. A Wait state needs at least one.
func waitSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

func task(n *dag.TaskNode) State {
	st := State{Type: TypeTask, Parameters: map[string]any{}}
	if n.Uses != "" {
		st.Resource = n.Uses
	} else {
		st.Parameters["run"] = n.Run
	}
	if len(n.Env) > 0 {
		st.Parameters["env"] = n.Env
	}
	if len(st.Parameters) == 0 {
		st.Parameters = nil
	}
	return st
}

// withTransition sets Next to the first successor, or End when there is none.
func withTransition(idx *dag.Index, id dag.NodeID, st State) State {
	if succ := idx.Successors(id); len(succ) > 0 {
		st.Next = string(succ[0])
	} else {
		st.End = true
	}
	return st
}

func choice(idx *dag.Index, gate *dag.GateNode) (State, error) {
	m := quoted.FindStringSubmatch(gate.Condition)
	if m == nil {
		return State{}, compiler.Errorf(compiler.PhaseCompilation, gate.Condition,
			"gate %q: condition has no quoted literal to compare against %s", gate.ID, RefVariable)
	}
	literal := m[1]
	if literal == "" {
		literal = m[2]
	}
	next := SuccessState
	if succ := idx.Successors(gate.ID); len(succ) > 0 {
		next = string(succ[0])
	}
	return State{
		Type:    TypeChoice,
		Choices: []Choice{{Variable: RefVariable, StringEquals: literal, Next: next}},
		Default: SuccessState,
	}, nil
}

func parallel(idx *dag.Index, id dag.NodeID, built map[string]State) State {
	st := State{Type: TypeParallel, End: true}
	for _, succ := range idx.Successors(id) {
		inner, ok := built[string(succ)]
		if !ok {
			inner = State{Type: TypeSucceed}
		}
		st.Branches = append(st.Branches, Branch{
			StartAt: string(succ),
			States:  map[string]State{string(succ): inner},
		})
	}
	return st
}
