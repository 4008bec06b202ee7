package dagtest

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/dagflow/dag"
)

// Call is one recorded runner invocation.
type Call struct {
	Node    dag.NodeID
	Kind    dag.Kind
	Attempt int
}

// Runner is a configurable TaskRunner and Collector that records every call.
// Unconfigured tasks and hooks succeed and unconfigured gates pass.
type Runner struct {
	mu        sync.Mutex
	calls     []Call
	gates     map[dag.NodeID]bool
	errs      map[dag.NodeID]error
	failTimes map[dag.NodeID]int
	delays    map[dag.NodeID]time.Duration
	funcs     map[dag.NodeID]func(ctx context.Context, state *dag.State) error
	attempts  map[dag.NodeID]int
	active    int
	maxActive int
}

var (
	_ dag.TaskRunner = (*Runner)(nil)
	_ dag.Collector  = (*Runner)(nil)
)

// NewRunner creates an empty recording runner.
func NewRunner() *Runner {
	return &Runner{
		gates:     make(map[dag.NodeID]bool),
		errs:      make(map[dag.NodeID]error),
		failTimes: make(map[dag.NodeID]int),
		delays:    make(map[dag.NodeID]time.Duration),
		funcs:     make(map[dag.NodeID]func(ctx context.Context, state *dag.State) error),
		attempts:  make(map[dag.NodeID]int),
	}
}

// WithGate scripts the outcome of a gate.
func (r *Runner) WithGate(id string, passed bool) *Runner {
	r.gates[dag.NodeID(id)] = passed
	return r
}

// FailWith makes every call for id return err.
func (r *Runner) FailWith(id string, err error) *Runner {
	r.errs[dag.NodeID(id)] = err
	return r
}

// FailTimes makes the first n calls for id return err.
func (r *Runner) FailTimes(id string, n int, err error) *Runner {
	r.errs[dag.NodeID(id)] = err
	r.failTimes[dag.NodeID(id)] = n
	return r
}

// Delay makes calls for id wait d, or until the context is done.
func (r *Runner) Delay(id string, d time.Duration) *Runner {
	r.delays[dag.NodeID(id)] = d
	return r
}

// On runs fn for every call for id after any configured delay.
func (r *Runner) On(id string, fn func(ctx context.Context, state *dag.State) error) *Runner {
	r.funcs[dag.NodeID(id)] = fn
	return r
}

// Calls returns every recorded call in invocation order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Order returns each called node once, in the order first called.
func (r *Runner) Order() []dag.NodeID {
	seen := make(map[dag.NodeID]bool)
	var out []dag.NodeID
	for _, c := range r.Calls() {
		if !seen[c.Node] {
			seen[c.Node] = true
			out = append(out, c.Node)
		}
	}
	return out
}

// CallCount returns how many times id was invoked.
func (r *Runner) CallCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[dag.NodeID(id)]
}

// MaxConcurrent returns the highest number of calls observed in flight.
func (r *Runner) MaxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

func (r *Runner) RunTask(ctx context.Context, task *dag.TaskNode, state *dag.State) error {
	return r.invoke(ctx, task, state)
}

func (r *Runner) EvaluateGate(ctx context.Context, gate *dag.GateNode, state *dag.State) (bool, error) {
	if err := r.invoke(ctx, gate, state); err != nil {
		return false, err
	}
	passed, ok := r.gates[gate.ID]
	if !ok {
		return true, nil
	}
	return passed, nil
}

func (r *Runner) OnFanout(ctx context.Context, node *dag.FanoutNode, state *dag.State) error {
	return r.invoke(ctx, node, state)
}

func (r *Runner) OnFanin(ctx context.Context, node *dag.FaninNode, state *dag.State) error {
	return r.invoke(ctx, node, state)
}

func (r *Runner) OnCollect(ctx context.Context, node *dag.CollectNode, state *dag.State) error {
	return r.invoke(ctx, node, state)
}

func (r *Runner) invoke(ctx context.Context, node dag.Node, state *dag.State) error {
	id := node.NodeID()

	r.mu.Lock()
	r.attempts[id]++
	attempt := r.attempts[id]
	r.calls = append(r.calls, Call{Node: id, Kind: node.Kind(), Attempt: attempt})
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	delay := r.delays[id]
	fn := r.funcs[id]
	err := r.errs[id]
	limit, limited := r.failTimes[id]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if fn != nil {
		if fnErr := fn(ctx, state); fnErr != nil {
			return fnErr
		}
	}
	if err != nil && (!limited || attempt <= limit) {
		return err
	}
	return nil
}
