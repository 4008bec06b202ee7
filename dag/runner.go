package dag

import "context"

// TaskRunner performs the work behind each node kind. The engine calls the
// methods of one batch concurrently; implementations must be safe for that.
type TaskRunner interface {
	RunTask(ctx context.Context, task *TaskNode, state *State) error
	EvaluateGate(ctx context.Context, gate *GateNode, state *State) (bool, error)
	OnFanout(ctx context.Context, node *FanoutNode, state *State) error
	OnFanin(ctx context.Context, node *FaninNode, state *State) error
}

// Collector is implemented by runners that handle collect nodes. Runners
// without it let collect nodes pass through.
type Collector interface {
	OnCollect(ctx context.Context, node *CollectNode, state *State) error
}

// RunnerFuncs adapts functions to TaskRunner and Collector. A nil task or
// hook function succeeds; a nil gate function passes.
type RunnerFuncs struct {
	Task    func(ctx context.Context, task *TaskNode, state *State) error
	Gate    func(ctx context.Context, gate *GateNode, state *State) (bool, error)
	Fanout  func(ctx context.Context, node *FanoutNode, state *State) error
	Fanin   func(ctx context.Context, node *FaninNode, state *State) error
	Collect func(ctx context.Context, node *CollectNode, state *State) error
}

func (f RunnerFuncs) RunTask(ctx context.Context, task *TaskNode, state *State) error {
	if f.Task == nil {
		return nil
	}
	return f.Task(ctx, task, state)
}

func (f RunnerFuncs) EvaluateGate(ctx context.Context, gate *GateNode, state *State) (bool, error) {
	if f.Gate == nil {
		return true, nil
	}
	return f.Gate(ctx, gate, state)
}

func (f RunnerFuncs) OnFanout(ctx context.Context, node *FanoutNode, state *State) error {
	if f.Fanout == nil {
		return nil
	}
	return f.Fanout(ctx, node, state)
}

func (f RunnerFuncs) OnFanin(ctx context.Context, node *FaninNode, state *State) error {
	if f.Fanin == nil {
		return nil
	}
	return f.Fanin(ctx, node, state)
}

func (f RunnerFuncs) OnCollect(ctx context.Context, node *CollectNode, state *State) error {
	if f.Collect == nil {
		return nil
	}
	return f.Collect(ctx, node, state)
}

// RunInfo describes the run a runner call belongs to.
type RunInfo struct {
	RunID    string
	Graph    string
	Defaults *Defaults
	Batch    int
	Attempt  int
}

type runInfoKey struct{}

// WithRunInfo attaches info to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the RunInfo the engine attached to ctx.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
