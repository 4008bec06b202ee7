package dag_test

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"
	"time"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/dag/dagtest"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
)

func newEngine(opts ...dag.EngineOption) *dag.Engine {
	return dag.NewEngine(append([]dag.EngineOption{dag.WithLogger(logger.NewNop())}, opts...)...)
}

func ids(s ...string) []dag.NodeID {
	out := make([]dag.NodeID, len(s))
	for i, v := range s {
		out[i] = dag.NodeID(v)
	}
	return out
}

// plainRunner implements TaskRunner without Collector.
type plainRunner struct{}

func (plainRunner) RunTask(context.Context, *dag.TaskNode, *dag.State) error { return nil }
func (plainRunner) EvaluateGate(context.Context, *dag.GateNode, *dag.State) (bool, error) {
	return true, nil
}
func (plainRunner) OnFanout(context.Context, *dag.FanoutNode, *dag.State) error { return nil }
func (plainRunner) OnFanin(context.Context, *dag.FaninNode, *dag.State) error   { return nil }

func TestEngine_LinearChain(t *testing.T) {
	g := dagtest.NewGraph("chain").
		Task("a", "true").Task("b", "true").Task("c", "true").
		Chain("a", "b", "c").
		Build()
	runner := dagtest.NewRunner()

	res, err := newEngine().Execute(context.Background(), g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]dag.NodeID{ids("a"), ids("b"), ids("c")}
	if !reflect.DeepEqual(res.Batches, want) {
		t.Errorf("expected batches %v, got %v", want, res.Batches)
	}
	if !reflect.DeepEqual(runner.Order(), ids("a", "b", "c")) {
		t.Errorf("expected call order a, b, c, got %v", runner.Order())
	}
	if res.RunID == "" || res.Graph != "chain" {
		t.Errorf("expected run id and graph name, got %q %q", res.RunID, res.Graph)
	}
}

func TestEngine_DiamondBatching(t *testing.T) {
	g := dagtest.NewGraph("diamond").
		Task("a", "true").Task("b", "true").Task("c", "true").Task("d", "true").
		Edge("a", "b").Edge("a", "c").Edge("b", "d").Edge("c", "d").
		Build()

	res, err := newEngine().Execute(context.Background(), g, dagtest.NewRunner())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]dag.NodeID{ids("a"), ids("b", "c"), ids("d")}
	if !reflect.DeepEqual(res.Batches, want) {
		t.Errorf("expected batches %v, got %v", want, res.Batches)
	}
	for _, id := range ids("a", "b", "c", "d") {
		if res.Nodes[id].Status != dag.StatusCompleted {
			t.Errorf("expected %s completed, got %s", id, res.Nodes[id].Status)
		}
	}
	if res.Nodes["d"].Batch != 2 {
		t.Errorf("expected d in batch 2, got %d", res.Nodes["d"].Batch)
	}
}

func TestEngine_StructuralNodes(t *testing.T) {
	g := dagtest.NewGraph("fan").
		Task("build", "make").
		Fanout("split").
		Task("unit", "go test").
		Task("lint", "golangci-lint run").
		Fanin("join").
		Edge("build", "split").
		Edge("split", "unit").Edge("split", "lint").
		Edge("unit", "join").Edge("lint", "join").
		Build()
	runner := dagtest.NewRunner()

	res, err := newEngine().Execute(context.Background(), g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]dag.NodeID{ids("build"), ids("split"), ids("unit", "lint"), ids("join")}
	if !reflect.DeepEqual(res.Batches, want) {
		t.Errorf("expected batches %v, got %v", want, res.Batches)
	}
	kinds := map[dag.NodeID]dag.Kind{}
	for _, c := range runner.Calls() {
		kinds[c.Node] = c.Kind
	}
	if kinds["split"] != dag.KindFanout || kinds["join"] != dag.KindFanin {
		t.Errorf("expected fanout and fanin hooks, got %v", kinds)
	}
}

func gatedGraph() *dag.Graph {
	return dagtest.NewGraph("gated").
		Task("t1", "true").
		Gate("check", "ref == 'main'").
		Task("t2", "deploy").
		Task("t3", "notify").
		Task("t4", "report").
		Edge("t1", "check").
		Edge("check", "t2").
		Edge("t2", "t3").
		Edge("t1", "t4").
		Build()
}

func TestEngine_GateFalse_Skip(t *testing.T) {
	state := dag.NewState()
	runner := dagtest.NewRunner().WithGate("check", false)

	res, err := newEngine().ExecuteWithState(context.Background(), gatedGraph(), runner, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(res.Skipped(), ids("t2", "t3")) {
		t.Errorf("expected t2, t3 skipped, got %v", res.Skipped())
	}
	if res.Nodes["t4"].Status != dag.StatusCompleted {
		t.Errorf("expected t4 completed, got %s", res.Nodes["t4"].Status)
	}
	if runner.CallCount("t2") != 0 || runner.CallCount("t3") != 0 {
		t.Error("skipped nodes must not reach the runner")
	}
	gate := res.Nodes["check"].Gate
	if gate == nil || *gate {
		t.Errorf("expected recorded gate outcome false, got %v", gate)
	}
	passed, err := dag.Read(state, dag.GatePort("check"))
	if err != nil || passed {
		t.Errorf("expected gate_check=false in state, got %v (%v)", passed, err)
	}
}

func TestEngine_GateFalse_Block(t *testing.T) {
	runner := dagtest.NewRunner().WithGate("check", false)

	res, err := newEngine(dag.WithGatePolicy(dag.GateBlock)).Execute(context.Background(), gatedGraph(), runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range ids("t2", "t3") {
		if _, ok := res.Nodes[id]; ok {
			t.Errorf("expected %s to stay unreported, got %+v", id, res.Nodes[id])
		}
	}
	if len(res.Skipped()) != 0 {
		t.Errorf("block policy reports no skips, got %v", res.Skipped())
	}
	if res.Nodes["t4"].Status != dag.StatusCompleted {
		t.Errorf("expected t4 completed, got %s", res.Nodes["t4"].Status)
	}
}

func TestEngine_GateTrue_RunsDownstream(t *testing.T) {
	runner := dagtest.NewRunner().WithGate("check", true)

	res, err := newEngine().Execute(context.Background(), gatedGraph(), runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Completed()) != 5 {
		t.Errorf("expected every node completed, got %v", res.Completed())
	}
}

func TestEngine_JoinWithLiveEdge(t *testing.T) {
	g := dagtest.NewGraph("join").
		Gate("check", "false").
		Task("other", "true").
		Task("join", "true").
		Edge("check", "join").
		Edge("other", "join").
		Build()

	t.Run("skip runs the join", func(t *testing.T) {
		runner := dagtest.NewRunner().WithGate("check", false)
		res, err := newEngine().Execute(context.Background(), g, runner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Nodes["join"].Status != dag.StatusCompleted {
			t.Errorf("expected join completed, got %q", res.Nodes["join"].Status)
		}
	})

	t.Run("block leaves the join", func(t *testing.T) {
		runner := dagtest.NewRunner().WithGate("check", false)
		res, err := newEngine(dag.WithGatePolicy(dag.GateBlock)).Execute(context.Background(), g, runner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := res.Nodes["join"]; ok {
			t.Error("expected join to stay unscheduled")
		}
	})
}

func TestEngine_NeverEdge(t *testing.T) {
	g := dagtest.NewGraph("never").
		Task("a", "true").Task("b", "true").
		Edge("a", "b", dag.ConditionNever).
		Build()

	res, err := newEngine().Execute(context.Background(), g, dagtest.NewRunner())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Nodes["b"].Status != dag.StatusSkipped {
		t.Errorf("expected b skipped under GateSkip, got %q", res.Nodes["b"].Status)
	}

	res, err = newEngine(dag.WithGatePolicy(dag.GateBlock)).Execute(context.Background(), g, dagtest.NewRunner())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Nodes["b"].Status != dag.StatusCompleted {
		t.Errorf("expected b completed under GateBlock, got %q", res.Nodes["b"].Status)
	}
}

func TestEngine_FailureAbortsAfterBatch(t *testing.T) {
	boom := stderrors.New("boom")
	g := dagtest.NewGraph("fail").
		Task("a", "exit 1").Task("b", "sleep 5").Task("c", "true").
		Edge("a", "c").Edge("b", "c").
		Build()
	runner := dagtest.NewRunner().FailWith("a", boom).Delay("b", 5*time.Second)

	res, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeTaskFailed) {
		t.Fatalf("expected task failure, got %v", err)
	}
	if !stderrors.Is(err, boom) {
		t.Error("expected runner error to be wrapped")
	}
	if res.Nodes["a"].Status != dag.StatusFailed {
		t.Errorf("expected a failed, got %q", res.Nodes["a"].Status)
	}
	if res.Nodes["b"].Status != dag.StatusCancelled {
		t.Errorf("expected sibling b cancelled, got %q", res.Nodes["b"].Status)
	}
	if runner.CallCount("c") != 0 {
		t.Error("no batch may start after a failure")
	}
	if !res.Failed() {
		t.Error("expected Failed to report the failure")
	}
}

func TestEngine_RetryUntilSuccess(t *testing.T) {
	g := dagtest.NewGraph("retry").
		Node(dag.Task("flaky", dag.TaskConfig{
			Run:   "curl example.com",
			Retry: &dag.RetryPolicy{MaxAttempts: 3, Backoff: dag.Exponential(time.Millisecond, 2, 5*time.Millisecond)},
		})).
		Build()
	runner := dagtest.NewRunner().FailTimes("flaky", 2, stderrors.New("transient"))

	res, err := newEngine().Execute(context.Background(), g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Nodes["flaky"].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Nodes["flaky"].Attempts)
	}
	if runner.CallCount("flaky") != 3 {
		t.Errorf("expected 3 calls, got %d", runner.CallCount("flaky"))
	}
}

func TestEngine_RetryFromDefaults(t *testing.T) {
	g := dagtest.NewGraph("retry").
		Task("flaky", "true").
		Defaults(&dag.Defaults{Retry: &dag.RetryPolicy{MaxAttempts: 2}}).
		Build()
	runner := dagtest.NewRunner().FailTimes("flaky", 1, stderrors.New("transient"))

	res, err := newEngine().Execute(context.Background(), g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Nodes["flaky"].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Nodes["flaky"].Attempts)
	}
}

func TestEngine_RetryExhausted(t *testing.T) {
	g := dagtest.NewGraph("retry").
		Node(dag.Task("flaky", dag.TaskConfig{Run: "false", Retry: &dag.RetryPolicy{MaxAttempts: 2}})).
		Build()
	runner := dagtest.NewRunner().FailWith("flaky", stderrors.New("always"))

	res, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeTaskFailed) {
		t.Fatalf("expected task failure, got %v", err)
	}
	if runner.CallCount("flaky") != 2 || res.Nodes["flaky"].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d calls", runner.CallCount("flaky"))
	}
}

func TestEngine_NonRetryableErrorStopsRetry(t *testing.T) {
	g := dagtest.NewGraph("retry").
		Node(dag.Task("strict", dag.TaskConfig{Run: "false", Retry: &dag.RetryPolicy{MaxAttempts: 5}})).
		Build()
	runner := dagtest.NewRunner().FailWith("strict", errors.InvalidGraph("bad input"))

	_, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeInvalidGraph) {
		t.Fatalf("expected runner error to pass through, got %v", err)
	}
	if runner.CallCount("strict") != 1 {
		t.Errorf("expected a single attempt, got %d", runner.CallCount("strict"))
	}
}

func TestEngine_Timeout(t *testing.T) {
	g := dagtest.NewGraph("timeout").
		Task("slow", "sleep 10").
		Defaults(&dag.Defaults{Timeout: 20 * time.Millisecond}).
		Build()
	runner := dagtest.NewRunner().Delay("slow", 2*time.Second)

	res, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if res.Nodes["slow"].Status != dag.StatusFailed {
		t.Errorf("expected slow failed, got %q", res.Nodes["slow"].Status)
	}
}

func TestEngine_CollectTimeout(t *testing.T) {
	g := dagtest.NewGraph("collect").
		Collect("approve", "release_form", 20*time.Millisecond).
		Build()
	runner := dagtest.NewRunner().Delay("approve", 2*time.Second)

	_, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestEngine_CollectPassThrough(t *testing.T) {
	g := dagtest.NewGraph("collect").
		Collect("approve", "release_form", 0).
		Task("ship", "true").
		Chain("approve", "ship").
		Build()

	res, err := newEngine().Execute(context.Background(), g, plainRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Nodes["approve"].Status != dag.StatusCompleted {
		t.Errorf("expected collect to pass through, got %q", res.Nodes["approve"].Status)
	}
}

func TestEngine_GateError(t *testing.T) {
	g := dagtest.NewGraph("gate").Gate("check", "nope(").Build()
	runner := dag.RunnerFuncs{
		Gate: func(context.Context, *dag.GateNode, *dag.State) (bool, error) {
			return false, stderrors.New("syntax error")
		},
	}

	_, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeGateFailed) {
		t.Fatalf("expected gate failure, got %v", err)
	}
}

func TestEngine_PanicBecomesError(t *testing.T) {
	g := dagtest.NewGraph("panic").Task("a", "true").Build()
	runner := dag.RunnerFuncs{
		Task: func(context.Context, *dag.TaskNode, *dag.State) error { panic("kaboom") },
	}

	res, err := newEngine().Execute(context.Background(), g, runner)
	if !errors.HasCode(err, errors.ErrCodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if res.Nodes["a"].Status != dag.StatusFailed {
		t.Errorf("expected a failed, got %q", res.Nodes["a"].Status)
	}
}

func TestEngine_MaxParallel(t *testing.T) {
	b := dagtest.NewGraph("wide")
	runner := dagtest.NewRunner()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		b.Task(id, "true")
		runner.Delay(id, 20*time.Millisecond)
	}

	res, err := newEngine(dag.WithMaxParallel(2)).Execute(context.Background(), b.Build(), runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.MaxConcurrent() > 2 {
		t.Errorf("expected at most 2 concurrent nodes, got %d", runner.MaxConcurrent())
	}
	if len(res.Completed()) != 5 {
		t.Errorf("expected 5 completed, got %v", res.Completed())
	}
}

func TestEngine_RunInfo(t *testing.T) {
	g := dagtest.NewGraph("info").
		Task("a", "true").
		Defaults(&dag.Defaults{Env: map[string]string{"CI": "true"}}).
		Build()

	var seen dag.RunInfo
	runner := dag.RunnerFuncs{
		Task: func(ctx context.Context, _ *dag.TaskNode, _ *dag.State) error {
			seen, _ = dag.RunInfoFrom(ctx)
			return nil
		},
	}

	res, err := newEngine().Execute(context.Background(), g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.RunID != res.RunID || seen.Graph != "info" || seen.Attempt != 1 {
		t.Errorf("unexpected run info %+v", seen)
	}
	if seen.Defaults == nil || seen.Defaults.Env["CI"] != "true" {
		t.Error("expected graph defaults in run info")
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	g := dagtest.NewGraph("cancel").Task("a", "true").Build()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newEngine().Execute(ctx, g, dagtest.NewRunner())
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Batches) != 0 {
		t.Errorf("expected no batches, got %v", res.Batches)
	}
}
