package dag_test

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/dag/dagtest"
	"github.com/kbukum/dagflow/errors"
)

func TestValidate_MissingNode(t *testing.T) {
	g := dagtest.NewGraph("g").Task("a", "true").Edge("a", "ghost").Build()

	err := dag.Validate(g.Nodes, g.Edges)
	if !errors.HasCode(err, errors.ErrCodeMissingNode) {
		t.Fatalf("expected missing node error, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["node"] != "ghost" || appErr.Details["from"] != "a" {
		t.Errorf("unexpected details %v", appErr.Details)
	}
}

func TestValidate_SelfLoop(t *testing.T) {
	g := dagtest.NewGraph("g").Task("a", "true").Edge("a", "a").Build()

	err := dag.Validate(g.Nodes, g.Edges)
	if !errors.HasCode(err, errors.ErrCodeSelfLoop) {
		t.Fatalf("expected self-loop error, got %v", err)
	}
}

func TestValidate_GateNever(t *testing.T) {
	g := dagtest.NewGraph("g").
		Gate("check", "ref == 'main'").
		Task("a", "true").
		Task("b", "true").
		Edge("check", "a").
		Edge("check", "b", dag.ConditionNever).
		Build()

	err := dag.Validate(g.Nodes, g.Edges)
	if !errors.HasCode(err, errors.ErrCodeGateNever) {
		t.Fatalf("expected gate never error, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["to"] != "b" {
		t.Errorf("expected the second outgoing edge to be reported, got %v", appErr.Details)
	}
}

func TestValidate_NeverEdgeFromTaskIsAllowed(t *testing.T) {
	g := dagtest.NewGraph("g").Task("a", "true").Task("b", "true").Edge("a", "b", dag.ConditionNever).Build()

	if err := dag.Validate(g.Nodes, g.Edges); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		graph *dag.Graph
		path  []string
	}{
		{
			name:  "two nodes",
			graph: dagtest.NewGraph("g").Task("a", "true").Task("b", "true").Chain("a", "b", "a").Build(),
			path:  []string{"a", "b", "a"},
		},
		{
			name:  "three nodes",
			graph: dagtest.NewGraph("g").Task("a", "true").Task("b", "true").Task("c", "true").Chain("a", "b", "c", "a").Build(),
			path:  []string{"a", "b", "c", "a"},
		},
		{
			name: "disconnected component",
			graph: dagtest.NewGraph("g").
				Task("a", "true").Task("b", "true").
				Task("x", "true").Task("y", "true").
				Chain("a", "b").
				Chain("x", "y", "x").
				Build(),
			path: []string{"x", "y", "x"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := dag.Validate(tc.graph.Nodes, tc.graph.Edges)
			if !errors.HasCode(err, errors.ErrCodeCycle) {
				t.Fatalf("expected cycle error, got %v", err)
			}
			appErr, _ := errors.AsAppError(err)
			if !reflect.DeepEqual(appErr.Details["path"], tc.path) {
				t.Errorf("expected path %v, got %v", tc.path, appErr.Details["path"])
			}
		})
	}
}

func TestValidate_DuplicateNode(t *testing.T) {
	g := dagtest.NewGraph("g").Task("a", "true").Task("a", "false").Build()

	err := dag.Validate(g.Nodes, g.Edges)
	if !errors.HasCode(err, errors.ErrCodeDuplicateNode) {
		t.Fatalf("expected duplicate node error, got %v", err)
	}
}

func TestValidate_FailFastOrder(t *testing.T) {
	// Both a self loop and a dangling edge: the reference check runs first.
	g := dagtest.NewGraph("g").Task("a", "true").Edge("a", "a").Edge("a", "ghost").Build()

	err := dag.Validate(g.Nodes, g.Edges)
	if !errors.HasCode(err, errors.ErrCodeMissingNode) {
		t.Fatalf("expected missing node error first, got %v", err)
	}
	if errors.HasCode(err, errors.ErrCodeSelfLoop) {
		t.Error("fail-fast validation should report a single error")
	}
}

func TestValidate_CollectAll(t *testing.T) {
	g := dagtest.NewGraph("g").
		Task("a", "true").
		Gate("g1", "true").
		Task("b", "true").
		Edge("a", "a").
		Edge("a", "ghost").
		Edge("g1", "b", dag.ConditionNever).
		Build()

	err := dag.Validate(g.Nodes, g.Edges, dag.WithCollectAll())
	var all dag.ValidationErrors
	if !stderrors.As(err, &all) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(all), err)
	}
	for _, code := range []errors.ErrorCode{errors.ErrCodeMissingNode, errors.ErrCodeSelfLoop, errors.ErrCodeGateNever} {
		if !errors.HasCode(err, code) {
			t.Errorf("expected %s in %v", code, err)
		}
	}
}

func TestValidateGraph_ReturnsSamePointer(t *testing.T) {
	g := dagtest.NewGraph("g").Task("a", "true").Task("b", "true").Chain("a", "b").Build()

	got, err := dag.ValidateGraph(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != g {
		t.Error("expected the input graph to be returned unchanged")
	}
}

func TestValidate_EmptyGraph(t *testing.T) {
	if err := dag.Validate(nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
