package runner_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/dag/dagtest"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/process"
	"github.com/kbukum/dagflow/runner"
)

func newShell(opts ...runner.Option) *runner.Shell {
	base := []runner.Option{
		runner.WithLogger(logger.NewNop()),
		runner.WithSecrets(func(string) (string, bool) { return "", false }),
	}
	return runner.New(append(base, opts...)...)
}

func TestRunTask_ScriptOutput(t *testing.T) {
	r := newShell()
	state := dag.NewState()
	task := dag.Task("hello", dag.TaskConfig{Run: "echo hello"})

	require.NoError(t, r.RunTask(context.Background(), task, state))

	out, ok := state.Get(runner.OutputKey("hello"))
	require.True(t, ok)
	assert.Equal(t, "hello", out)
}

func TestRunTask_ScriptFailure(t *testing.T) {
	r := newShell()
	task := dag.Task("broken", dag.TaskConfig{Run: "echo oops >&2; exit 3"})

	err := r.RunTask(context.Background(), task, dag.NewState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "oops")

	var exitErr *process.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
}

func TestRunTask_StreamsOutput(t *testing.T) {
	var stdout bytes.Buffer
	r := newShell(runner.WithOutput(&stdout, nil))
	task := dag.Task("greet", dag.TaskConfig{Run: "echo streamed"})

	require.NoError(t, r.RunTask(context.Background(), task, dag.NewState()))
	assert.Equal(t, "streamed\n", stdout.String())
}

func TestEnv_Precedence(t *testing.T) {
	r := newShell(runner.WithSecrets(func(name string) (string, bool) {
		if name == "TOKEN" {
			return "s3cret", true
		}
		return "", false
	}))
	ctx := dag.WithRunInfo(context.Background(), dag.RunInfo{
		RunID: "run-1",
		Graph: "ci",
		Defaults: &dag.Defaults{Env: map[string]string{
			"CI":    "true",
			"STAGE": "default",
		}},
	})
	task := dag.Task("deploy", dag.TaskConfig{
		Env:     map[string]string{"STAGE": "prod", "TOKEN": "overridden"},
		Secrets: []string{"TOKEN"},
	})

	env, err := r.Env(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, "true", env["CI"])
	assert.Equal(t, "prod", env["STAGE"])
	assert.Equal(t, "s3cret", env["TOKEN"])
	assert.Equal(t, "run-1", env["DAGFLOW_RUN_ID"])
	assert.Equal(t, "deploy", env["DAGFLOW_NODE"])
}

func TestRunTask_ScriptSeesEnv(t *testing.T) {
	r := newShell()
	ctx := dag.WithRunInfo(context.Background(), dag.RunInfo{
		Defaults: &dag.Defaults{Env: map[string]string{"GREETING": "hi"}},
	})
	task := dag.Task("env", dag.TaskConfig{
		Run: `echo "$GREETING-$NAME"`,
		Env: map[string]string{"NAME": "dagflow"},
	})
	state := dag.NewState()

	require.NoError(t, r.RunTask(ctx, task, state))
	out, _ := state.Get(runner.OutputKey("env"))
	assert.Equal(t, "hi-dagflow", out)
}

func TestRunTask_MissingSecret(t *testing.T) {
	r := newShell()
	task := dag.Task("deploy", dag.TaskConfig{Run: "true", Secrets: []string{"API_KEY"}})

	err := r.RunTask(context.Background(), task, dag.NewState())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.False(t, errors.IsRetryable(err))
}

func TestRunTask_Actions(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		var stdout bytes.Buffer
		r := newShell(runner.WithOutput(&stdout, nil))
		state := dag.NewState()
		task := dag.Task("say", dag.TaskConfig{Uses: "echo@v1", Env: map[string]string{"MESSAGE": "hi"}})

		require.NoError(t, r.RunTask(context.Background(), task, state))
		assert.Equal(t, "hi\n", stdout.String())
		out, _ := state.Get(runner.OutputKey("say"))
		assert.Equal(t, "hi", out)
	})

	t.Run("fail", func(t *testing.T) {
		r := newShell()
		task := dag.Task("boom", dag.TaskConfig{Uses: "fail", Env: map[string]string{"MESSAGE": "nope"}})
		err := r.RunTask(context.Background(), task, dag.NewState())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})

	t.Run("sleep honours context", func(t *testing.T) {
		r := newShell()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		task := dag.Task("wait", dag.TaskConfig{Uses: "sleep", Env: map[string]string{"DURATION": "10s"}})
		err := r.RunTask(ctx, task, dag.NewState())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unknown", func(t *testing.T) {
		r := newShell()
		task := dag.Task("x", dag.TaskConfig{Uses: "checkout@v4"})
		err := r.RunTask(context.Background(), task, dag.NewState())
		assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	})

	t.Run("registered", func(t *testing.T) {
		r := newShell()
		var got runner.Call
		r.Registry().Register("checkout", func(_ context.Context, call runner.Call) error {
			got = call
			return nil
		})
		task := dag.Task("co", dag.TaskConfig{Uses: "checkout@v4"})
		require.NoError(t, r.RunTask(context.Background(), task, dag.NewState()))
		assert.Equal(t, "checkout", got.Name)
		assert.Equal(t, "v4", got.Version)
	})
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"echo", "fail", "sleep"}, runner.NewRegistry().Names())
}

func TestEvaluateGate(t *testing.T) {
	r := newShell()
	state := dag.NewStateFrom(map[string]any{"ref": "refs/heads/main", "retries": 2})

	passed, err := r.EvaluateGate(context.Background(), dag.Gate("g", "ref == 'refs/heads/main' && retries < 3"), state)
	require.NoError(t, err)
	assert.True(t, passed)

	passed, err = r.EvaluateGate(context.Background(), dag.Gate("g", "ref === 'refs/heads/dev'"), state)
	require.NoError(t, err)
	assert.False(t, passed)

	_, err = r.EvaluateGate(context.Background(), dag.Gate("g", "ref &&"), state)
	assert.Error(t, err)
}

func TestEvaluateGate_SeesDefaultEnv(t *testing.T) {
	r := newShell()
	ctx := dag.WithRunInfo(context.Background(), dag.RunInfo{
		Defaults: &dag.Defaults{Env: map[string]string{"DEPLOY": "yes"}},
	})
	passed, err := r.EvaluateGate(ctx, dag.Gate("g", `env.DEPLOY == "yes"`), dag.NewState())
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestOnCollect_RecordsForm(t *testing.T) {
	r := newShell()
	state := dag.NewState()
	require.NoError(t, r.OnCollect(context.Background(), dag.Collect("approve", "release-form", 0), state))
	form, ok := state.Get(runner.FormKey("approve"))
	require.True(t, ok)
	assert.Equal(t, "release-form", form)
}

func TestShell_WithEngine(t *testing.T) {
	g := dagtest.NewGraph("pipeline").
		Task("build", "echo built").
		Gate("main", "ref == 'main'").
		Task("deploy", "echo deployed").
		Chain("build", "main", "deploy").
		Build()

	engine := dag.NewEngine(dag.WithLogger(logger.NewNop()))
	state := dag.NewStateFrom(map[string]any{"ref": "main"})

	res, err := engine.ExecuteWithState(context.Background(), g, newShell(), state)
	require.NoError(t, err)
	assert.Len(t, res.Completed(), 3)

	out, _ := state.Get(runner.OutputKey("deploy"))
	assert.Equal(t, "deployed", out)
}
