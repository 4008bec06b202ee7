package cijob_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dagflow/compiler"
	"github.com/kbukum/dagflow/compiler/cijob"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/dag/dagtest"
)

func TestCompile_RunStep(t *testing.T) {
	g := dagtest.NewGraph("ci").Task("build", "pnpm build").Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)

	job := wf.Jobs["build"]
	assert.Equal(t, "ubuntu-latest", job.RunsOn)
	require.Len(t, job.Steps, 1)
	assert.Equal(t, "pnpm build", job.Steps[0].Run)
	assert.Empty(t, job.Steps[0].Uses)
	assert.Empty(t, job.Needs)
	assert.Empty(t, job.If)
}

func TestCompile_GateBecomesIf(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Task("build", "pnpm build").
		Gate("only_main", "github.ref == 'refs/heads/main'").
		Task("deploy", "pnpm deploy").
		Chain("build", "only_main", "deploy").
		Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)

	assert.Len(t, wf.Jobs, 2)
	deploy := wf.Jobs["deploy"]
	assert.Equal(t, "github.ref == 'refs/heads/main'", deploy.If)
	assert.Equal(t, []string{"build"}, deploy.Needs)
}

func TestCompile_MultipleGatesAreANDed(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Gate("main", "github.ref == 'refs/heads/main'").
		Gate("green", "success()").
		Task("deploy", "make deploy").
		Edge("main", "deploy").
		Edge("green", "deploy").
		Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)
	assert.Equal(t, "(github.ref == 'refs/heads/main') && (success())", wf.Jobs["deploy"].If)
}

func TestCompile_NeedsThroughStructuralNodes(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Task("checkout", "git pull").
		Fanout("split").
		Task("lint", "make lint").
		Task("test", "make test").
		Fanin("join").
		Task("release", "make release").
		Edge("checkout", "split").
		Edge("split", "lint").
		Edge("split", "test").
		Edge("lint", "join").
		Edge("test", "join").
		Edge("checkout", "join").
		Edge("join", "release").
		Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)

	assert.Equal(t, []string{"checkout"}, wf.Jobs["lint"].Needs)
	assert.Equal(t, []string{"lint", "test", "checkout"}, wf.Jobs["release"].Needs)
	assert.NotContains(t, wf.Jobs, "split")
	assert.NotContains(t, wf.Jobs, "join")
}

func TestCompile_EnvAndSecrets(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Node(dag.Task("publish", dag.TaskConfig{
			Uses:    "actions/publish@v2",
			Env:     map[string]string{"REGISTRY": "ghcr.io"},
			Secrets: []string{"NPM_TOKEN"},
		})).
		Defaults(&dag.Defaults{Env: map[string]string{"CI": "true"}}).
		Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"CI": "true"}, wf.Env)
	step := wf.Jobs["publish"].Steps[0]
	assert.Equal(t, "actions/publish@v2", step.Uses)
	assert.Equal(t, map[string]string{
		"REGISTRY":  "ghcr.io",
		"NPM_TOKEN": "${{ secrets.NPM_TOKEN }}",
	}, step.Env)
}

func TestCompile_Triggers(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Task("build", "make").
		Trigger(dag.Push([]string{"main"}, []string{"src/**"})).
		Trigger(dag.PullRequest([]string{"main"})).
		Trigger(dag.Schedule("0 3 * * *")).
		Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)

	require.NotNil(t, wf.On.Push)
	assert.Equal(t, []string{"main"}, wf.On.Push.Branches)
	assert.Equal(t, []string{"src/**"}, wf.On.Push.Paths)
	require.NotNil(t, wf.On.PullRequest)
	assert.Equal(t, []string{"main"}, wf.On.PullRequest.Branches)
	assert.Equal(t, []cijob.CronEntry{{Cron: "0 3 * * *"}}, wf.On.Schedule)
}

func TestCompile_YAML(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Task("build", "pnpm build").
		Gate("only_main", "github.ref == 'refs/heads/main'").
		Task("deploy", "pnpm deploy").
		Chain("build", "only_main", "deploy").
		Build()

	wf, err := cijob.Compile(g)
	require.NoError(t, err)
	out, err := compiler.MarshalYAML(wf)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "name: ci\n"))
	assert.Contains(t, text, "runs-on: ubuntu-latest")
	assert.Contains(t, text, "needs:\n      - build")
	assert.Contains(t, text, "if: github.ref == 'refs/heads/main'")
}

func TestCompile_InvalidTask(t *testing.T) {
	g := dagtest.NewGraph("ci").
		Node(dag.Task("empty", dag.TaskConfig{})).
		Build()

	_, err := cijob.Compile(g)
	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, compiler.PhaseCompilation, cerr.Phase)
	assert.Equal(t, "empty", cerr.Source)
}
