package runner

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/kbukum/dagflow/config"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/expr"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/process"
)

// OutputKey is the State key holding a task's trimmed stdout.
func OutputKey(id dag.NodeID) string { return "output_" + string(id) }

// FormKey is the State key a collect node writes its form id under while
// it waits.
func FormKey(id dag.NodeID) string { return "form_" + string(id) }

// SecretSource resolves a secret by name.
type SecretSource func(name string) (string, bool)

// Shell is the production TaskRunner.
type Shell struct {
	shell       string
	workDir     string
	gracePeriod time.Duration
	registry    *Registry
	evaluator   expr.Evaluator
	secrets     SecretSource
	stdout      io.Writer
	stderr      io.Writer
	log         *logger.Logger
}

var (
	_ dag.TaskRunner = (*Shell)(nil)
	_ dag.Collector  = (*Shell)(nil)
)

// Option configures a Shell.
type Option func(*Shell)

// WithShell sets the interpreter for run scripts.
func WithShell(shell string) Option { return func(s *Shell) { s.shell = shell } }

// WithWorkDir sets the working directory for run scripts.
func WithWorkDir(dir string) Option { return func(s *Shell) { s.workDir = dir } }

// WithGracePeriod sets how long a cancelled script gets before SIGKILL.
func WithGracePeriod(d time.Duration) Option { return func(s *Shell) { s.gracePeriod = d } }

// WithRegistry replaces the action registry.
func WithRegistry(r *Registry) Option { return func(s *Shell) { s.registry = r } }

// WithEvaluator replaces the gate evaluator.
func WithEvaluator(e expr.Evaluator) Option { return func(s *Shell) { s.evaluator = e } }

// WithSecrets replaces the secret source.
func WithSecrets(src SecretSource) Option { return func(s *Shell) { s.secrets = src } }

// WithOutput mirrors task output to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Shell) { s.stdout, s.stderr = stdout, stderr }
}

// WithLogger sets the runner logger.
func WithLogger(l *logger.Logger) Option { return func(s *Shell) { s.log = l } }

// New creates a Shell runner. Secrets come from the process environment
// unless WithSecrets is given.
func New(opts ...Option) *Shell {
	s := &Shell{
		shell:     "sh",
		registry:  NewRegistry(),
		evaluator: expr.New(),
		secrets:   os.LookupEnv,
		log:       logger.Get("runner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates a Shell from engine configuration.
func FromConfig(cfg config.EngineConfig, opts ...Option) *Shell {
	base := []Option{
		WithShell(cfg.Shell),
		WithWorkDir(cfg.WorkDir),
		WithGracePeriod(cfg.GracePeriod),
	}
	return New(append(base, opts...)...)
}

// Registry returns the action registry.
func (s *Shell) Registry() *Registry { return s.registry }

// RunTask runs the task's script or action. Script stdout, trimmed, is
// stored under OutputKey.
func (s *Shell) RunTask(ctx context.Context, task *dag.TaskNode, state *dag.State) error {
	env, err := s.Env(ctx, task)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logger.NodeFields(string(task.ID), string(dag.KindTask)))

	if task.Uses != "" {
		action, ok := s.registry.Lookup(task.Uses)
		if !ok {
			return errors.NotFound("action", task.Uses)
		}
		name, version := ParseUses(task.Uses)
		log.Debug("running action", logger.Fields("uses", task.Uses))
		return action(ctx, Call{
			Task:    task,
			Name:    name,
			Version: version,
			Env:     env,
			State:   state,
			Stdout:  s.stdout,
			Log:     log,
		})
	}

	cmd := process.Shell(s.shell, task.Run)
	cmd.Dir = s.workDir
	cmd.Env = process.EnvList(env)
	cmd.GracePeriod = s.gracePeriod
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr

	log.Debug("running script")
	res, err := process.Run(ctx, cmd)
	if res != nil {
		state.Set(OutputKey(task.ID), strings.TrimSpace(string(res.Stdout)))
	}
	return err
}

// Env resolves the environment for task: graph defaults, then the node's
// env, then its secrets. A missing secret is an error.
func (s *Shell) Env(ctx context.Context, task *dag.TaskNode) (map[string]string, error) {
	env := make(map[string]string)
	if info, ok := dag.RunInfoFrom(ctx); ok {
		if info.Defaults != nil {
			maps.Copy(env, info.Defaults.Env)
		}
		env["DAGFLOW_RUN_ID"] = info.RunID
		env["DAGFLOW_GRAPH"] = info.Graph
		if info.Attempt > 0 {
			env["DAGFLOW_ATTEMPT"] = fmt.Sprint(info.Attempt)
		}
	}
	env["DAGFLOW_NODE"] = string(task.ID)
	maps.Copy(env, task.Env)

	for _, name := range task.Secrets {
		value, ok := s.secrets(name)
		if !ok {
			return nil, errors.NotFound("secret", name).WithDetail("node", string(task.ID))
		}
		env[name] = value
	}
	return env, nil
}

// EvaluateGate evaluates the gate condition against the run state. The
// graph default env is visible as env.
func (s *Shell) EvaluateGate(ctx context.Context, gate *dag.GateNode, state *dag.State) (bool, error) {
	vars := state.Snapshot()
	env := map[string]string{}
	if info, ok := dag.RunInfoFrom(ctx); ok && info.Defaults != nil {
		env = info.Defaults.Env
	}
	vars["env"] = env

	passed, err := s.evaluator.EvaluateBoolean(gate.Condition, vars)
	if err != nil {
		return false, err
	}
	s.log.Debug("gate evaluated", logger.Fields(logger.FieldNode, string(gate.ID), "passed", passed))
	return passed, nil
}

func (s *Shell) OnFanout(_ context.Context, node *dag.FanoutNode, _ *dag.State) error {
	s.log.Debug("fanout", logger.Fields(logger.FieldNode, string(node.ID)))
	return nil
}

func (s *Shell) OnFanin(_ context.Context, node *dag.FaninNode, _ *dag.State) error {
	s.log.Debug("fanin", logger.Fields(logger.FieldNode, string(node.ID)))
	return nil
}

// OnCollect records the form the node waits on and completes. Input
// collection itself happens outside the engine.
func (s *Shell) OnCollect(_ context.Context, node *dag.CollectNode, state *dag.State) error {
	state.Set(FormKey(node.ID), node.FormID)
	s.log.Info("waiting for form", logger.Fields(logger.FieldNode, string(node.ID), "form_id", node.FormID))
	return nil
}
