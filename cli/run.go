package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/observability"
	"github.com/kbukum/dagflow/runner"
	"github.com/kbukum/dagflow/store"
)

type runFlags struct {
	dryRun      bool
	record      bool
	maxParallel int
	gatePolicy  string
	sets        []string
}

func newRunCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a graph with the shell task runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if f.dryRun {
				return printPlan(out, g)
			}
			values, err := parseAssignments(f.sets)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-parallel") {
				f.maxParallel = a.cfg.Engine.MaxParallel
			}
			if !cmd.Flags().Changed("gate-policy") {
				f.gatePolicy = a.cfg.Engine.GatePolicy
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, runErr := a.execute(ctx, g, dag.NewStateFrom(values), out, cmd.ErrOrStderr(), f)
			if res != nil {
				printResult(out, g, res)
			}
			return runErr
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&f.dryRun, "dry-run", false, "print the batch plan without running anything")
	flags.BoolVar(&f.record, "record", false, "record the run in the store")
	flags.IntVar(&f.maxParallel, "max-parallel", 0, "cap concurrent nodes per batch (0 = unbounded)")
	flags.StringVar(&f.gatePolicy, "gate-policy", "", "skip or block")
	flags.StringArrayVar(&f.sets, "set", nil, "initial state value key=value (repeatable)")
	return cmd
}

// execute runs g through the shell runner wrapped with tracing, metrics and
// logging. When f.record is set the outcome is written to the store.
func (a *app) execute(ctx context.Context, g *dag.Graph, state *dag.State, stdout, stderr io.Writer, f runFlags) (*dag.Result, error) {
	policy := dag.GatePolicy(f.gatePolicy)
	if policy != dag.GateSkip && policy != dag.GateBlock {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown gate policy %q", f.gatePolicy)
	}

	metrics, err := observability.NewMetrics(observability.Meter("dagflow"))
	if err != nil {
		return nil, err
	}

	shell := runner.FromConfig(a.cfg.Engine,
		runner.WithOutput(stdout, stderr),
		runner.WithLogger(logger.Get("runner")),
	)
	var tr dag.TaskRunner = shell
	tr = dag.WithTracing(tr, observability.SpanNode)
	tr = dag.WithMetrics(tr, metrics)
	tr = dag.WithLogging(tr, logger.Get("engine"))

	engine := dag.NewEngine(
		dag.WithMaxParallel(f.maxParallel),
		dag.WithGatePolicy(policy),
		dag.WithLogger(logger.Get("engine")),
		dag.WithRunMetrics(metrics),
	)

	started := time.Now()
	res, runErr := engine.ExecuteWithState(ctx, g, tr, state)
	if f.record && res != nil {
		if err := a.record(res, runErr, started); err != nil {
			a.log.Warn("run not recorded", logger.ErrorFields("record", err))
		}
	}
	return res, runErr
}

func (a *app) record(res *dag.Result, runErr error, started time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.store != nil {
		_, err := a.store.RecordRun(ctx, res, runErr, started)
		return err
	}
	st, err := store.Open(ctx, a.cfg.Store, logger.Get("store"))
	if err != nil {
		return err
	}
	defer st.Close()
	_, err = st.RecordRun(ctx, res, runErr, started)
	return err
}

// parseAssignments turns key=value pairs into state values. Dotted keys
// build nested maps, so github.ref=main is read by a gate as github.ref.
// Values that parse as bool, integer or float are stored typed so gate
// conditions can compare them.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Newf(errors.ErrCodeInvalidConfig, "--set expects key=value, got %q", pair)
		}
		if err := assign(values, strings.Split(key, "."), typedValue(raw)); err != nil {
			return nil, errors.Newf(errors.ErrCodeInvalidConfig, "--set %q: %v", pair, err)
		}
	}
	return values, nil
}

func assign(values map[string]any, path []string, v any) error {
	for i, part := range path {
		if part == "" {
			return fmt.Errorf("empty key segment")
		}
		if i == len(path)-1 {
			if _, nested := values[part].(map[string]any); nested {
				return fmt.Errorf("%s already holds nested keys", strings.Join(path[:i+1], "."))
			}
			values[part] = v
			return nil
		}
		next, ok := values[part].(map[string]any)
		if !ok {
			if _, set := values[part]; set {
				return fmt.Errorf("%s already holds a value", strings.Join(path[:i+1], "."))
			}
			next = make(map[string]any)
			values[part] = next
		}
		values = next
	}
	return nil
}

func typedValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func printPlan(w io.Writer, g *dag.Graph) error {
	levels, err := dag.Levels(g)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s@%s\n", bold("plan"), g.Name, g.Version)
	for i, level := range levels {
		fmt.Fprintf(w, "  %s %s\n", cyan(fmt.Sprintf("batch %d", i)), joinIDs(level))
	}
	return nil
}

func printResult(w io.Writer, g *dag.Graph, res *dag.Result) {
	t := newTable(w, "NODE", "KIND", "STATUS", "BATCH", "ATTEMPTS", "DURATION")
	t.paint[2] = paintStatus
	for _, n := range g.Nodes {
		nr, ok := res.Nodes[n.NodeID()]
		if !ok {
			t.row(string(n.NodeID()), string(n.Kind()), "unscheduled", "-", "-", "-")
			continue
		}
		attempts := "-"
		if nr.Attempts > 0 {
			attempts = strconv.Itoa(nr.Attempts)
		}
		t.row(string(nr.ID), string(nr.Kind), string(nr.Status),
			strconv.Itoa(nr.Batch), attempts, nr.Duration.Round(time.Millisecond).String())
	}
	t.render()

	status := green("completed")
	if res.Failed() {
		status = red("failed")
	}
	fmt.Fprintf(w, "\nrun %s %s in %s\n", res.RunID, status, res.Duration.Round(time.Millisecond))
}
