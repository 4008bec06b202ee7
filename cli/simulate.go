package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/events"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/simulator"
)

func newSimulateCommand(a *app) *cobra.Command {
	var (
		asJSON bool
		gates  []string
		sets   []string
	)
	cmd := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Play a graph through with simulated delays and gate outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			cfg := a.cfg.Simulator
			flags := cmd.Flags()
			if flags.Changed("seed") {
				cfg.Seed, _ = flags.GetInt64("seed")
			}
			if flags.Changed("pass-rate") {
				cfg.PassRate, _ = flags.GetFloat64("pass-rate")
			}
			if flags.Changed("task-delay") {
				cfg.TaskDelay, _ = flags.GetDuration("task-delay")
			}
			if flags.Changed("collect-delay") {
				cfg.CollectDelay, _ = flags.GetDuration("collect-delay")
			}

			inputs, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			opts := []simulator.Option{
				simulator.WithConfig(cfg),
				simulator.WithGatePolicy(dag.GatePolicy(a.cfg.Engine.GatePolicy)),
				simulator.WithInputs(inputs),
				simulator.WithLogger(logger.Get("simulator")),
			}
			outcomes, err := parseGateOutcomes(gates)
			if err != nil {
				return err
			}
			for id, passed := range outcomes {
				opts = append(opts, simulator.WithGateOutcome(id, passed))
			}

			bus := events.NewBus(events.WithLogger(logger.Get("events")))
			defer bus.Close()

			ctx := cmd.Context()
			stream, err := bus.Subscribe(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for e := range stream {
					if asJSON {
						_ = enc.Encode(e)
					} else {
						printEvent(out, e)
					}
					if e.Kind == simulator.EventSimulationComplete {
						return
					}
				}
			}()

			opts = append(opts, simulator.WithSink(bus))
			sim, runErr := simulator.New(opts...).Run(ctx, g)
			<-done
			if runErr != nil {
				return runErr
			}
			if !asJSON {
				fmt.Fprintf(out, "%s completed, %s failed, %s skipped\n",
					green(strconv.Itoa(len(sim.Completed))),
					red(strconv.Itoa(len(sim.Failed))),
					yellow(strconv.Itoa(len(sim.Skipped))))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int64("seed", 0, "random seed for gate outcomes (0 = time based)")
	flags.Float64("pass-rate", 0.7, "probability that a gate passes")
	flags.Duration("task-delay", 0, "simulated task duration")
	flags.Duration("collect-delay", 0, "simulated form wait")
	flags.BoolVar(&asJSON, "json", false, "print events as JSON lines")
	flags.StringArrayVar(&gates, "gate", nil, "force a gate outcome id=true|false (repeatable)")
	flags.StringArrayVar(&sets, "set", nil, "initial state value key=value (repeatable)")
	return cmd
}

func parseGateOutcomes(pairs []string) (map[dag.NodeID]bool, error) {
	outcomes := make(map[dag.NodeID]bool, len(pairs))
	for _, pair := range pairs {
		raw, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidConfig, "--gate expects id=true|false, got %q", pair)
		}
		id, err := dag.ParseNodeID(raw)
		if err != nil {
			return nil, err
		}
		passed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, errors.Newf(errors.ErrCodeInvalidConfig, "--gate %s: %q is not a boolean", raw, value)
		}
		outcomes[id] = passed
	}
	return outcomes, nil
}
