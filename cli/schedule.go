package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/component"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/schedule"
	"github.com/kbukum/dagflow/store"
)

func newScheduleCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "schedule <file>...",
		Short: "Run graphs on their schedule triggers until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.maxParallel = a.cfg.Engine.MaxParallel
			f.gatePolicy = a.cfg.Engine.GatePolicy
			out := &lockedWriter{w: cmd.OutOrStdout()}
			errOut := &lockedWriter{w: cmd.ErrOrStderr()}
			log := logger.Get("schedule")

			job := func(ctx context.Context, g *dag.Graph, trigger dag.Trigger) {
				fields := logger.Fields(logger.FieldGraph, g.Name, "cron", trigger.Cron)
				res, err := a.execute(ctx, g, dag.NewState(), out, errOut, f)
				if err != nil {
					log.Error("scheduled run failed", logger.MergeWithError(fields, err))
					return
				}
				fields[logger.FieldRunID] = res.RunID
				log.Info("scheduled run completed", logger.MergeWithDuration(fields, res.Duration))
			}

			sched := schedule.New(job, schedule.WithLogger(log))
			for _, path := range args {
				g, err := loadGraph(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if _, err := sched.Register(g); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}

			lifecycle := component.NewRegistry(component.WithLogger(logger.Get("lifecycle")))
			if f.record {
				st, err := store.Open(cmd.Context(), a.cfg.Store, logger.Get("store"))
				if err != nil {
					return err
				}
				a.store = st
				defer func() { a.store = nil }()
				if err := lifecycle.Register(st); err != nil {
					return err
				}
			}
			if err := lifecycle.Register(&component.Hooks{
				ID:      "scheduler",
				OnStart: func(context.Context) error { sched.Start(); return nil },
				OnStop:  sched.Stop,
			}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := lifecycle.StartAll(ctx); err != nil {
				return err
			}
			printEntries(out, sched.Entries())
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return lifecycle.StopAll(stopCtx)
		},
	}
	cmd.Flags().BoolVar(&f.record, "record", false, "record every run in the store")
	return cmd
}

func printEntries(w io.Writer, entries []schedule.Entry) {
	t := newTable(w, "GRAPH", "CRON", "NEXT")
	for _, e := range entries {
		next := "-"
		if !e.Next.IsZero() {
			next = e.Next.Format(time.RFC3339)
		}
		t.row(e.Graph, e.Cron, next)
	}
	t.render()
}
