package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/store"
)

func newStoreCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage stored graph definitions and run history",
	}
	cmd.AddCommand(
		newStoreSaveCommand(a),
		newStoreListCommand(a),
		newStoreGetCommand(a),
		newStoreDeleteCommand(a),
		newStoreRunsCommand(a),
	)
	return cmd
}

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(*store.Store) error) error {
	st, err := store.Open(ctx, a.cfg.Store, logger.Get("store"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newStoreSaveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <file>",
		Short: "Validate a graph file and store its definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				rec, err := st.SaveGraph(cmd.Context(), g)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s@%s\n", green("saved"), rec.Name, rec.Version)
				return nil
			})
		},
	}
}

func newStoreListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored graphs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				records, err := st.ListGraphs(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), "NAME", "VERSION", "UPDATED")
				for _, r := range records {
					t.row(r.Name, r.Version, r.UpdatedAt.Local().Format(time.DateTime))
				}
				t.render()
				return nil
			})
		},
	}
}

func newStoreGetCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a stored graph definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				rec, err := st.GetGraph(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				g, err := rec.Graph()
				if err != nil {
					return err
				}
				data, err := dag.Encode(g, dag.Format(format))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(dag.FormatYAML), "yaml or json")
	return cmd
}

func newStoreDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored graph and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				if err := st.DeleteGraph(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", yellow("deleted"), args[0])
				return nil
			})
		},
	}
}

func newStoreRunsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [graph]",
		Short: "List recorded runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var graph string
			if len(args) == 1 {
				graph = args[0]
			}
			return a.withStore(cmd.Context(), func(st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), graph, limit)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func printRuns(w io.Writer, runs []store.RunRecord) {
	t := newTable(w, "RUN", "GRAPH", "STATUS", "STARTED", "DURATION", "ERROR")
	t.paint[2] = paintStatus
	for _, r := range runs {
		t.row(r.ID, r.Graph, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			r.Error)
	}
	t.render()
	fmt.Fprintf(w, "%s runs\n", strconv.Itoa(len(runs)))
}
