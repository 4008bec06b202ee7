package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/dag"
)

func newValidateCommand(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a graph file for schema and structural errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []dag.ValidateOption
			if all {
				opts = append(opts, dag.WithCollectAll())
			}
			g, err := loadGraph(args[0], opts...)
			out := cmd.OutOrStdout()
			if err != nil {
				var verrs dag.ValidationErrors
				if errors.As(err, &verrs) {
					for _, e := range verrs {
						fmt.Fprintf(out, "%s %v\n", red("x"), e)
					}
					return fmt.Errorf("%s: %d validation errors", args[0], len(verrs))
				}
				return err
			}
			fmt.Fprintf(out, "%s %s@%s: %d nodes, %d edges\n",
				green("ok"), g.Name, g.Version, len(g.Nodes), len(g.Edges))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "report every structural error instead of the first")
	return cmd
}
