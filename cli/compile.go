package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/compiler"
	"github.com/kbukum/dagflow/compiler/cijob"
	"github.com/kbukum/dagflow/compiler/diagram"
	"github.com/kbukum/dagflow/compiler/statemachine"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/observability"
)

// Compile targets.
const (
	TargetCIJob        = "cijob"
	TargetStateMachine = "statemachine"
	TargetDiagram      = "diagram"
)

func newCompileCommand(a *app) *cobra.Command {
	var target, format, output, direction string
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a graph to a CI workflow, a state machine or a diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			ctx, span := observability.StartSpan(cmd.Context(), observability.SpanCompile)
			defer span.End()
			observability.SetSpanAttribute(ctx, "dagflow.target", target)
			observability.SetSpanAttribute(ctx, "dagflow.graph", g.Name)

			data, err := compileGraph(g, target, format, diagram.Direction(direction))
			if err != nil {
				observability.SetSpanError(ctx, err)
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			a.log.Info("compiled", map[string]interface{}{"target": target, "output": output})
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&target, "target", "t", TargetCIJob, "cijob, statemachine or diagram")
	flags.StringVarP(&format, "format", "f", "yaml", "yaml or json (ignored for diagram)")
	flags.StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	flags.StringVar(&direction, "direction", string(diagram.TopDown), "diagram direction, TD or LR")
	return cmd
}

func compileGraph(g *dag.Graph, target, format string, direction diagram.Direction) ([]byte, error) {
	var doc any
	switch target {
	case TargetCIJob:
		wf, err := cijob.Compile(g)
		if err != nil {
			return nil, err
		}
		doc = wf
	case TargetStateMachine:
		m, err := statemachine.Compile(g)
		if err != nil {
			return nil, err
		}
		doc = m
	case TargetDiagram:
		text, err := diagram.Compile(g, diagram.WithDirection(direction))
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	default:
		return nil, compiler.Errorf(compiler.PhaseValidation, target, "unknown target %q", target)
	}

	switch format {
	case "yaml", "yml":
		return compiler.MarshalYAML(doc)
	case "json":
		return compiler.MarshalJSON(doc)
	default:
		return nil, compiler.Errorf(compiler.PhaseFormatting, format, "unknown output format %q", format)
	}
}
