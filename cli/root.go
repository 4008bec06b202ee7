package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kbukum/dagflow/config"
	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/observability"
	"github.com/kbukum/dagflow/store"
)

// app is the state shared by every command of one invocation.
type app struct {
	configFile string
	envFile    string
	logLevel   string
	noColor    bool

	cfg      *config.Config
	log      *logger.Logger
	shutdown observability.ShutdownFunc
	// store is set while a long-running command holds the store open.
	store *store.Store
}

// NewRootCommand builds the dagflow command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "dagflow",
		Short:         "Validate, run, simulate and compile workflow graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default: ./dagflow.yml)")
	flags.StringVar(&a.envFile, "env-file", "", ".env file to load")
	flags.StringVar(&a.logLevel, "log-level", "", "override logging.level")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newValidateCommand(a),
		newRunCommand(a),
		newSimulateCommand(a),
		newCompileCommand(a),
		newScheduleCommand(a),
		newStoreCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	if a.envFile != "" {
		opts = append(opts, config.WithEnvFile(a.envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}
	if a.noColor {
		cfg.Logging.NoColor = true
		color.NoColor = true
	}
	a.cfg = cfg

	logger.Init(&cfg.Logging)
	logger.RegisterDefaults()
	a.log = logger.WithComponent("cli")

	shutdown, err := observability.Setup(cmd.Context(), cfg.Name, cfg.Environment, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown() error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.shutdown(ctx)
}

// loadGraph reads, schema-checks and validates a graph file.
func loadGraph(path string, opts ...dag.ValidateOption) (*dag.Graph, error) {
	g, err := dag.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return dag.ValidateGraph(g, opts...)
}
