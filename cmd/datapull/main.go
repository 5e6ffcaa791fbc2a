package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gerhard-ee/datapull/internal/logger"
	"github.com/gerhard-ee/datapull/internal/pull"
	"github.com/gerhard-ee/datapull/internal/state"
)

type options struct {
	configPath string
	output     string
	format     string
	params     []string
	baseDir    string

	// State management
	stateType string
	stateDir  string
	namespace string

	timeout time.Duration
	verbose bool
	logFile string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "datapull",
		Short: "Run a SQL file against Snowflake and export the result",
		Long: `datapull reads connection settings from a config file, executes the SQL
file named in its [QUERIES] section and writes the result to a local file.

The config file needs [SNOWFLAKE_SERVER] and [SNOWFLAKE_DATAPULL] sections.
Values can be overridden with DATAPULL_CONNECTION_* and DATAPULL_QUERIES_*
environment variables.`,
		Example: `  # Use ./config.ini and write output.csv
  datapull

  # Bind positional parameters and write Parquet
  datapull --config prod.ini --param 123 --format parquet --output customers.parquet`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPull(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.ini", "Path to the config file (INI or YAML)")
	flags.StringVarP(&opts.output, "output", "o", "", "Output file path (overrides [QUERIES] output)")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format, csv or parquet (overrides [QUERIES] format)")
	flags.StringArrayVarP(&opts.params, "param", "p", nil, "Positional query parameter, repeatable")
	flags.StringVar(&opts.baseDir, "base-dir", "", "Directory relative SQL file paths are resolved against (default: executable directory)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long (0 disables)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	flags.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file")

	persistent := cmd.PersistentFlags()
	persistent.StringVar(&opts.stateType, "state-type", state.TypeMemory, "State management type (memory, file or kubernetes)")
	persistent.StringVar(&opts.stateDir, "state-dir", ".datapull", "Directory for file state management")
	persistent.StringVar(&opts.namespace, "namespace", "default", "Kubernetes namespace for state management")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"csv", "parquet"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("state-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{state.TypeMemory, state.TypeFile, state.TypeKubernetes}, cobra.ShellCompDirectiveNoFileComp
	})

	cmd.AddCommand(newRunsCmd(opts))
	return cmd
}

func runPull(cmd *cobra.Command, opts *options) error {
	log, closer, err := logger.NewLogger(logger.Options{Verbose: opts.verbose, LogFile: opts.logFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	states, err := state.NewManager(opts.stateType, opts.stateDir, opts.namespace)
	if err != nil {
		return fmt.Errorf("failed to create state manager: %w", err)
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	params := make([]interface{}, len(opts.params))
	for i, p := range opts.params {
		params[i] = p
	}

	runner := &pull.Runner{
		States:  states,
		Logger:  log,
		BaseDir: opts.baseDir,
	}
	res := runner.Run(ctx, pull.Options{
		ConfigPath: opts.configPath,
		Output:     opts.output,
		Format:     opts.format,
		Params:     params,
	})
	if !res.OK() {
		return fmt.Errorf("run %s failed (%s): %w", res.RunID, res.Kind, res.Err)
	}
	return nil
}

func newRunsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long: `List the runs recorded by a file or Kubernetes state store, oldest first.
The memory store only lives for a single run and has nothing to list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.stateType == "" || opts.stateType == state.TypeMemory {
				return fmt.Errorf("runs needs --state-type %s or %s", state.TypeFile, state.TypeKubernetes)
			}

			states, err := state.NewManager(opts.stateType, opts.stateDir, opts.namespace)
			if err != nil {
				return fmt.Errorf("failed to create state manager: %w", err)
			}

			runs, err := states.ListStates(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATUS\tROWS\tOUTPUT\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.JobID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Rows, r.Output, r.Error)
			}
			return w.Flush()
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
