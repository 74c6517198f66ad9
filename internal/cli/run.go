package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrreg/internal/harness"
	"github.com/roach88/hdrreg/internal/header"
	"github.com/roach88/hdrreg/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// RunIDs allows overriding the journal run id generator (for testing).
	// If nil, defaults to journal.UUIDv7Generator.
	RunIDs journal.RunIDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string               `json:"scenario"`
	RunID    string               `json:"run_id,omitempty"`
	Pass     bool                 `json:"pass"`
	Trace    []harness.TraceEvent `json:"trace"`
	Errors   []string             `json:"errors,omitempty"`
	Final    header.Stats         `json:"final"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against a fresh registry",
		Long: `Run a scenario file against a fresh header registry and print its trace.

When --db is given (or journal.path is set in the config file) every
operation is also recorded in a SQLite journal under a new run id.

Exit codes:
  0 - Scenario passed
  1 - An expectation or assertion failed
  2 - Command error (missing file, invalid scenario, journal error)

Examples:
  hdrreg run ./scenarios/lifecycle.yaml
  hdrreg run --db ./hdrreg.db ./scenarios/lifecycle.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg := opts.Config()
	logger := opts.Logger()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The scenario's registry block overrides cfg inside the harness.
	hopts := harness.Options{Logger: logger, Config: &cfg}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Journal.Path
	}
	if dbPath != "" {
		j, err := journal.Open(dbPath)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		hopts.Journal = j
		hopts.RunIDs = opts.RunIDs
		if hopts.RunIDs == nil && scenario.RunID == "" {
			hopts.RunIDs = journal.UUIDv7Generator{}
		}
		formatter.VerboseLog("Journaling to %s", dbPath)
	}

	logger.Info("running scenario", "name", scenario.Name, "steps", len(scenario.Steps))
	result, err := harness.Run(ctx, scenario, hopts)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		RunID:    result.RunID,
		Pass:     result.Pass,
		Trace:    result.Trace,
		Errors:   result.Errors,
		Final:    result.Final,
	}

	if opts.Format == "json" {
		if result.Pass {
			return formatter.Success(out)
		}
		if err := formatter.Failure(out, "E_SCENARIO_FAILED", fmt.Sprintf("%d failure(s)", len(result.Errors))); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scenario: %s\n", scenario.Name)
	if result.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", result.RunID)
	}
	fmt.Fprintln(w)
	writeTrace(w, result.Trace)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final: %d header(s), %d byte(s) in use\n", result.Final.Headers, result.Final.BytesInUse)

	if !result.Pass {
		fmt.Fprintf(w, "✗ %s\n", scenario.Name)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	return nil
}

// writeTrace prints one line per trace event.
func writeTrace(w io.Writer, trace []harness.TraceEvent) {
	if len(trace) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return
	}
	for _, ev := range trace {
		target := ev.StoreName
		if ev.Node != "" {
			target = ev.Node
		}
		fmt.Fprintf(w, "  [%d] %-12s %-8s %-13s v=%d rc=%d size=%d\n",
			ev.Seq, ev.Op, target, ev.Outcome, ev.Version, ev.RefCount, ev.Size)
	}
}
