package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrreg/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Op       string // optional - filter to one op
}

// TraceResult holds one run's recorded events.
type TraceResult struct {
	Run    journal.Run     `json:"run"`
	Events []journal.Event `json:"events"`
	Ops    map[string]int  `json:"ops"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled runs and their events",
		Long: `Read a SQLite journal written by "hdrreg run --db".

Without --run, lists every recorded run. With --run, prints that run's
events in sequence order, optionally filtered to a single op.

Examples:
  hdrreg trace --db ./hdrreg.db
  hdrreg trace --db ./hdrreg.db --run 0192f3c4-...
  hdrreg trace --db ./hdrreg.db --run 0192f3c4-... --op set_data --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Op, "op", "", "only show events for this op")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening a missing path would create an empty journal.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		msg := fmt.Sprintf("database not found: %s", opts.Database)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := j.Close(); closeErr != nil {
			opts.Logger().Error("error closing journal", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.RunID == "" {
		return listRuns(ctx, j, formatter, cmd)
	}

	run, err := j.ReadRun(ctx, opts.RunID)
	if errors.Is(err, journal.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	events, err := j.ReadEvents(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	ops, err := j.CountOps(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to count ops", err)
	}

	if opts.Op != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Op == opts.Op {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	result := TraceResult{Run: run, Events: events, Ops: ops}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Scenario: %s\n", run.Scenario)
	fmt.Fprintf(w, "Events: %d\n\n", run.Events)
	if len(events) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(w, "  [%d] %-12s %-8s %-13s v=%d rc=%d size=%d",
			ev.Seq, ev.Op, ev.StoreName, ev.Outcome, ev.Version, ev.RefCount, ev.Size)
		if ev.Digest != "" {
			fmt.Fprintf(w, " digest=%s", shortDigest(ev.Digest))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func listRuns(ctx context.Context, j *journal.Journal, formatter *OutputFormatter, cmd *cobra.Command) error {
	runs, err := j.ListRuns(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %-24s %d event(s)\n", run.ID, run.Scenario, run.Events)
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
