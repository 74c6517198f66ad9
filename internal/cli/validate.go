package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrreg/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string // "scenario" | "config"
}

// FileIssue is one schema issue tied to the file it came from.
type FileIssue struct {
	File string `json:"file"`
	schema.Issue
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Files  int         `json:"files"`
	Errors []FileIssue `json:"errors,omitempty"`
}

var validKinds = map[string]string{
	"scenario": schema.Scenario,
	"config":   schema.Config,
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check scenario or config files against the schema",
		Long: `Validate YAML files against the embedded CUE schema without running them.

Exit codes:
  0 - All files valid
  1 - One or more files violate the schema
  2 - Command error (missing file, unknown kind)

Examples:
  hdrreg validate ./scenarios/lifecycle.yaml
  hdrreg validate --kind config ./hdrreg.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "scenario", "document kind (scenario|config)")

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	def, ok := validKinds[opts.Kind]
	if !ok {
		msg := fmt.Sprintf("unknown kind %q: must be scenario or config", opts.Kind)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("file not found: %s", file), nil)
				return NewExitError(ExitCommandError, fmt.Sprintf("file not found: %s", file))
			}
			_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read file", err)
		}

		formatter.VerboseLog("Validating %s as %s", file, opts.Kind)
		err = schema.ValidateYAML(def, file, data)
		var verr *schema.ValidationError
		switch {
		case err == nil:
		case errors.As(err, &verr):
			result.Valid = false
			for _, issue := range verr.Issues {
				result.Errors = append(result.Errors, FileIssue{File: file, Issue: issue})
			}
		default:
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "schema unavailable", err)
		}
	}

	if opts.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}
		msg := fmt.Sprintf("%d issue(s) found", len(result.Errors))
		if err := formatter.Failure(result, schema.ErrCodeViolation, msg); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	w := cmd.OutOrStdout()
	if result.Valid {
		fmt.Fprintln(w, "✓ All files valid")
		return nil
	}
	fmt.Fprintf(w, "✗ %d issue(s) found:\n", len(result.Errors))
	for _, fi := range result.Errors {
		fmt.Fprintf(w, "  %s: %s\n", fi.File, fi.Issue.Error())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d issue(s) found", len(result.Errors)))
}
