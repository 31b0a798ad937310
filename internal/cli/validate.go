package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/machina-io/machina/catalog"
)

// Error codes for validate output.
const (
	ErrCodeLoad    = "E001" // file unreadable or not YAML
	ErrCodeSchema  = "E002" // CUE schema violations
	ErrCodeProblem = "E003" // catalog lint problems
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                  `json:"valid"`
	Schema   []catalog.SchemaError `json:"schema_errors,omitempty"`
	Problems []catalog.Problem     `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog.yaml>",
		Short: "Validate a state catalog document",
		Long: `Validate a YAML state catalog against the embedded schema and lint it
for structural problems (terminal states with allowed events, transition
rows referencing unknown states, and so on).

Exit code 0 when the catalog is clean, 1 on findings, 2 on command errors.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		var perr *catalog.ParseError
		if errors.As(err, &perr) {
			if ferr := formatter.Error(ErrCodeSchema, "catalog schema violations", perr.Errors); ferr != nil {
				return ferr
			}
			return NewExitError(ExitFailure, "catalog schema violations")
		}
		if ferr := formatter.Error(ErrCodeLoad, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	formatter.VerboseLog("Loaded catalog %s version %s with %d states", cat.Name, cat.Version, len(cat.States))

	if probs := cat.Problems(); len(probs) > 0 {
		if opts.Format == "json" {
			if err := formatter.Success(ValidationResult{Valid: false, Problems: probs}); err != nil {
				return err
			}
		} else {
			for _, p := range probs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: %s\n", p.Field, p.Code, p.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d catalog problems", len(probs)))
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "catalog %s (version %s): valid\n", cat.Name, cat.Version)
	return nil
}
