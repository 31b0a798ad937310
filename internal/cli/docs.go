package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/machina-io/machina/catalog"
	"github.com/machina-io/machina/docgen"
)

// Valid --out values for the docs command.
var validDocOutputs = []string{"markdown", "mermaid", "summary"}

// NewDocsCommand creates the docs command.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "docs <catalog.yaml>",
		Short: "Generate documentation from a state catalog",
		Long: `Render a YAML state catalog as human-readable documentation.

Outputs:
  markdown  reference document (default)
  mermaid   stateDiagram-v2 diagram of the transition table
  summary   per-state overview`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocs(rootOpts, args[0], out, cmd)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "markdown", "output kind (markdown|mermaid|summary)")

	return cmd
}

func runDocs(opts *RootOptions, path, out string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	valid := false
	for _, v := range validDocOutputs {
		if v == out {
			valid = true
		}
	}
	if !valid {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --out %q: must be one of %v", out, validDocOutputs))
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		if ferr := formatter.Error(ErrCodeLoad, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	formatter.VerboseLog("Rendering %s docs for catalog %s", out, cat.Name)

	switch out {
	case "markdown":
		fmt.Fprint(cmd.OutOrStdout(), docgen.Markdown(cat))
	case "mermaid":
		fmt.Fprint(cmd.OutOrStdout(), docgen.Mermaid(cat))
	case "summary":
		summaries := docgen.Summaries(cat)
		if opts.Format == "json" {
			return formatter.Success(summaries)
		}
		for _, s := range summaries {
			terminal := ""
			if s.Terminal {
				terminal = " (terminal)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s: %s [%d events]\n", s.Key, terminal, s.Summary, s.EventCount)
		}
	}
	return nil
}
