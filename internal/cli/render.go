package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <domain>",
		Short: "Print a domain table as bulk text",
		Long: `Render prints the current rows of a domain as bulk text, one line per row
in id order. In text mode the version token is written to stderr so stdout can
be redirected to a file, edited, and passed back with sync --version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			rendered, err := a.service.Render(ctx, args[0])
			if err != nil {
				return operationError("render", err)
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, rendered, func(w io.Writer) {
				if rendered.Text != "" {
					fmt.Fprintln(w, rendered.Text)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "version: %s (%d rows)\n", rendered.Version, rendered.Rows)
			})
		},
	}
}
