package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// NewInitDBCommand creates the init-db command.
func NewInitDBCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the domain tables and the audit log if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			schemas := core.All()
			if err := a.store.EnsureSchema(ctx, schemas); err != nil {
				return WrapExitError(ExitFailure, "create tables", err)
			}

			tables := make([]string, len(schemas))
			for i, s := range schemas {
				tables[i] = s.Table
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, map[string]any{"tables": tables}, func(w io.Writer) {
				fmt.Fprintf(w, "%d domain tables ready (%s driver)\n", len(tables), a.cfg.Database.Driver)
			})
		},
	}
}
