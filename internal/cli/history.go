package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var filter core.AuditFilter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show applied syncs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Domain != "" && !slices.Contains(core.Domains(), filter.Domain) {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown domain %q: must be one of %s",
					filter.Domain, strings.Join(core.Domains(), ", ")))
			}
			ctx := cmd.Context()

			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.service.History(ctx, filter)
			if err != nil {
				return operationError("history", err)
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tDOMAIN\tACTION\tSEVERITY\tCHANGES\tVERSION\tACTOR")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t+%d -%d =%d\t%s\t%s\n",
						e.CreatedAt.Format(time.RFC3339), e.Domain, e.Action, e.Severity,
						e.Inserted, e.Deleted, e.Retained, e.Version, e.Actor)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&filter.Domain, "domain", "", "only show entries for this domain")
	cmd.Flags().IntVar(&filter.Limit, "limit", core.DefaultHistoryLimit, "maximum number of entries")

	return cmd
}
