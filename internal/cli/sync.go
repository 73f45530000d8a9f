package cli

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// userAgent identifies CLI submissions in the audit log.
const userAgent = "rulesync-cli"

// syncOptions holds flags shared by plan and sync.
type syncOptions struct {
	file      string
	version   string
	actor     string
	requestID string
	clientIP  string
	allowWipe bool
}

func (o *syncOptions) bind(cmd *cobra.Command, opts *RootOptions) {
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "input file (default stdin)")
	cmd.Flags().StringVar(&o.version, "version", "", "version token from render; rejects the submission if the table changed")
	cmd.Flags().StringVar(&o.actor, "actor", opts.getenv("USER"), "name recorded in the audit log")
	cmd.Flags().StringVar(&o.requestID, "request-id", "", "correlation id recorded in logs and the audit log (default random)")
	cmd.Flags().StringVar(&o.clientIP, "client-ip", "", "address of the admin the submission came from, when relayed by another tool")
}

// validate checks flag values that cobra cannot.
func (o *syncOptions) validate() error {
	if o.clientIP != "" && net.ParseIP(o.clientIP) == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --client-ip %q", o.clientIP))
	}
	return nil
}

// requestContext attaches the audit metadata to ctx.
func (o *syncOptions) requestContext(ctx context.Context) context.Context {
	id := o.requestID
	if id == "" {
		id = uuid.NewString()
	}
	ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
	ctx = core.ContextWithActor(ctx, o.actor)
	if o.clientIP != "" {
		ctx = core.ContextWithIPAddress(ctx, o.clientIP)
	}
	return core.ContextWithUserAgent(ctx, userAgent)
}

// resultView is the structured form of a plan or sync result.
type resultView struct {
	core.SyncResult `yaml:",inline"`
	InsertedRows []map[string]string `json:"insertedRows,omitempty" yaml:"inserted_rows,omitempty"`
}

func newResultView(s core.Schema, res *core.SyncResult) resultView {
	v := resultView{SyncResult: *res}
	for _, r := range res.Inserts {
		v.InsertedRows = append(v.InsertedRows, r.Map(s))
	}
	return v
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	var so syncOptions

	cmd := &cobra.Command{
		Use:   "plan <domain>",
		Short: "Show the changes a sync would make",
		Long: `Plan diffs bulk text against the current table and prints the rows that a
sync would insert and delete. Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := so.validate(); err != nil {
				return err
			}
			schema, err := core.Describe(args[0])
			if err != nil {
				return operationError("plan", err)
			}
			text, err := readInput(cmd, so.file)
			if err != nil {
				return err
			}

			ctx := so.requestContext(cmd.Context())
			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.service.Plan(ctx, core.SyncRequest{Domain: schema.Domain, Text: text, Version: so.version})
			if err != nil {
				return operationError("plan", err)
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, newResultView(schema, res), func(w io.Writer) {
				printResult(w, schema, res, a.service.Policy())
			})
		},
	}

	so.bind(cmd, opts)

	return cmd
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var so syncOptions

	cmd := &cobra.Command{
		Use:   "sync <domain>",
		Short: "Make a domain table match bulk text",
		Long: `Sync reads bulk text from --file (or stdin), diffs it against the current
table by content and applies the inserts and deletes in one transaction.

A submission that would delete every row and insert nothing is refused unless
--allow-wipe is given. Without --version, sync pins the table version it
planned against, so a concurrent change between plan and apply is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := so.validate(); err != nil {
				return err
			}
			schema, err := core.Describe(args[0])
			if err != nil {
				return operationError("sync", err)
			}
			text, err := readInput(cmd, so.file)
			if err != nil {
				return err
			}

			ctx := so.requestContext(cmd.Context())
			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			req := core.SyncRequest{Domain: schema.Domain, Text: text, Version: so.version}

			plan, err := a.service.Plan(ctx, req)
			if err != nil {
				return operationError("sync", err)
			}
			if plan.Inserted+plan.Retained == 0 && plan.Deleted > 0 && !so.allowWipe {
				return NewExitError(ExitFailure, fmt.Sprintf(
					"refusing to delete all %d rows of %s; pass --allow-wipe to empty the table",
					plan.Deleted, schema.Domain))
			}
			if req.Version == "" {
				req.Version = plan.PreviousVersion
			}

			res, err := a.service.Sync(ctx, req)
			if err != nil {
				return operationError("sync", err)
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, newResultView(schema, res), func(w io.Writer) {
				printResult(w, schema, res, a.service.Policy())
			})
		},
	}

	so.bind(cmd, opts)
	cmd.Flags().BoolVar(&so.allowWipe, "allow-wipe", false, "allow a submission that empties the table")

	return cmd
}

func printResult(w io.Writer, s core.Schema, res *core.SyncResult, policy core.DuplicatePolicy) {
	if res.DryRun {
		fmt.Fprintf(w, "%s: %d to insert, %d to delete, %d retained, %d skipped (dry run, duplicates: %s)\n",
			res.Domain, res.Inserted, res.Deleted, res.Retained, len(res.Skipped), policy)
	} else {
		fmt.Fprintf(w, "%s: %d inserted, %d deleted, %d retained, %d skipped\n",
			res.Domain, res.Inserted, res.Deleted, res.Retained, len(res.Skipped))
	}
	fmt.Fprintf(w, "version: %s -> %s\n", res.PreviousVersion, res.Version)

	for _, r := range res.Inserts {
		line := core.RenderLines(s, []core.Record{r})
		if r.ID != 0 {
			fmt.Fprintf(w, "  + #%d %s\n", r.ID, line)
		} else {
			fmt.Fprintf(w, "  + %s\n", line)
		}
	}
	for _, id := range res.Deletes {
		fmt.Fprintf(w, "  - #%d\n", id)
	}
	printSkipped(w, s, res.Skipped)
}
