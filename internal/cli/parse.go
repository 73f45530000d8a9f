package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// parseView is the structured form of a parse result.
type parseView struct {
	Domain  string              `json:"domain" yaml:"domain"`
	Lines   int                 `json:"lines" yaml:"lines"`
	Records []map[string]string `json:"records" yaml:"records"`
	Skipped []core.SkippedLine  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// NewParseCommand creates the parse command. It checks bulk text against a
// domain's line format without touching the database.
func NewParseCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "parse <domain>",
		Short: "Parse bulk text and show the records it yields",
		Long: `Parse reads bulk text from --file (or stdin) and prints the records it
produces in canonical form, followed by the lines that were skipped for having
too few fields. Nothing is read from or written to the database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := core.Describe(args[0])
			if err != nil {
				return operationError("parse", err)
			}

			text, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			parsed := core.Parse(text, schema)
			view := parseView{
				Domain:  schema.Domain,
				Lines:   parsed.Lines,
				Records: make([]map[string]string, len(parsed.Records)),
				Skipped: parsed.Skipped,
			}
			for i, r := range parsed.Records {
				view.Records[i] = r.Map(schema)
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) {
				for _, r := range parsed.Records {
					fmt.Fprintln(w, core.RenderLines(schema, []core.Record{r}))
				}
				fmt.Fprintf(w, "\n%d records, %d skipped\n", len(parsed.Records), len(parsed.Skipped))
				printSkipped(w, schema, parsed.Skipped)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "input file (default stdin)")

	return cmd
}

func printSkipped(w io.Writer, s core.Schema, skipped []core.SkippedLine) {
	for _, l := range skipped {
		fmt.Fprintf(w, "  line %d: %d of %d fields: %s\n", l.Line, l.Fields, s.MinFields, l.Text)
	}
}
