package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// schemaView is the structured form of a registered schema.
type schemaView struct {
	Domain    string   `json:"domain" yaml:"domain"`
	Label     string   `json:"label" yaml:"label"`
	Table     string   `json:"table" yaml:"table"`
	Delimiter string   `json:"delimiter" yaml:"delimiter"`
	MinFields int      `json:"minFields" yaml:"min_fields"`
	Lowercase bool     `json:"lowercase" yaml:"lowercase"`
	Fields    []string `json:"fields" yaml:"fields"`
}

// NewSchemasCommand creates the schemas command.
func NewSchemasCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the registered domains and their line formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if core.SchemaCount() == 0 {
				return NewExitError(ExitFailure, "no domains are registered in this build")
			}
			schemas := core.All()
			views := make([]schemaView, len(schemas))
			for i, s := range schemas {
				views[i] = schemaView{
					Domain:    s.Domain,
					Label:     s.Label,
					Table:     s.Table,
					Delimiter: s.Delimiter,
					MinFields: s.MinFields,
					Lowercase: s.CaseNormalize,
					Fields:    s.FieldNames(),
				}
			}

			return writeResult(cmd.OutOrStdout(), opts.Format, views, func(w io.Writer) {
				for i, v := range views {
					if i > 0 {
						fmt.Fprintln(w)
					}
					fmt.Fprintf(w, "%s (%s)\n", v.Domain, v.Label)
					fmt.Fprintf(w, "  table:     %s\n", v.Table)
					fmt.Fprintf(w, "  delimiter: %q\n", v.Delimiter)
					fmt.Fprintf(w, "  lowercase: %s\n", yesNo(v.Lowercase))
					fmt.Fprintf(w, "  fields:    %s\n", strings.Join(v.Fields, ", "))
				}
			})
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
