package sqlgen

import "strings"

// WhereBuilder accumulates equality conditions and their bind arguments.
type WhereBuilder struct {
	dialect    Dialect
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder creates a builder emitting d's placeholders.
func NewWhereBuilder(d Dialect) *WhereBuilder {
	return &WhereBuilder{dialect: d, argIndex: 1}
}

// Add adds "column = value". Empty values are skipped so optional filters
// can be passed through unconditionally.
func (wb *WhereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, quoteIdentifier(column)+" = "+wb.dialect.Placeholder(wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// Build returns the WHERE clause with a leading space, or "" when there
// are no conditions, and the arguments to bind.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
