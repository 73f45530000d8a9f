// Package sqlgen builds the SQL the row stores run against a schema's table.
//
// Table and column names come from registered schemas, never from user
// input, but are quoted anyway. Values are always bound as parameters.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// AuditTable stores one row per applied sync.
const AuditTable = "rulesync_audit_log"

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name string

	// IDColumn is the DDL of the surrogate key column.
	IDColumn string

	// TimeType is the column type for audit timestamps.
	TimeType string

	// Returning appends RETURNING "id" to inserts. Engines without it
	// report the new id through their driver instead.
	Returning bool

	placeholder func(n int) string
}

var (
	// Postgres uses numbered placeholders and RETURNING.
	Postgres = Dialect{
		Name:        "postgres",
		IDColumn:    `"id" BIGSERIAL PRIMARY KEY`,
		TimeType:    "TIMESTAMPTZ",
		Returning:   true,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}

	// SQLite uses anonymous placeholders and LastInsertId.
	SQLite = Dialect{
		Name:        "sqlite",
		IDColumn:    `"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		TimeType:    "TIMESTAMP",
		placeholder: func(int) string { return "?" },
	}
)

// Placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteColumns quotes each column of s in field order.
func quoteColumns(s core.Schema) []string {
	cols := s.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentifier(c)
	}
	return quoted
}

// CreateTable returns the DDL for a schema's table. Every content column is
// non-null text; absent values are stored as empty strings.
func (d Dialect) CreateTable(s core.Schema) string {
	defs := []string{d.IDColumn}
	for _, c := range quoteColumns(s) {
		defs = append(defs, c+" TEXT NOT NULL DEFAULT ''")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdentifier(s.Table), strings.Join(defs, ",\n\t"))
}

// SelectRows returns the query listing every row of s, id first, oldest first.
func (d Dialect) SelectRows(s core.Schema) string {
	cols := append([]string{quoteIdentifier("id")}, quoteColumns(s)...)
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quoteIdentifier(s.Table), quoteIdentifier("id"))
}

// InsertRow returns the statement inserting one row of s. It binds one
// parameter per field, in field order.
func (d Dialect) InsertRow(s core.Schema) string {
	params := make([]string, len(s.Fields))
	for i := range params {
		params[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(s.Table), strings.Join(quoteColumns(s), ", "), strings.Join(params, ", "))
	if d.Returning {
		query += " RETURNING " + quoteIdentifier("id")
	}
	return query
}

// DeleteRow returns the statement deleting one row of s by id.
func (d Dialect) DeleteRow(s core.Schema) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		quoteIdentifier(s.Table), quoteIdentifier("id"), d.Placeholder(1))
}

// auditColumns are the audit table's columns in insert and scan order.
var auditColumns = []string{
	"id", "action", "severity", "domain",
	"inserted", "deleted", "retained", "skipped",
	"version", "actor", "ip_address", "user_agent", "request_id", "created_at",
}

// CreateAuditTable returns the DDL for the audit log and its lookup index.
func (d Dialect) CreateAuditTable() []string {
	table := quoteIdentifier(AuditTable)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id" TEXT PRIMARY KEY,
	"action" TEXT NOT NULL,
	"severity" TEXT NOT NULL,
	"domain" TEXT NOT NULL,
	"inserted" INTEGER NOT NULL DEFAULT 0,
	"deleted" INTEGER NOT NULL DEFAULT 0,
	"retained" INTEGER NOT NULL DEFAULT 0,
	"skipped" INTEGER NOT NULL DEFAULT 0,
	"version" TEXT NOT NULL DEFAULT '',
	"actor" TEXT NOT NULL DEFAULT '',
	"ip_address" TEXT NOT NULL DEFAULT '',
	"user_agent" TEXT NOT NULL DEFAULT '',
	"request_id" TEXT NOT NULL DEFAULT '',
	"created_at" %s NOT NULL
)`, table, d.TimeType),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			quoteIdentifier("idx_"+AuditTable+"_domain_created"), table,
			quoteIdentifier("domain"), quoteIdentifier("created_at")),
	}
}

// InsertAudit returns the statement recording an audit entry, with its
// arguments.
func (d Dialect) InsertAudit(e core.AuditEntry) (string, []any) {
	cols := make([]string, len(auditColumns))
	params := make([]string, len(auditColumns))
	for i, c := range auditColumns {
		cols[i] = quoteIdentifier(c)
		params[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(AuditTable), strings.Join(cols, ", "), strings.Join(params, ", "))

	args := []any{
		e.ID, string(e.Action), string(e.Severity), e.Domain,
		e.Inserted, e.Deleted, e.Retained, e.Skipped,
		e.Version, e.Actor, e.IPAddress, e.UserAgent, e.RequestID, e.CreatedAt,
	}
	return query, args
}

// SelectAudit returns the query listing audit entries matching filter,
// newest first, with its arguments. Scan rows with AuditScanTargets.
func (d Dialect) SelectAudit(filter core.AuditFilter) (string, []any) {
	cols := make([]string, len(auditColumns))
	for i, c := range auditColumns {
		cols[i] = quoteIdentifier(c)
	}

	wb := NewWhereBuilder(d)
	wb.Add("domain", filter.Domain)
	where, args := wb.Build()

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s DESC, %s DESC",
		strings.Join(cols, ", "), quoteIdentifier(AuditTable), where,
		quoteIdentifier("created_at"), quoteIdentifier("id"))

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + d.Placeholder(len(args))
	}
	return query, args
}

// AuditScanTargets returns pointers into e in SelectAudit column order.
// Action and severity are scanned through the returned strings; call the
// returned finish func after Scan to copy them into e.
func AuditScanTargets(e *core.AuditEntry) ([]any, func()) {
	var action, severity string
	targets := []any{
		&e.ID, &action, &severity, &e.Domain,
		&e.Inserted, &e.Deleted, &e.Retained, &e.Skipped,
		&e.Version, &e.Actor, &e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt,
	}
	return targets, func() {
		e.Action = core.AuditAction(action)
		e.Severity = core.AuditSeverity(severity)
	}
}
