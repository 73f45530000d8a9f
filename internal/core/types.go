package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Field is a single content column of a schema.
type Field struct {
	Name   string // Field name as shown to admins: "audience_type"
	Column string // Store column name (defaults to Name)
}

// ColumnName returns the store column for the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Schema describes one configuration domain: how its bulk text is split and
// which store table holds its rows. Schemas are immutable once registered.
type Schema struct {
	Domain        string  // Unique key: "ccgroup"
	Label         string  // Display name: "CC group rules"
	Table         string  // Store table: "cc_group_rules"
	Fields        []Field // Content fields in text order (never includes the id)
	Delimiter     string  // Field separator within a line
	MinFields     int     // Lines with fewer tokens are skipped
	CaseNormalize bool    // Lower-case the whole text before parsing
}

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks that a schema is usable by the parser and the stores.
// Table and column names must be plain lower-case identifiers because the
// stores interpolate them into SQL.
func (s Schema) Validate() error {
	if s.Domain == "" {
		return fmt.Errorf("schema: empty domain")
	}
	if !identifierRe.MatchString(s.Table) {
		return fmt.Errorf("schema %s: invalid table name %q", s.Domain, s.Table)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields", s.Domain)
	}
	if s.Delimiter == "" {
		return fmt.Errorf("schema %s: empty delimiter", s.Domain)
	}
	if s.MinFields < 1 {
		return fmt.Errorf("schema %s: minimum field count must be positive", s.Domain)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		col := f.ColumnName()
		if !identifierRe.MatchString(col) || col == "id" {
			return fmt.Errorf("schema %s: invalid column name %q", s.Domain, col)
		}
		if seen[col] {
			return fmt.Errorf("schema %s: duplicate column %q", s.Domain, col)
		}
		seen[col] = true
	}
	return nil
}

// FieldNames returns the field names in order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the store column names in field order.
func (s Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.ColumnName()
	}
	return cols
}

// FieldIndex returns the position of a field by name, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Record is one row of a domain table. Values are positional and follow
// the schema's field order. ID is the store-assigned surrogate key; zero
// means the record has not been stored (freshly parsed).
type Record struct {
	ID     int64
	Values []string
}

// Value returns the value of the named field, or "" if absent.
func (r Record) Value(s Schema, name string) string {
	i := s.FieldIndex(name)
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Map returns the record as field name -> value.
func (r Record) Map(s Schema) map[string]string {
	m := make(map[string]string, len(s.Fields))
	for i, f := range s.Fields {
		if i < len(r.Values) {
			m[f.Name] = r.Values[i]
		} else {
			m[f.Name] = ""
		}
	}
	return m
}

// Fingerprint is the content-derived identity of a record.
type Fingerprint string

// SkippedLine is an input line that produced no record.
type SkippedLine struct {
	Line   int    `json:"line" yaml:"line"`     // 1-based line number in the submitted text
	Text   string `json:"text" yaml:"text"`     // Line content after case normalization
	Fields int    `json:"fields" yaml:"fields"` // Number of tokens found
}

// ParseResult is the outcome of parsing a text block.
type ParseResult struct {
	Records []Record
	Skipped []SkippedLine
	Lines   int // Non-blank lines seen
}

// DuplicatePolicy controls how identical submitted lines are treated.
type DuplicatePolicy string

const (
	// DuplicatesKeep turns every submitted line into a row, so duplicate
	// lines become duplicate rows.
	DuplicatesKeep DuplicatePolicy = "keep"

	// DuplicatesCollapse keeps only the first line for each fingerprint.
	DuplicatesCollapse DuplicatePolicy = "collapse"
)

// ParseDuplicatePolicy converts a config string to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicatesKeep:
		return DuplicatesKeep, nil
	case DuplicatesCollapse:
		return DuplicatesCollapse, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want keep or collapse)", s)
	}
}

// Patch is the set of changes that makes a table match submitted text.
type Patch struct {
	Inserts  []Record // Records to insert, without IDs
	Deletes  []int64  // IDs of orphaned rows
	Retained int      // Rows matched by fingerprint and left untouched
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Deletes) == 0
}

// Repository is the row store the engine reads and patches.
// Implementations must return rows with their IDs set.
type Repository interface {
	List(ctx context.Context, s Schema) ([]Record, error)
	Insert(ctx context.Context, s Schema, r Record) (int64, error)
	Delete(ctx context.Context, s Schema, id int64) error
}

// Store is a Repository that can run work atomically and keep an audit log.
type Store interface {
	Repository

	// WithTx runs fn inside a transaction. If fn returns an error every
	// change made through the passed Repository is rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error

	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Locker serializes syncs of the same domain across processes.
type Locker interface {
	// Acquire takes the lock for key or returns ErrLocked if it is held.
	// The returned function releases it.
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// SyncRequest is one admin submission of bulk text.
type SyncRequest struct {
	Domain  string
	Text    string
	Version string // Version token from Render; empty skips the staleness check
}

// SyncResult describes a planned or applied sync.
type SyncResult struct {
	RunID           string        `json:"runId" yaml:"run_id"`
	Domain          string        `json:"domain" yaml:"domain"`
	DryRun          bool          `json:"dryRun" yaml:"dry_run"`
	Inserted        int           `json:"inserted" yaml:"inserted"`
	Deleted         int           `json:"deleted" yaml:"deleted"`
	Retained        int           `json:"retained" yaml:"retained"`
	Skipped         []SkippedLine `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	PreviousVersion string        `json:"previousVersion" yaml:"previous_version"`
	Version         string        `json:"version" yaml:"version"`
	Inserts         []Record      `json:"-" yaml:"-"`
	Deletes         []int64       `json:"deletes,omitempty" yaml:"deletes,omitempty"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Rendered is a table in its bulk-text form.
type Rendered struct {
	Domain  string `json:"domain" yaml:"domain"`
	Text    string `json:"text" yaml:"text"`
	Rows    int    `json:"rows" yaml:"rows"`
	Version string `json:"version" yaml:"version"`
}
