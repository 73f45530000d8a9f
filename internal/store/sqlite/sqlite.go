// Package sqlite implements core.Store on a local SQLite file, for single
// host deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/rulesync/internal/core"
	"github.com/JonMunkholm/rulesync/internal/store/sqlgen"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is a core.Store backed by a SQLite database.
type Store struct {
	repo
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Only one connection is kept open, so transactions are serialized.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{repo: repo{db: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// EnsureSchema creates the table of every given schema and the audit table.
// It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context, schemas []core.Schema) error {
	stmts := sqlgen.SQLite.CreateAuditTable()
	for _, sc := range schemas {
		stmts = append(stmts, sqlgen.SQLite.CreateTable(sc))
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn in a transaction, rolling back if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(core.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(repo{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendAudit records an audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry core.AuditEntry) error {
	query, args := sqlgen.SQLite.InsertAudit(entry)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns audit entries matching filter, newest first.
func (s *Store) ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	query, args := sqlgen.SQLite.SelectAudit(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		targets, finish := sqlgen.AuditScanTargets(&e)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		finish()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// repo implements core.Repository over a database or a transaction.
type repo struct {
	db DBTX
}

func (r repo) List(ctx context.Context, s core.Schema) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, sqlgen.SQLite.SelectRows(s))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.Table, err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		rec := core.Record{Values: make([]string, len(s.Fields))}
		dest := make([]any, 0, len(s.Fields)+1)
		dest = append(dest, &rec.ID)
		for i := range rec.Values {
			dest = append(dest, &rec.Values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Table, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Table, err)
	}
	return records, nil
}

func (r repo) Insert(ctx context.Context, s core.Schema, rec core.Record) (int64, error) {
	args := make([]any, len(s.Fields))
	for i := range args {
		args[i] = ""
		if i < len(rec.Values) {
			args[i] = rec.Values[i]
		}
	}

	res, err := r.db.ExecContext(ctx, sqlgen.SQLite.InsertRow(s), args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", s.Table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: last insert id: %w", s.Table, err)
	}
	return id, nil
}

func (r repo) Delete(ctx context.Context, s core.Schema, id int64) error {
	res, err := r.db.ExecContext(ctx, sqlgen.SQLite.DeleteRow(s), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", s.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: rows affected: %w", s.Table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s id %d: %w", s.Table, id, core.ErrRowNotFound)
	}
	return nil
}
