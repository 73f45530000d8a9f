// Package postgres implements core.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/rulesync/internal/config"
	"github.com/JonMunkholm/rulesync/internal/core"
	"github.com/JonMunkholm/rulesync/internal/store/sqlgen"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a core.Store backed by a connection pool.
type Store struct {
	repo
	pool *pgxpool.Pool
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{repo: repo{db: pool}, pool: pool}
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithTx runs fn in a serializable transaction. A concurrent sync that
// touched the same rows makes the later commit fail instead of silently
// interleaving.
func (s *Store) WithTx(ctx context.Context, fn func(core.Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(repo{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// EnsureSchema creates the table of every given schema and the audit table.
func (s *Store) EnsureSchema(ctx context.Context, schemas []core.Schema) error {
	stmts := sqlgen.Postgres.CreateAuditTable()
	for _, sc := range schemas {
		stmts = append(stmts, sqlgen.Postgres.CreateTable(sc))
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AppendAudit records an audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry core.AuditEntry) error {
	query, args := sqlgen.Postgres.InsertAudit(entry)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns audit entries matching filter, newest first.
func (s *Store) ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	query, args := sqlgen.Postgres.SelectAudit(filter)

	rows, err := s.pool.Query(ctx, query, args...)
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

// repo implements core.Repository over a pool or a transaction.
type repo struct {
	db DBTX
}

func (r repo) List(ctx context.Context, s core.Schema) ([]core.Record, error) {
	rows, err := r.db.Query(ctx, sqlgen.Postgres.SelectRows(s))
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
	var id int64
	if err := r.db.QueryRow(ctx, sqlgen.Postgres.InsertRow(s), insertArgs(s, rec)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", s.Table, describe(err))
	}
	return id, nil
}

func (r repo) Delete(ctx context.Context, s core.Schema, id int64) error {
	tag, err := r.db.Exec(ctx, sqlgen.Postgres.DeleteRow(s), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", s.Table, describe(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s id %d: %w", s.Table, id, core.ErrRowNotFound)
	}
	return nil
}

// insertArgs binds one value per field, empty for missing values.
func insertArgs(s core.Schema, rec core.Record) []any {
	args := make([]any, len(s.Fields))
	for i := range args {
		if i < len(rec.Values) {
			args[i] = rec.Values[i]
		} else {
			args[i] = ""
		}
	}
	return args
}

// describe adds the constraint name to server errors so the user message
// mapping and the logs can tell which column was rejected.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return fmt.Errorf("%w (constraint %s)", err, pgErr.ConstraintName)
	}
	return err
}
