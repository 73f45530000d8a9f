// Package memory provides an in-process core.Store for tests and for
// exercising the sync engine without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// Store keeps tables and the audit log in memory.
//
// Transactions take the store lock for their whole duration, so they are
// serialized with each other and with direct calls. fn passed to WithTx
// must only use the Repository it is given.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	audit  []core.AuditEntry

	// BeforeWrite, when set, runs before every insert and delete and can
	// fail it. Tests use it to simulate store rejections.
	BeforeWrite func(op string, s core.Schema, r core.Record) error
}

type table struct {
	rows   map[int64][]string
	nextID int64
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// List returns the rows of s's table ordered by ID.
func (st *Store) List(ctx context.Context, s core.Schema) ([]core.Record, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.repo(st.tables).List(ctx, s)
}

// Insert adds a row and returns its new ID.
func (st *Store) Insert(ctx context.Context, s core.Schema, r core.Record) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.repo(st.tables).Insert(ctx, s, r)
}

// Delete removes a row by ID.
func (st *Store) Delete(ctx context.Context, s core.Schema, id int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.repo(st.tables).Delete(ctx, s, id)
}

// WithTx runs fn against a copy of every table and publishes the copy only
// if fn succeeds.
func (st *Store) WithTx(ctx context.Context, fn func(core.Repository) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	draft := make(map[string]*table, len(st.tables))
	for name, t := range st.tables {
		draft[name] = t.clone()
	}

	if err := fn(st.repo(draft)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	st.tables = draft
	return nil
}

// AppendAudit records an audit entry.
func (st *Store) AppendAudit(_ context.Context, entry core.AuditEntry) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.audit = append(st.audit, entry)
	return nil
}

// ListAudit returns entries matching filter, newest first.
func (st *Store) ListAudit(_ context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []core.AuditEntry
	for i := len(st.audit) - 1; i >= 0; i-- {
		e := st.audit[i]
		if filter.Domain != "" && e.Domain != filter.Domain {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (t *table) clone() *table {
	c := &table{rows: make(map[int64][]string, len(t.rows)), nextID: t.nextID}
	for id, values := range t.rows {
		c.rows[id] = values
	}
	return c
}

// repo is a Repository over a set of tables. The caller holds the store lock.
type repo struct {
	store  *Store
	tables map[string]*table
}

func (st *Store) repo(tables map[string]*table) repo {
	return repo{store: st, tables: tables}
}

func (r repo) table(s core.Schema) *table {
	t, ok := r.tables[s.Table]
	if !ok {
		t = &table{rows: make(map[int64][]string)}
		r.tables[s.Table] = t
	}
	return t
}

func (r repo) List(_ context.Context, s core.Schema) ([]core.Record, error) {
	t := r.table(s)
	out := make([]core.Record, 0, len(t.rows))
	for id, values := range t.rows {
		out = append(out, core.Record{ID: id, Values: append([]string(nil), values...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r repo) Insert(_ context.Context, s core.Schema, rec core.Record) (int64, error) {
	if hook := r.store.BeforeWrite; hook != nil {
		if err := hook("insert", s, rec); err != nil {
			return 0, err
		}
	}

	values := make([]string, len(s.Fields))
	copy(values, rec.Values)

	t := r.table(s)
	t.nextID++
	t.rows[t.nextID] = values
	return t.nextID, nil
}

func (r repo) Delete(_ context.Context, s core.Schema, id int64) error {
	if hook := r.store.BeforeWrite; hook != nil {
		if err := hook("delete", s, core.Record{ID: id}); err != nil {
			return err
		}
	}

	t := r.table(s)
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%s id %d: %w", s.Table, id, core.ErrRowNotFound)
	}
	delete(t.rows, id)
	return nil
}
