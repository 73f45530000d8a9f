package core

import (
	"context"
	"errors"
	"sort"
)

// Test schemas mirror the shapes of the registered domains without touching
// the registry.
var (
	pairSchema = Schema{
		Domain:        "assistant",
		Table:         "moderator_assistants",
		Fields:        []Field{{Name: "moderator"}, {Name: "assistant"}},
		Delimiter:     ",",
		MinFields:     2,
		CaseNormalize: true,
	}

	ccSchema = Schema{
		Domain: "ccgroup",
		Table:  "cc_group_rules",
		Fields: []Field{
			{Name: "audience_type"}, {Name: "code"}, {Name: "role"},
			{Name: "force_send"}, {Name: "description"}, {Name: "cc_group_id"},
		},
		Delimiter:     "|",
		MinFields:     6,
		CaseNormalize: true,
	}

	verbatimSchema = Schema{
		Domain:    "verbatim",
		Table:     "verbatim_rules",
		Fields:    []Field{{Name: "code"}, {Name: "description"}, {Name: "note"}},
		Delimiter: ",",
		MinFields: 2,
	}
)

func rec(id int64, values ...string) Record {
	return Record{ID: id, Values: values}
}

// sliceRepo is a Repository over a slice. failOn makes the named operation
// fail on its n-th call (1-based).
type sliceRepo struct {
	rows   []Record
	nextID int64
	calls  []string

	failOp  string
	failAt  int
	failErr error
	opCount map[string]int
}

func newSliceRepo(rows ...Record) *sliceRepo {
	r := &sliceRepo{opCount: make(map[string]int)}
	for _, row := range rows {
		r.rows = append(r.rows, row)
		if row.ID > r.nextID {
			r.nextID = row.ID
		}
	}
	return r
}

func (r *sliceRepo) failOn(op string, n int, err error) {
	r.failOp, r.failAt, r.failErr = op, n, err
}

func (r *sliceRepo) check(op string) error {
	r.opCount[op]++
	if op == r.failOp && r.opCount[op] == r.failAt {
		return r.failErr
	}
	return nil
}

func (r *sliceRepo) List(context.Context, Schema) ([]Record, error) {
	return append([]Record(nil), r.rows...), nil
}

func (r *sliceRepo) Insert(_ context.Context, _ Schema, rec Record) (int64, error) {
	if err := r.check("insert"); err != nil {
		return 0, err
	}
	r.nextID++
	r.rows = append(r.rows, Record{ID: r.nextID, Values: rec.Values})
	r.calls = append(r.calls, "insert")
	return r.nextID, nil
}

func (r *sliceRepo) Delete(_ context.Context, _ Schema, id int64) error {
	if err := r.check("delete"); err != nil {
		return err
	}
	for i, row := range r.rows {
		if row.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			r.calls = append(r.calls, "delete")
			return nil
		}
	}
	return ErrRowNotFound
}

// contents returns the rows' values as sorted strings, ignoring IDs.
func contents(s Schema, rows []Record) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = RenderLines(s, []Record{r})
	}
	sort.Strings(out)
	return out
}

var errRejected = errors.New("ERROR: value too long for type character varying(10)")

// countIDs returns the number of row ids held by a snapshot.
func countIDs(snap Snapshot) int {
	n := 0
	for _, ids := range snap {
		n += len(ids)
	}
	return n
}
