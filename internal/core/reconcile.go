package core

// reconcile.go computes and applies the patch that makes a table match
// submitted text.
//
// Rows are matched purely by fingerprint. The snapshot is a multiset: a table
// holding two identical rows has two ids under one fingerprint, and each
// submitted line consumes at most one of them. Whatever is left over after all
// submitted lines are processed is orphaned and deleted.

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Snapshot maps fingerprints to the ids of the stored rows carrying them.
type Snapshot map[Fingerprint][]int64

// NewSnapshot builds a snapshot from stored rows. Rows without an ID are ignored.
//
// Stored values are fingerprinted in the form Parse would give them, so a row
// written with upper-case letters into a case-normalized table still matches
// its own rendered line.
func NewSnapshot(s Schema, rows []Record) Snapshot {
	snap := make(Snapshot, len(rows))
	for _, r := range rows {
		if r.ID == 0 {
			continue
		}
		fp := FingerprintOf(s, Record{Values: canonicalValues(s, r)})
		snap[fp] = append(snap[fp], r.ID)
	}
	for fp := range snap {
		ids := snap[fp]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return snap
}

// Diff computes the patch turning the snapshot into exactly the submitted records.
//
// Candidates are processed in input order. A candidate whose fingerprint still
// has an unclaimed id retains that row; otherwise it is queued for insert.
// With DuplicatesKeep, a repeated line therefore becomes an extra row. With
// DuplicatesCollapse, repeats of a fingerprint already seen are dropped first.
//
// The snapshot is not modified.
func Diff(s Schema, snap Snapshot, records []Record, policy DuplicatePolicy) Patch {
	remaining := make(Snapshot, len(snap))
	for fp, ids := range snap {
		remaining[fp] = append([]int64(nil), ids...)
	}

	var patch Patch
	seen := make(map[Fingerprint]bool)

	for _, r := range records {
		fp := FingerprintOf(s, r)

		if policy == DuplicatesCollapse {
			if seen[fp] {
				continue
			}
			seen[fp] = true
		}

		if ids := remaining[fp]; len(ids) > 0 {
			remaining[fp] = ids[1:]
			patch.Retained++
			continue
		}

		patch.Inserts = append(patch.Inserts, Record{Values: append([]string(nil), r.Values...)})
	}

	for _, ids := range remaining {
		patch.Deletes = append(patch.Deletes, ids...)
	}
	sort.Slice(patch.Deletes, func(i, j int) bool { return patch.Deletes[i] < patch.Deletes[j] })

	return patch
}

// Plan is a computed, unapplied reconciliation.
type Plan struct {
	Schema  Schema
	Patch   Patch
	Skipped []SkippedLine
	Version string // Version of the rows the plan was computed against
}

// Reconcile parses text and diffs it against the stored rows.
func Reconcile(s Schema, rows []Record, text string, policy DuplicatePolicy) Plan {
	parsed := Parse(text, s)
	return Plan{
		Schema:  s,
		Patch:   Diff(s, NewSnapshot(s, rows), parsed.Records, policy),
		Skipped: parsed.Skipped,
		Version: SnapshotVersion(s, rows),
	}
}

// ApplyError reports which statement of a patch the store rejected.
type ApplyError struct {
	Phase string // "insert" or "delete"
	Index int    // Position within the phase
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s #%d: %v", e.Phase, e.Index+1, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// ApplyResult reports what Apply wrote.
type ApplyResult struct {
	InsertedIDs []int64
	Deleted     int
}

// Apply executes the patch: all inserts, then all deletes. It stops at the
// first rejected statement. Apply does not provide atomicity itself; run it
// inside Store.WithTx to get all-or-nothing behavior.
func Apply(ctx context.Context, repo Repository, s Schema, patch Patch) (ApplyResult, error) {
	var result ApplyResult

	for i, r := range patch.Inserts {
		if err := ctx.Err(); err != nil {
			return result, &ApplyError{Phase: "insert", Index: i, Err: err}
		}
		id, err := repo.Insert(ctx, s, Record{Values: r.Values})
		if err != nil {
			return result, &ApplyError{Phase: "insert", Index: i, Err: err}
		}
		result.InsertedIDs = append(result.InsertedIDs, id)
	}

	for i, id := range patch.Deletes {
		if err := ctx.Err(); err != nil {
			return result, &ApplyError{Phase: "delete", Index: i, Err: err}
		}
		if err := repo.Delete(ctx, s, id); err != nil {
			return result, &ApplyError{Phase: "delete", Index: i, Err: err}
		}
		result.Deleted++
	}

	return result, nil
}

// RenderLines formats records as bulk text: content fields joined by the
// schema delimiter, one record per line, lines joined by CRLF.
func RenderLines(s Schema, records []Record) string {
	lines := make([]string, len(records))
	for i, r := range records {
		values := make([]string, len(s.Fields))
		copy(values, r.Values)
		lines[i] = strings.Join(values, s.Delimiter)
	}
	return strings.Join(lines, "\r\n")
}
