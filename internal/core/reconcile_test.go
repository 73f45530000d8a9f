package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// ============================================================================
// Diff
// ============================================================================

func TestReconcile_ModeratorAssistantScenario(t *testing.T) {
	rows := []Record{rec(1, "alice", "bob"), rec(2, "alice", "carol")}

	plan := Reconcile(pairSchema, rows, "alice,bob\nalice,dan", DuplicatesKeep)

	if plan.Patch.Retained != 1 {
		t.Errorf("Retained = %d, want 1", plan.Patch.Retained)
	}
	if !reflect.DeepEqual(plan.Patch.Deletes, []int64{2}) {
		t.Errorf("Deletes = %v, want [2]", plan.Patch.Deletes)
	}
	if len(plan.Patch.Inserts) != 1 || !reflect.DeepEqual(plan.Patch.Inserts[0].Values, []string{"alice", "dan"}) {
		t.Errorf("Inserts = %+v, want [{alice dan}]", plan.Patch.Inserts)
	}

	repo := newSliceRepo(rows...)
	if _, err := Apply(context.Background(), repo, pairSchema, plan.Patch); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []string{"alice,bob", "alice,dan"}
	if got := contents(pairSchema, repo.rows); !reflect.DeepEqual(got, want) {
		t.Errorf("final table = %q, want %q", got, want)
	}
}

func TestReconcile_CCGroupTrailingWhitespace(t *testing.T) {
	rows := []Record{rec(1, "course", "A", "student", "1", "desc", "g1")}

	plan := Reconcile(ccSchema, rows, " course | A |student|1  |desc |g1 \r\n", DuplicatesKeep)

	if !plan.Patch.Empty() {
		t.Errorf("expected empty patch, got %+v", plan.Patch)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		rows   []Record
	}{
		{"empty", pairSchema, nil},
		{"single", pairSchema, []Record{rec(1, "alice", "bob")}},
		{"several", pairSchema, []Record{rec(3, "x", "y"), rec(1, "alice", "bob"), rec(2, "alice", "carol")}},
		{"duplicates", pairSchema, []Record{rec(1, "alice", "bob"), rec(2, "alice", "bob"), rec(5, "alice", "bob")}},
		{"upper case in normalized domain", pairSchema, []Record{rec(1, "Alice", "BOB"), rec(2, "alice", "bob")}},
		{"upper case cc group", ccSchema, []Record{rec(7, "course", "A", "student", "1", "Intro Desc", "g1")}},
		{"stored padding", pairSchema, []Record{rec(4, " alice", "bob ")}},
		{"verbatim keeps case", verbatimSchema, []Record{rec(1, "Alpha", "Beta", "Gamma"), rec(2, "alpha", "beta", "gamma")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Reconcile(tt.schema, tt.rows, RenderLines(tt.schema, tt.rows), DuplicatesKeep)
			if !plan.Patch.Empty() {
				t.Errorf("reconciling rendered text gave %+v", plan.Patch)
			}
			if plan.Patch.Retained != len(tt.rows) {
				t.Errorf("Retained = %d, want %d", plan.Patch.Retained, len(tt.rows))
			}
		})
	}
}

func TestNewSnapshot_FoldsStoredCase(t *testing.T) {
	snap := NewSnapshot(pairSchema, []Record{rec(1, "Alice", "Bob")})
	if ids := snap[FingerprintOf(pairSchema, rec(0, "alice", "bob"))]; !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("normalized schema: ids = %v, want [1]", ids)
	}

	snap = NewSnapshot(verbatimSchema, []Record{rec(1, "Alice", "Bob", "")})
	if ids := snap[FingerprintOf(verbatimSchema, rec(0, "alice", "bob", ""))]; len(ids) != 0 {
		t.Errorf("verbatim schema: ids = %v, want none", ids)
	}
}

func TestReconcile_SetEquality(t *testing.T) {
	rows := []Record{rec(1, "a", "b"), rec(2, "c", "d"), rec(3, "e", "f")}
	text := "g,h\nc,d\ni,j\na,b"

	repo := newSliceRepo(rows...)
	plan := Reconcile(pairSchema, rows, text, DuplicatesKeep)
	if _, err := Apply(context.Background(), repo, pairSchema, plan.Patch); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := contents(pairSchema, Parse(text, pairSchema).Records)
	if got := contents(pairSchema, repo.rows); !reflect.DeepEqual(got, want) {
		t.Errorf("table = %q, want %q", got, want)
	}
}

func TestReconcile_DuplicateLines(t *testing.T) {
	text := "alice,bob\nalice,bob"

	t.Run("keep inserts every line", func(t *testing.T) {
		plan := Reconcile(pairSchema, nil, text, DuplicatesKeep)
		if len(plan.Patch.Inserts) != 2 {
			t.Fatalf("Inserts = %d, want 2", len(plan.Patch.Inserts))
		}
		a := FingerprintOf(pairSchema, plan.Patch.Inserts[0])
		b := FingerprintOf(pairSchema, plan.Patch.Inserts[1])
		if a != b {
			t.Error("duplicate lines should share a fingerprint")
		}
	})

	t.Run("keep claims one row per line", func(t *testing.T) {
		rows := []Record{rec(1, "alice", "bob")}
		plan := Reconcile(pairSchema, rows, text, DuplicatesKeep)
		if plan.Patch.Retained != 1 || len(plan.Patch.Inserts) != 1 || len(plan.Patch.Deletes) != 0 {
			t.Errorf("patch = %+v, want 1 retained and 1 insert", plan.Patch)
		}
	})

	t.Run("collapse inserts once", func(t *testing.T) {
		plan := Reconcile(pairSchema, nil, text, DuplicatesCollapse)
		if len(plan.Patch.Inserts) != 1 {
			t.Errorf("Inserts = %d, want 1", len(plan.Patch.Inserts))
		}
	})

	t.Run("collapse deletes surplus stored duplicates", func(t *testing.T) {
		rows := []Record{rec(1, "alice", "bob"), rec(2, "alice", "bob")}
		plan := Reconcile(pairSchema, rows, text, DuplicatesCollapse)
		if plan.Patch.Retained != 1 || !reflect.DeepEqual(plan.Patch.Deletes, []int64{2}) {
			t.Errorf("patch = %+v, want 1 retained and delete [2]", plan.Patch)
		}
	})
}

func TestReconcile_MalformedLineHasNoEffect(t *testing.T) {
	rows := []Record{rec(1, "alice", "bob")}

	clean := Reconcile(pairSchema, rows, "alice,bob\nalice,dan", DuplicatesKeep)
	noisy := Reconcile(pairSchema, rows, "alice,bob\nbroken\nalice,dan", DuplicatesKeep)

	if !reflect.DeepEqual(clean.Patch, noisy.Patch) {
		t.Errorf("malformed line changed the patch: %+v vs %+v", clean.Patch, noisy.Patch)
	}
	if len(noisy.Skipped) != 1 || noisy.Skipped[0].Line != 2 {
		t.Errorf("Skipped = %+v, want line 2", noisy.Skipped)
	}
}

func TestReconcile_FullWipe(t *testing.T) {
	rows := []Record{rec(4, "a", "b"), rec(2, "c", "d"), rec(9, "e", "f")}

	for _, text := range []string{"", "\r\n\r\n", "only-one-field\nanother"} {
		plan := Reconcile(pairSchema, rows, text, DuplicatesKeep)
		if len(plan.Patch.Inserts) != 0 {
			t.Errorf("%q: Inserts = %d, want 0", text, len(plan.Patch.Inserts))
		}
		if !reflect.DeepEqual(plan.Patch.Deletes, []int64{2, 4, 9}) {
			t.Errorf("%q: Deletes = %v, want [2 4 9]", text, plan.Patch.Deletes)
		}
	}
}

func TestReconcile_VersionIsSnapshotVersion(t *testing.T) {
	rows := []Record{rec(1, "a", "b")}
	plan := Reconcile(pairSchema, rows, "", DuplicatesKeep)
	if plan.Version != SnapshotVersion(pairSchema, rows) {
		t.Errorf("Version = %s, want %s", plan.Version, SnapshotVersion(pairSchema, rows))
	}
}

func TestDiff_InsertOrderFollowsInput(t *testing.T) {
	records := Parse("z,1\na,2\nm,3", pairSchema).Records
	patch := Diff(pairSchema, NewSnapshot(pairSchema, nil), records, DuplicatesKeep)

	var got []string
	for _, r := range patch.Inserts {
		got = append(got, r.Values[0])
	}
	if !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Errorf("insert order = %v, want [z a m]", got)
	}
}

func TestDiff_DoesNotModifySnapshot(t *testing.T) {
	snap := NewSnapshot(pairSchema, []Record{rec(1, "a", "b"), rec(2, "a", "b")})
	before := countIDs(snap)

	Diff(pairSchema, snap, Parse("a,b\na,b", pairSchema).Records, DuplicatesKeep)

	if countIDs(snap) != before {
		t.Errorf("snapshot size = %d after Diff, want %d", countIDs(snap), before)
	}
}

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot(pairSchema, []Record{
		rec(5, "a", "b"),
		rec(2, "a", "b"),
		rec(0, "unstored", "row"),
		rec(3, "c", "d"),
	})

	if countIDs(snap) != 3 {
		t.Errorf("size = %d, want 3", countIDs(snap))
	}
	ids := snap[FingerprintOf(pairSchema, rec(0, "a", "b"))]
	if !reflect.DeepEqual(ids, []int64{2, 5}) {
		t.Errorf("ids = %v, want [2 5]", ids)
	}
}

// ============================================================================
// Apply
// ============================================================================

func TestApply_InsertsBeforeDeletes(t *testing.T) {
	repo := newSliceRepo(rec(1, "a", "b"), rec(2, "c", "d"))
	patch := Patch{
		Inserts: []Record{rec(0, "x", "y"), rec(0, "z", "w")},
		Deletes: []int64{1, 2},
	}

	res, err := Apply(context.Background(), repo, pairSchema, patch)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(repo.calls, []string{"insert", "insert", "delete", "delete"}) {
		t.Errorf("calls = %v", repo.calls)
	}
	if !reflect.DeepEqual(res.InsertedIDs, []int64{3, 4}) {
		t.Errorf("InsertedIDs = %v, want [3 4]", res.InsertedIDs)
	}
	if res.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", res.Deleted)
	}
}

func TestApply_ReportsFailingStatement(t *testing.T) {
	tests := []struct {
		name      string
		op        string
		at        int
		wantPhase string
		wantIndex int
	}{
		{"second insert", "insert", 2, "insert", 1},
		{"first delete", "delete", 1, "delete", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newSliceRepo(rec(1, "a", "b"))
			repo.failOn(tt.op, tt.at, errRejected)

			patch := Patch{Inserts: []Record{rec(0, "x", "y"), rec(0, "z", "w")}, Deletes: []int64{1}}
			_, err := Apply(context.Background(), repo, pairSchema, patch)

			var applyErr *ApplyError
			if !errors.As(err, &applyErr) {
				t.Fatalf("error = %v, want *ApplyError", err)
			}
			if applyErr.Phase != tt.wantPhase || applyErr.Index != tt.wantIndex {
				t.Errorf("ApplyError = %s #%d, want %s #%d", applyErr.Phase, applyErr.Index, tt.wantPhase, tt.wantIndex)
			}
			if !errors.Is(err, errRejected) {
				t.Error("ApplyError should unwrap to the store error")
			}
		})
	}
}

func TestApply_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := newSliceRepo()
	_, err := Apply(ctx, repo, pairSchema, Patch{Inserts: []Record{rec(0, "a", "b")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(repo.rows) != 0 {
		t.Error("nothing should be written after cancellation")
	}
}

// ============================================================================
// RenderLines
// ============================================================================

func TestRenderLines(t *testing.T) {
	rows := []Record{
		rec(1, "course", "a", "student", "1", "desc", "g1"),
		rec(2, "group", "b", "mentor", "0", "", "g2"),
	}

	want := "course|a|student|1|desc|g1\r\ngroup|b|mentor|0||g2"
	if got := RenderLines(ccSchema, rows); got != want {
		t.Errorf("RenderLines() = %q, want %q", got, want)
	}

	if got := RenderLines(ccSchema, nil); got != "" {
		t.Errorf("RenderLines(nil) = %q, want empty", got)
	}
}
