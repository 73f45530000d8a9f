package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/rulesync/internal/logging"
)

// DefaultSyncTimeout is used when Options.SyncTimeout is zero.
const DefaultSyncTimeout = 30 * time.Second

// Options configures a Service.
type Options struct {
	// Locker serializes syncs per domain. Nil disables locking.
	Locker Locker

	// Policy controls how duplicate submitted lines are treated.
	Policy DuplicatePolicy

	// SyncTimeout bounds a whole sync, lock acquisition included.
	SyncTimeout time.Duration

	// RequireVersion rejects syncs that carry no version token.
	RequireVersion bool
}

// Service runs render/plan/sync cycles against an injected store.
type Service struct {
	store Store
	opts  Options
}

// NewService creates a new Service instance.
func NewService(store Store, opts Options) *Service {
	if opts.Policy == "" {
		opts.Policy = DuplicatesKeep
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	return &Service{store: store, opts: opts}
}

// Policy returns the duplicate policy in effect.
func (s *Service) Policy() DuplicatePolicy {
	return s.opts.Policy
}

// Render returns the current table of a domain as bulk text, with the
// version token a later Sync can use to detect intervening changes.
func (s *Service) Render(ctx context.Context, domain string) (*Rendered, error) {
	schema, err := Describe(domain)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.List(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("render %s: list rows: %w", domain, err)
	}
	sortByID(rows)

	return &Rendered{
		Domain:  domain,
		Text:    RenderLines(schema, rows),
		Rows:    len(rows),
		Version: SnapshotVersion(schema, rows),
	}, nil
}

// Plan computes the patch a Sync would apply, without writing anything.
func (s *Service) Plan(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	schema, err := Describe(req.Domain)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.store.List(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("plan %s: list rows: %w", req.Domain, err)
	}

	plan := Reconcile(schema, rows, req.Text, s.opts.Policy)
	if err := checkVersion(req.Version, plan.Version); err != nil {
		return nil, fmt.Errorf("plan %s: %w", req.Domain, err)
	}

	result := newResult(uuid.NewString(), plan, rows)
	result.DryRun = true
	result.Inserts = plan.Patch.Inserts
	result.Duration = time.Since(start)

	logging.WithFields(ctx, "domain", req.Domain, "run_id", result.RunID).Debug("sync planned",
		"inserts", result.Inserted,
		"deletes", result.Deleted,
		"retained", result.Retained,
		"skipped", len(result.Skipped),
	)

	return result, nil
}

// Sync reconciles a domain's table with the submitted text.
//
// The rows are re-read inside the transaction that applies the patch, so the
// diff is always computed against the state being modified. If req.Version
// is set and no longer matches that state, nothing is written and
// ErrStaleSnapshot is returned. Any store error rolls back the whole patch.
func (s *Service) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	schema, err := Describe(req.Domain)
	if err != nil {
		return nil, err
	}
	if s.opts.RequireVersion && req.Version == "" {
		return nil, fmt.Errorf("sync %s: %w", req.Domain, ErrVersionRequired)
	}

	runID := uuid.NewString()
	logger := logging.WithFields(ctx, "domain", req.Domain, "run_id", runID)

	ctx, cancel := context.WithTimeout(ctx, s.opts.SyncTimeout)
	defer cancel()

	if s.opts.Locker != nil {
		release, err := s.opts.Locker.Acquire(ctx, schema.Domain)
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", req.Domain, err)
		}
		defer func() {
			// Release even if ctx has expired
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release sync lock", "error", err)
			}
		}()
	}

	start := time.Now()
	var result *SyncResult

	err = s.store.WithTx(ctx, func(repo Repository) error {
		rows, err := repo.List(ctx, schema)
		if err != nil {
			return fmt.Errorf("list rows: %w", err)
		}

		plan := Reconcile(schema, rows, req.Text, s.opts.Policy)
		if err := checkVersion(req.Version, plan.Version); err != nil {
			return err
		}

		applied, err := Apply(ctx, repo, schema, plan.Patch)
		if err != nil {
			return err
		}

		result = newResult(runID, plan, rows)
		result.Inserts = make([]Record, len(plan.Patch.Inserts))
		for i, r := range plan.Patch.Inserts {
			result.Inserts[i] = Record{ID: applied.InsertedIDs[i], Values: r.Values}
		}
		return nil
	})
	if err != nil {
		logger.Error("sync failed, changes rolled back", "error", err)
		return nil, fmt.Errorf("sync %s: %w", req.Domain, err)
	}
	result.Duration = time.Since(start)

	if n := len(result.Skipped); n > 0 {
		logger.Warn("malformed lines skipped", "count", n, "min_fields", schema.MinFields)
	}

	entry := newAuditEntry(ctx, result)
	if err := s.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to record audit entry", "error", err)
	}

	logger.Info("sync applied",
		"action", entry.Action,
		"inserted", result.Inserted,
		"deleted", result.Deleted,
		"retained", result.Retained,
		"skipped", len(result.Skipped),
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result, nil
}

// History returns audit entries, newest first.
func (s *Service) History(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}
	if filter.Domain != "" {
		if _, err := Describe(filter.Domain); err != nil {
			return nil, err
		}
	}
	return s.store.ListAudit(ctx, filter)
}

// checkVersion compares a submitted version token with the current one.
// An empty submitted token skips the check.
func checkVersion(submitted, current string) error {
	if submitted == "" || submitted == current {
		return nil
	}
	return fmt.Errorf("%w: rendered at %s, table is now %s", ErrStaleSnapshot, submitted, current)
}

// newResult summarizes a plan computed against rows.
func newResult(runID string, plan Plan, rows []Record) *SyncResult {
	return &SyncResult{
		RunID:           runID,
		Domain:          plan.Schema.Domain,
		Inserted:        len(plan.Patch.Inserts),
		Deleted:         len(plan.Patch.Deletes),
		Retained:        plan.Patch.Retained,
		Skipped:         plan.Skipped,
		PreviousVersion: plan.Version,
		Version:         SnapshotVersion(plan.Schema, patchedRows(rows, plan.Patch)),
		Deletes:         plan.Patch.Deletes,
	}
}

// patchedRows returns the rows the table will hold once patch is applied.
func patchedRows(rows []Record, patch Patch) []Record {
	deleted := make(map[int64]bool, len(patch.Deletes))
	for _, id := range patch.Deletes {
		deleted[id] = true
	}

	out := make([]Record, 0, len(rows)+len(patch.Inserts))
	for _, r := range rows {
		if !deleted[r.ID] {
			out = append(out, r)
		}
	}
	return append(out, patch.Inserts...)
}

func sortByID(rows []Record) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
}
