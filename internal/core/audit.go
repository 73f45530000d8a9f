package core

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionSync     AuditAction = "sync"
	ActionFullWipe AuditAction = "full_wipe"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// DefaultHistoryLimit is the number of audit entries returned when no limit is given.
const DefaultHistoryLimit = 50

// AuditEntry records one applied sync.
type AuditEntry struct {
	ID        string        `json:"id" yaml:"id"`
	Action    AuditAction   `json:"action" yaml:"action"`
	Severity  AuditSeverity `json:"severity" yaml:"severity"`
	Domain    string        `json:"domain" yaml:"domain"`
	Inserted  int           `json:"inserted" yaml:"inserted"`
	Deleted   int           `json:"deleted" yaml:"deleted"`
	Retained  int           `json:"retained" yaml:"retained"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Version   string        `json:"version" yaml:"version"`
	Actor     string        `json:"actor,omitempty" yaml:"actor,omitempty"`
	IPAddress string        `json:"ipAddress,omitempty" yaml:"ip_address,omitempty"`
	UserAgent string        `json:"userAgent,omitempty" yaml:"user_agent,omitempty"`
	RequestID string        `json:"requestId,omitempty" yaml:"request_id,omitempty"`
	CreatedAt time.Time     `json:"createdAt" yaml:"created_at"`
}

// AuditFilter contains filtering options for querying the audit log.
type AuditFilter struct {
	Domain string
	Limit  int
}

// determineAction returns the action and severity for an applied sync.
// Emptying a table that had rows is a full wipe and always critical.
func determineAction(result *SyncResult) (AuditAction, AuditSeverity) {
	remaining := result.Retained + result.Inserted
	if remaining == 0 && result.Deleted > 0 {
		return ActionFullWipe, SeverityCritical
	}
	if result.Inserted > 0 || result.Deleted > 0 {
		return ActionSync, SeverityHigh
	}
	return ActionSync, SeverityMedium
}

// newAuditEntry builds the audit entry for an applied sync, pulling request
// metadata from the context.
func newAuditEntry(ctx context.Context, result *SyncResult) AuditEntry {
	action, severity := determineAction(result)

	id := result.RunID
	if id == "" {
		id = uuid.NewString()
	}

	return AuditEntry{
		ID:        id,
		Action:    action,
		Severity:  severity,
		Domain:    result.Domain,
		Inserted:  result.Inserted,
		Deleted:   result.Deleted,
		Retained:  result.Retained,
		Skipped:   len(result.Skipped),
		Version:   result.Version,
		Actor:     GetActorFromContext(ctx),
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		RequestID: middleware.GetReqID(ctx),
		CreatedAt: time.Now().UTC(),
	}
}
