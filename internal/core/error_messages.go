// Package core provides the bulk-text reconciliation engine.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Admins can quote the code to support staff for faster diagnosis.
//
// # Sync Errors (SYNC001-SYNC099)
//
// Errors raised by the reconciliation engine itself. These are matched with
// errors.Is against the package sentinels, not by message text:
//
//	SYNC001 - Unknown domain: No schema is registered for the requested domain
//	          Action: Check the domain name with `rulesync schemas`
//	          Sentinel: ErrUnknownDomain
//
//	SYNC002 - Stale snapshot: The table changed since it was rendered
//	          Action: Reload the table, reapply your edits and submit again
//	          Sentinel: ErrStaleSnapshot
//
//	SYNC003 - Version required: The submission carried no version token
//	          Action: Render the table first and submit with its version
//	          Sentinel: ErrVersionRequired
//
//	SYNC004 - Locked: Another sync of this domain is in progress
//	          Action: Wait for it to finish and try again
//	          Sentinel: ErrLocked
//
//	SYNC005 - Row not found: A row scheduled for deletion no longer exists
//	          Action: Reload the table and submit again
//	          Sentinel: ErrRowNotFound
//
//	SYNC006 - Cancelled: The sync was cancelled before it finished
//	          Action: Submit again; nothing was changed
//	          Sentinel: context.Canceled
//
//	SYNC007 - Timeout: The sync did not finish in time
//	          Action: Try again later; nothing was changed
//	          Sentinel: context.DeadlineExceeded
//
// # Database Errors (DB001-DB099)
//
// Errors reported by the row store, matched case-insensitively by message:
//
//	DB001 - Duplicate key: A row with this key already exists
//	        Patterns: "duplicate key", "unique constraint", "violates unique"
//
//	DB002 - Check constraint: A value was rejected by the table definition
//	        Patterns: "check constraint", "value too long", "invalid input"
//
//	DB003 - Not null: A required column was empty
//	        Patterns: "not null", "null value"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
//	DB007 - Busy: Database was busy with conflicting operations
//	        Patterns: "deadlock", "could not serialize", "database is locked"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. For DB codes, check the patterns to see what triggered it
//  3. If ERR000, check application logs for the original technical error
//
// Store errors during a sync never leave partial changes: the whole patch is
// rolled back, so the table is as it was before the submission.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessage maps a sentinel error to its user message.
type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages are checked with errors.Is before any pattern matching.
var sentinelMessages = []sentinelMessage{
	{
		target: ErrUnknownDomain,
		msg: UserMessage{
			Message: "No schema is registered for this domain",
			Action:  "Check the domain name with `rulesync schemas`",
			Code:    "SYNC001",
		},
	},
	{
		target: ErrStaleSnapshot,
		msg: UserMessage{
			Message: "The table changed since it was rendered",
			Action:  "Reload the table, reapply your edits and submit again",
			Code:    "SYNC002",
		},
	},
	{
		target: ErrVersionRequired,
		msg: UserMessage{
			Message: "The submission has no version token",
			Action:  "Render the table first and submit with its version",
			Code:    "SYNC003",
		},
	},
	{
		target: ErrLocked,
		msg: UserMessage{
			Message: "Another sync of this domain is in progress",
			Action:  "Wait for it to finish and try again",
			Code:    "SYNC004",
		},
	},
	{
		target: ErrRowNotFound,
		msg: UserMessage{
			Message: "A row scheduled for deletion no longer exists",
			Action:  "Reload the table and submit again",
			Code:    "SYNC005",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "The sync was cancelled",
			Action:  "Submit again; nothing was changed",
			Code:    "SYNC006",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "The sync did not finish in time",
			Action:  "Try again later; nothing was changed",
			Code:    "SYNC007",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical store error patterns (case-insensitive) to
// user messages. The first matching pattern wins, so more specific patterns
// come first.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Remove the duplicate line and submit again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Remove the duplicate line and submit again",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Remove the duplicate line and submit again",
			Code:    "DB001",
		},
	},
	{
		pattern: "check constraint",
		msg: UserMessage{
			Message: "A value was rejected by the table definition",
			Action:  "Check the allowed values for each field",
			Code:    "DB002",
		},
	},
	{
		pattern: "value too long",
		msg: UserMessage{
			Message: "A value was rejected by the table definition",
			Action:  "Shorten the offending field",
			Code:    "DB002",
		},
	},
	{
		pattern: "invalid input",
		msg: UserMessage{
			Message: "A value was rejected by the table definition",
			Action:  "Check the format of each field",
			Code:    "DB002",
		},
	},
	{
		pattern: "not null",
		msg: UserMessage{
			Message: "A required field was empty",
			Action:  "Fill in every field of each line",
			Code:    "DB003",
		},
	},
	{
		pattern: "null value",
		msg: UserMessage{
			Message: "A required field was empty",
			Action:  "Fill in every field of each line",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Sentinel errors are matched first with errors.Is, then the error text is
// searched for known store error patterns.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
