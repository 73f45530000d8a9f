// Package core provides the bulk-text reconciliation engine for the admin
// lookup tables (cc-group rules, moderator/assistant pairs, privilege rules).
//
// This package contains all domain logic independent of any storage backend
// or transport. Stores, locks and the CLI plug in through the [Store] and
// [Locker] interfaces.
//
// # Architecture
//
// The package is organized around four pieces, built bottom-up:
//
//   - Schema Registry: hand-authored [Schema] descriptors registered at init
//     time via [Register] and looked up with [Describe].
//   - Parser: [Parse] turns a pasted text block into [Record] values, reporting
//     (not failing on) lines with too few fields.
//   - Fingerprints: [Fingerprint] derives a record's identity from its content
//     fields. Rows have no stable key in the text format, so this is the only
//     way rows are matched across a render/submit cycle.
//   - Reconciliation: [NewSnapshot], [Diff] and [Apply] compute and execute the
//     minimal insert/delete patch that makes a table match the submitted text.
//
// # Schema Registry
//
// Descriptors are registered from the tables package:
//
//	core.Register(core.Schema{
//	    Domain:    "assistant",
//	    Table:     "moderator_assistants",
//	    Fields:    []core.Field{{Name: "moderator"}, {Name: "assistant"}},
//	    Delimiter: ",",
//	    MinFields: 2,
//	    CaseNormalize: true,
//	})
//
// # Sync Flow
//
//  1. Caller renders the table with [Service.Render] and keeps the version token
//  2. The edited text comes back in a [SyncRequest]
//  3. [Service.Sync] locks the domain, re-reads the rows inside a transaction,
//     checks the version token, diffs and applies the patch
//  4. The run is recorded in the audit log
//
// Any failure inside the transaction rolls back the whole patch.
//
// # Error Handling
//
// Sentinel errors ([ErrUnknownDomain], [ErrStaleSnapshot], [ErrLocked], ...)
// are wrapped with context and can be checked with errors.Is. [MapError]
// turns any error into a user-facing message with a support code:
//
//   - SYNC001-SYNC005: Reconciliation errors (domain, version, lock)
//   - DB001-DB007: Store errors (constraints, connections)
package core
