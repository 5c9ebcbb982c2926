// Package event defines the canonical behavioral event atom.
//
// An event is the only unit of truth in cadence: every state-changing fact
// about a user (a check-in, a missed day, a pardon) is recorded as exactly
// one immutable event, and all derived state is a fold over the event
// history. Events are never mutated after creation.
//
// DESIGN CONSTRAINTS:
//
// Closed type enumeration:
// Type is a closed enum. Unknown event types are a validation error, never
// a silent no-op. This makes schema drift visible at the boundary instead
// of during replay.
//
// Tagged payload union:
// Payload carries exactly one variant, selected by the event's Type. A
// payload whose variant does not match the type tag fails Validate. This
// replaces open map payloads so that unknown fields are a compile-time
// error.
//
// Narrative requirement:
// No event may be committed without a narrative identifier in Meta. A
// state-changing fact with no human-readable explanation attached is
// rejected before persistence.
//
// Canonical serialization:
// CanonicalJSON produces RFC 8785 (JCS) bytes. All content hashing in the
// ledger operates on these bytes, so two events with the same logical
// content always hash identically regardless of field order or encoder
// quirks.
package event
