// Package remerr defines the sentinel errors surfaced across rem's
// component boundaries. Callers check kind with errors.Is; wrapped errors
// (fmt.Errorf("...: %w", err)) keep the underlying cause available via
// errors.Unwrap without losing the sentinel for control flow.
package remerr

import "errors"

var (
	// ErrSchemaNotFound is raised when an insert/query references an
	// unregistered entity type.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrSchemaInvalid is raised when schema registration is rejected by
	// the JSON-Schema validator.
	ErrSchemaInvalid = errors.New("schema invalid")
	// ErrSchemaExists is raised by register when the name is already
	// registered at the same or higher version.
	ErrSchemaExists = errors.New("schema already exists")
	// ErrValidationFailed is raised when an entity payload does not match
	// its schema.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNotFound is raised by get/update/delete of an absent or
	// tombstoned entity.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID is raised when insert is given an id already in use.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrQuerySyntax is raised on SQL parse failure.
	ErrQuerySyntax = errors.New("query syntax error")
	// ErrQueryUnsupported is raised when a similarity query needs a text
	// embedder and none is configured. The parser does not single out
	// aggregates, JOIN or subqueries; those fail with ErrQuerySyntax.
	ErrQueryUnsupported = errors.New("query unsupported")
	// ErrIO wraps a KV store I/O failure.
	ErrIO = errors.New("io error")
	// ErrCorrupt wraps a KV store corruption detected on recovery.
	ErrCorrupt = errors.New("corrupt store")
	// ErrDiskFull wraps a KV store failure due to exhausted disk space.
	ErrDiskFull = errors.New("disk full")
	// ErrChecksumFailed is raised when a replication entry's checksum
	// does not match its payload.
	ErrChecksumFailed = errors.New("checksum failed")
	// ErrSequenceGap is raised when a replication entry's sequence does
	// not immediately follow the last applied sequence.
	ErrSequenceGap = errors.New("sequence gap")
	// ErrDeadlineExceeded is raised when a caller-supplied deadline
	// expires before an operation completes.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)
