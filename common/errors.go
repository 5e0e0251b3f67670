// Package common holds error kinds shared across the engine's internal
// packages.
package common

import "errors"

// The engine classifies every fatal condition into one of three kinds.
// Each kind is a sentinel that internal errors wrap with fmt.Errorf("...: %w"),
// so callers can classify a failure with errors.Is.
var (
	// ErrIo marks a required file I/O call (open, read, write, seek, ftell,
	// rename, unlink, flock) that failed for a recoverable but surfaced reason.
	ErrIo = errors.New("io error")

	// ErrFile marks a structural invariant on disk that was violated: an
	// index file size not a multiple of 4, a sequence mismatch in a record
	// header, a CRC mismatch, or a missing .dat for an indexed stem.
	ErrFile = errors.New("file format error")

	// ErrCreateFailed marks a failure to create a directory, or a
	// sentinel-wait that exceeded its retry budget.
	ErrCreateFailed = errors.New("create failed")

	// ErrTopicClosed names a closed-topic failure for callers that classify
	// errors. No operation in this module returns it: Engine.Close releases
	// cached file handles but does not mark topics closed.
	ErrTopicClosed = errors.New("topic closed")

	// ErrNoMessage names a read that finds nothing at the requested offset.
	// No read path returns it: Pop, GetMessage and the segment store's
	// ReadAt report an absent record as a nil message with a nil error.
	ErrNoMessage = errors.New("no message at offset")
)
