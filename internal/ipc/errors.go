package ipc

import "errors"

// Sentinel errors for the framed IPC layer. Checked with errors.Is at call
// sites; a framing error is always fatal for the link that produced it.
var (
	// ErrFrameTooLarge is returned when a peer announces a body size
	// above the configured clamp (128 KiB by default).
	ErrFrameTooLarge = errors.New("ipc: frame exceeds maximum size")

	// ErrShortRead is returned when a peer link is closed mid-frame.
	ErrShortRead = errors.New("ipc: short read on peer link")

	// ErrBadSubRecord is returned when a sub-record inside a type 3 or
	// type 100 outer frame is malformed.
	ErrBadSubRecord = errors.New("ipc: malformed sub-record")

	// ErrUnknownMonitor is returned when a control message references a
	// monitor slot that has not been created.
	ErrUnknownMonitor = errors.New("ipc: unknown monitor slot")
)
