package debug

import "errors"

var (
	// ErrNotStopped is returned when frame data is requested while the
	// debuggee runs.
	ErrNotStopped = errors.New("debuggee is not stopped")

	// ErrNoThread is returned when no thread can be inspected.
	ErrNoThread = errors.New("no thread to inspect")

	// ErrExpanded is returned when casting an expanded record.
	ErrExpanded = errors.New("record already expanded")

	// ErrSessionClosed is returned after Stop.
	ErrSessionClosed = errors.New("session closed")
)
