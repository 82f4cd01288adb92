package symbolgroup

import "errors"

// Errors returned by symbol group operations. None of them is fatal to the
// tree: the worst outcome is a single degraded node.
var (
	// ErrNotExpandable is returned when a node has no backend sub-elements and
	// no container dumper applies.
	ErrNotExpandable = errors.New("node is not expandable")

	// ErrDumperFailed is returned when a simple or complex dumper errors or
	// returns malformed data. The node falls back to its raw value.
	ErrDumperFailed = errors.New("dumper failed")

	// ErrInaccessible is returned by backends when a value cannot be read,
	// for example an optimized-out or out-of-scope variable.
	ErrInaccessible = errors.New("memory not accessible")

	// ErrTypeCastRejected is returned when a cast is requested on an
	// already expanded node.
	ErrTypeCastRejected = errors.New("type cast rejected on expanded node")

	// ErrNodeNotFound is returned when an iname path does not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotASymbol is returned when an operation requires a real entry but
	// the path resolves to a synthetic map entry.
	ErrNotASymbol = errors.New("node is not a symbol")

	// ErrRootOperation is returned for backend operations on a root node.
	ErrRootOperation = errors.New("operation not supported on root node")
)
