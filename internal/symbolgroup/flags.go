package symbolgroup

import "strings"

// Flags is the status bitmask carried by every node.
type Flags uint

const (
	// FlagUninitialized marks a variable reported as not yet initialized.
	FlagUninitialized Flags = 0x1
	// FlagSimpleDumperNotApplicable marks a node no dumper handles.
	FlagSimpleDumperNotApplicable Flags = 0x2
	// FlagSimpleDumperOk marks a node whose simple dumper produced a value.
	FlagSimpleDumperOk Flags = 0x4
	// FlagSimpleDumperFailed marks a node whose simple dumper failed.
	FlagSimpleDumperFailed Flags = 0x8
	// FlagSimpleDumperMask covers the mutually exclusive simple dumper outcomes.
	FlagSimpleDumperMask = FlagSimpleDumperNotApplicable | FlagSimpleDumperOk | FlagSimpleDumperFailed
	// FlagExpandedByDumper marks a node expanded only so a dumper could
	// inspect its children. Its children are not rendered.
	FlagExpandedByDumper Flags = 0x10
	// FlagAdditionalSymbol marks a symbol added by expression. It is hidden
	// below the locals root and exposed through references.
	FlagAdditionalSymbol Flags = 0x20
	// FlagObscured marks a node replaced by complex dumper children.
	FlagObscured Flags = 0x40
	// FlagComplexDumperOk marks a container whose complex dumper succeeded.
	FlagComplexDumperOk Flags = 0x80
	// FlagWatchNode marks the reference exposing a watch expression.
	FlagWatchNode Flags = 0x100
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagUninitialized, "uninitialized"},
	{FlagSimpleDumperNotApplicable, "dumper-na"},
	{FlagSimpleDumperOk, "dumper-ok"},
	{FlagSimpleDumperFailed, "dumper-failed"},
	{FlagExpandedByDumper, "expanded-by-dumper"},
	{FlagAdditionalSymbol, "additional"},
	{FlagObscured, "obscured"},
	{FlagComplexDumperOk, "complex-ok"},
	{FlagWatchNode, "watch"},
}

// String returns the set flag names joined by '|'.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
