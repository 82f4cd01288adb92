package symbolgroup

import (
	"context"
	"fmt"
)

// NoParent is the ParentIndex of a top-level record.
const NoParent = -1

// RecordFlags describe the shape of a backend record.
type RecordFlags uint

const (
	// RecordPointer marks a pointer record.
	RecordPointer RecordFlags = 1 << iota
	// RecordArray marks an array record.
	RecordArray
	// RecordReadOnly marks a record whose value cannot be edited.
	RecordReadOnly
)

// Record is one entry of the backend's flat symbol enumeration.
type Record struct {
	// ParentIndex is the flat index of the parent record or NoParent.
	ParentIndex int
	// Name is the display name reported by the backend.
	Name string
	// Type is the declared type name.
	Type string
	// SubElements is the number of child records expanding would insert.
	SubElements int
	// Size is the value size in bytes, 0 if unknown.
	Size uint64
	// Address is the value address, 0 if unknown.
	Address uint64
	// Flags describe the record shape.
	Flags RecordFlags
}

// IsPointer reports whether the record denotes a pointer.
func (r Record) IsPointer() bool { return r.Flags&RecordPointer != 0 }

// IsArray reports whether the record denotes an array.
func (r Record) IsArray() bool { return r.Flags&RecordArray != 0 }

// Backend is the flat, index-addressed symbol enumeration of a debugger
// engine. Indices are unstable: ExpandRecord inserts records right after the
// expanded index and shifts every later record. The symbol group performs all
// renumbering of its own nodes.
type Backend interface {
	// Count returns the number of records.
	Count() int

	// Record returns the record at index.
	Record(ctx context.Context, index int) (Record, error)

	// ExpandRecord materializes the children of the record at index as a
	// contiguous run of records inserted after it and returns their count.
	ExpandRecord(ctx context.Context, index int) (int, error)

	// ReadValue returns the backend's textual value of the record.
	// It returns ErrInaccessible when the value cannot be read.
	ReadValue(ctx context.Context, index int) (string, error)

	// AddSymbol appends a top-level record for expression and returns its index.
	AddSymbol(ctx context.Context, expression string) (int, error)

	// TypeCast re-types the unexpanded record at index.
	TypeCast(ctx context.Context, index int, typeName string) error

	// ReadMemory reads size bytes at address.
	ReadMemory(ctx context.Context, address uint64, size int) ([]byte, error)
}

// MemoryReader gives read access to debuggee memory.
type MemoryReader interface {
	ReadMemory(ctx context.Context, address uint64, size int) ([]byte, error)
}

// ValueContext is the read-only view of the live debuggee handed to
// dumpers and renderers.
type ValueContext struct {
	Memory MemoryReader
}

// ReadMemory reads debuggee memory through the context.
func (vc ValueContext) ReadMemory(ctx context.Context, address uint64, size int) ([]byte, error) {
	if vc.Memory == nil {
		return nil, fmt.Errorf("read 0x%x: %w", address, ErrInaccessible)
	}
	return vc.Memory.ReadMemory(ctx, address, size)
}
