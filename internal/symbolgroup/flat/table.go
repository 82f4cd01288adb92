// Package flat implements the flat, parent-indexed record list that
// debugger symbol groups expose: children directly follow their parent and
// expanding a record inserts its children right after it.
package flat

import (
	"errors"
	"fmt"
)

// NoParent is the parent index of top-level entries.
const NoParent = -1

var (
	// ErrOutOfRange is returned for indices outside the table.
	ErrOutOfRange = errors.New("index out of range")
	// ErrAlreadyExpanded is returned when inserting children twice.
	ErrAlreadyExpanded = errors.New("entry already expanded")
)

// Entry is one row of the table.
type Entry[T any] struct {
	Parent   int
	Item     T
	Expanded bool
}

// Table is a flat list of entries with parent indices.
type Table[T any] struct {
	entries []Entry[T]
}

// Len returns the number of entries.
func (t *Table[T]) Len() int { return len(t.entries) }

// At returns the entry at index.
func (t *Table[T]) At(index int) (Entry[T], error) {
	if index < 0 || index >= len(t.entries) {
		return Entry[T]{}, fmt.Errorf("entry %d of %d: %w", index, len(t.entries), ErrOutOfRange)
	}
	return t.entries[index], nil
}

// Set replaces the item at index.
func (t *Table[T]) Set(index int, item T) error {
	if index < 0 || index >= len(t.entries) {
		return fmt.Errorf("entry %d of %d: %w", index, len(t.entries), ErrOutOfRange)
	}
	t.entries[index].Item = item
	return nil
}

// Append adds an entry at the end and returns its index.
func (t *Table[T]) Append(parent int, item T) int {
	t.entries = append(t.entries, Entry[T]{Parent: parent, Item: item})
	return len(t.entries) - 1
}

// Expand inserts children right after index and renumbers the parent
// indices of every later entry. It returns the number of inserted entries.
func (t *Table[T]) Expand(index int, children []T) (int, error) {
	if index < 0 || index >= len(t.entries) {
		return 0, fmt.Errorf("expand %d of %d: %w", index, len(t.entries), ErrOutOfRange)
	}
	if t.entries[index].Expanded {
		return 0, fmt.Errorf("expand %d: %w", index, ErrAlreadyExpanded)
	}
	t.entries[index].Expanded = true
	k := len(children)
	if k == 0 {
		return 0, nil
	}

	for i := range t.entries {
		if t.entries[i].Parent > index {
			t.entries[i].Parent += k
		}
	}
	inserted := make([]Entry[T], k)
	for i, c := range children {
		inserted[i] = Entry[T]{Parent: index, Item: c}
	}
	tail := append(inserted, t.entries[index+1:]...)
	t.entries = append(t.entries[:index+1], tail...)
	return k, nil
}

// Children returns the indices of the direct children of index.
func (t *Table[T]) Children(index int) []int {
	var out []int
	for i := index + 1; i < len(t.entries); i++ {
		if t.entries[i].Parent == index {
			out = append(out, i)
		}
	}
	return out
}
