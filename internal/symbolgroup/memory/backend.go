// Package memory is a symbol group backend over a snapshot of debuggee
// values, typically loaded from YAML.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/symtree/internal/symbolgroup"
	"github.com/dshills/symtree/internal/symbolgroup/flat"
)

type region struct {
	address uint64
	data    []byte
}

// Backend implements symbolgroup.Backend over a Snapshot.
type Backend struct {
	table   flat.Table[*Variable]
	symbols map[string]*Variable
	memory  []region
}

var _ symbolgroup.Backend = (*Backend)(nil)

// New creates a backend listing the snapshot's locals.
func New(s *Snapshot) *Backend {
	b := &Backend{symbols: make(map[string]*Variable)}
	for _, v := range s.Globals {
		b.symbols[v.Name] = v
	}
	for _, v := range s.Locals {
		b.symbols[v.Name] = v
		b.table.Append(flat.NoParent, v)
	}
	for _, r := range s.Memory {
		data, _ := r.Bytes()
		b.memory = append(b.memory, region{address: uint64(r.Address), data: data})
	}
	return b
}

// Count returns the number of records.
func (b *Backend) Count() int { return b.table.Len() }

// Record returns the record at index.
func (b *Backend) Record(_ context.Context, index int) (symbolgroup.Record, error) {
	e, err := b.table.At(index)
	if err != nil {
		return symbolgroup.Record{}, err
	}
	v := e.Item
	rec := symbolgroup.Record{
		ParentIndex: e.Parent,
		Name:        v.Name,
		Type:        v.Type,
		SubElements: len(v.Children),
		Size:        v.Size,
		Address:     uint64(v.Address),
	}
	if v.Pointer || strings.HasPrefix(v.Type, "*") || strings.HasSuffix(v.Type, "*") {
		rec.Flags |= symbolgroup.RecordPointer
	}
	if strings.HasPrefix(v.Type, "[") || strings.HasSuffix(v.Type, "]") {
		rec.Flags |= symbolgroup.RecordArray
	}
	if v.ReadOnly {
		rec.Flags |= symbolgroup.RecordReadOnly
	}
	return rec, nil
}

// ExpandRecord inserts the children of the record at index.
func (b *Backend) ExpandRecord(_ context.Context, index int) (int, error) {
	e, err := b.table.At(index)
	if err != nil {
		return 0, err
	}
	return b.table.Expand(index, e.Item.Children)
}

// ReadValue returns the value text.
func (b *Backend) ReadValue(_ context.Context, index int) (string, error) {
	e, err := b.table.At(index)
	if err != nil {
		return "", err
	}
	if e.Item.Inaccessible {
		return "", fmt.Errorf("%s: %w", e.Item.Name, symbolgroup.ErrInaccessible)
	}
	return e.Item.Value, nil
}

// AddSymbol appends a top-level record for expressions such as
// "g_table.rows[2].name".
func (b *Backend) AddSymbol(_ context.Context, expression string) (int, error) {
	v, err := b.resolve(expression)
	if err != nil {
		return 0, err
	}
	return b.table.Append(flat.NoParent, v), nil
}

func (b *Backend) resolve(expression string) (*Variable, error) {
	segments, err := splitExpression(expression)
	if err != nil {
		return nil, err
	}
	v, ok := b.symbols[segments[0]]
	if !ok {
		return nil, fmt.Errorf("%q: %w", expression, ErrUnknownExpression)
	}
	for _, s := range segments[1:] {
		if v = child(v, s); v == nil {
			return nil, fmt.Errorf("%q: no member %s: %w", expression, s, ErrUnknownExpression)
		}
	}
	return v, nil
}

func child(v *Variable, name string) *Variable {
	for _, c := range v.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// splitExpression splits "a.b[2]" into "a", "b", "[2]".
func splitExpression(expression string) ([]string, error) {
	var out []string
	rest := strings.TrimSpace(expression)
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			continue
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("%q: unbalanced brackets: %w", expression, ErrUnknownExpression)
			}
			if _, err := strconv.Atoi(rest[1:end]); err != nil {
				return nil, fmt.Errorf("%q: bad index: %w", expression, ErrUnknownExpression)
			}
			out = append(out, rest[:end+1])
			rest = rest[end+1:]
			continue
		}
		end := strings.IndexAny(rest, ".[")
		if end < 0 {
			end = len(rest)
		}
		out = append(out, rest[:end])
		rest = rest[end:]
	}
	if len(out) == 0 || strings.HasPrefix(out[0], "[") {
		return nil, fmt.Errorf("%q: %w", expression, ErrUnknownExpression)
	}
	return out, nil
}

// TypeCast changes the type of the unexpanded record at index.
func (b *Backend) TypeCast(_ context.Context, index int, typeName string) error {
	e, err := b.table.At(index)
	if err != nil {
		return err
	}
	if e.Expanded {
		return fmt.Errorf("cast %s: %w", e.Item.Name, ErrExpanded)
	}
	cast := *e.Item
	cast.Type = typeName
	return b.table.Set(index, &cast)
}

// ReadMemory reads from the snapshot's memory regions.
func (b *Backend) ReadMemory(_ context.Context, address uint64, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("read %d bytes at 0x%x: %w", size, address, symbolgroup.ErrInaccessible)
	}
	for _, r := range b.memory {
		if address >= r.address && uint64(size) <= uint64(len(r.data)) && address-r.address <= uint64(len(r.data)-size) {
			off := address - r.address
			return r.data[off : off+uint64(size)], nil
		}
	}
	return nil, fmt.Errorf("read %d bytes at 0x%x: %w", size, address, symbolgroup.ErrInaccessible)
}
