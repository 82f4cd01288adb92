package debug

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dshills/symtree/internal/integration/debug/dap"
	"github.com/dshills/symtree/internal/symbolgroup"
	"github.com/dshills/symtree/internal/symbolgroup/flat"
)

// Client is the part of the DAP client a Backend uses.
type Client interface {
	Scopes(ctx context.Context, frameID int) ([]dap.Scope, error)
	Variables(ctx context.Context, args dap.VariablesArguments) ([]dap.Variable, error)
	Evaluate(ctx context.Context, args dap.EvaluateArguments) (dap.EvaluateResponseBody, error)
	ReadMemory(ctx context.Context, memoryReference string, offset, count int) ([]byte, error)
}

// variable is a table row: a DAP variable and, once fetched, its children.
type variable struct {
	dap.Variable
	children []dap.Variable
	fetched  bool
}

// expression returns the expression that re-evaluates v.
func (v *variable) expression() string {
	if v.EvaluateName != "" {
		return v.EvaluateName
	}
	return v.Name
}

// Backend implements symbolgroup.Backend over the variables of one stack
// frame. Children are fetched with "variables" on expansion.
type Backend struct {
	client  Client
	frameID int
	table   flat.Table[*variable]
}

var _ symbolgroup.Backend = (*Backend)(nil)

// NewBackend lists the variables of the frame's inexpensive scopes,
// register scopes excluded.
func NewBackend(ctx context.Context, client Client, frameID int) (*Backend, error) {
	scopes, err := client.Scopes(ctx, frameID)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frameID, err)
	}
	b := &Backend{client: client, frameID: frameID}
	for _, scope := range scopes {
		if scope.Expensive || scope.PresentationHint == "registers" || scope.VariablesReference == 0 {
			continue
		}
		vars, err := client.Variables(ctx, dap.VariablesArguments{VariablesReference: scope.VariablesReference})
		if err != nil {
			return nil, fmt.Errorf("frame %d scope %s: %w", frameID, scope.Name, err)
		}
		for _, v := range vars {
			b.table.Append(flat.NoParent, &variable{Variable: v})
		}
	}
	return b, nil
}

// FrameID returns the frame the backend inspects.
func (b *Backend) FrameID() int { return b.frameID }

// Count returns the number of records.
func (b *Backend) Count() int { return b.table.Len() }

// fetch loads the children of v once.
func (b *Backend) fetch(ctx context.Context, v *variable) error {
	if v.fetched || v.VariablesReference == 0 {
		return nil
	}
	children, err := b.client.Variables(ctx, dap.VariablesArguments{VariablesReference: v.VariablesReference})
	if err != nil {
		return fmt.Errorf("variables of %s: %w", v.Name, err)
	}
	v.children, v.fetched = children, true
	return nil
}

// subElements uses the adapter's child count hints and fetches the
// children when there are none.
func (b *Backend) subElements(ctx context.Context, v *variable) (int, error) {
	switch {
	case v.VariablesReference == 0:
		return 0, nil
	case v.fetched:
		return len(v.children), nil
	case v.NamedVariables+v.IndexedVariables > 0:
		return v.NamedVariables + v.IndexedVariables, nil
	}
	if err := b.fetch(ctx, v); err != nil {
		return 0, err
	}
	return len(v.children), nil
}

// Record returns the record at index.
func (b *Backend) Record(ctx context.Context, index int) (symbolgroup.Record, error) {
	e, err := b.table.At(index)
	if err != nil {
		return symbolgroup.Record{}, err
	}
	v := e.Item
	n, err := b.subElements(ctx, v)
	if err != nil {
		return symbolgroup.Record{}, err
	}

	rec := symbolgroup.Record{
		ParentIndex: e.Parent,
		Name:        v.Name,
		Type:        v.Type,
		SubElements: n,
		Address:     parseAddress(v.MemoryReference),
	}
	if strings.HasPrefix(v.Type, "*") || strings.HasSuffix(v.Type, "*") {
		rec.Flags |= symbolgroup.RecordPointer
	}
	if strings.HasPrefix(v.Type, "[") || v.IndexedVariables > 0 {
		rec.Flags |= symbolgroup.RecordArray
	}
	if v.PresentationHint != nil && slices.Contains(v.PresentationHint.Attributes, "readOnly") {
		rec.Flags |= symbolgroup.RecordReadOnly
	}
	return rec, nil
}

// ExpandRecord inserts the children of the record at index.
func (b *Backend) ExpandRecord(ctx context.Context, index int) (int, error) {
	e, err := b.table.At(index)
	if err != nil {
		return 0, err
	}
	if err := b.fetch(ctx, e.Item); err != nil {
		return 0, err
	}
	children := make([]*variable, len(e.Item.children))
	for i, c := range e.Item.children {
		children[i] = &variable{Variable: c}
	}
	return b.table.Expand(index, children)
}

// ReadValue returns the value text. Adapters report unreadable values
// in-band ("<error: ...>", "unreadable ...").
func (b *Backend) ReadValue(_ context.Context, index int) (string, error) {
	e, err := b.table.At(index)
	if err != nil {
		return "", err
	}
	value := e.Item.Value
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "<error") || strings.HasPrefix(lower, "unreadable") ||
		strings.HasPrefix(lower, "<unreadable") || strings.Contains(lower, "optimized out") {
		return "", fmt.Errorf("%s: %s: %w", e.Item.Name, value, symbolgroup.ErrInaccessible)
	}
	return value, nil
}

func (b *Backend) evaluate(ctx context.Context, expression string) (dap.Variable, error) {
	res, err := b.client.Evaluate(ctx, dap.EvaluateArguments{
		Expression: expression,
		FrameID:    b.frameID,
		Context:    "watch",
	})
	if err != nil {
		return dap.Variable{}, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return dap.Variable{
		Name:               expression,
		Value:              res.Result,
		Type:               res.Type,
		EvaluateName:       expression,
		VariablesReference: res.VariablesReference,
		NamedVariables:     res.NamedVariables,
		IndexedVariables:   res.IndexedVariables,
		MemoryReference:    res.MemoryReference,
	}, nil
}

// AddSymbol evaluates expression in the frame and appends the result.
func (b *Backend) AddSymbol(ctx context.Context, expression string) (int, error) {
	v, err := b.evaluate(ctx, expression)
	if err != nil {
		return 0, err
	}
	return b.table.Append(flat.NoParent, &variable{Variable: v}), nil
}

// TypeCast re-evaluates the unexpanded record at index as typeName.
func (b *Backend) TypeCast(ctx context.Context, index int, typeName string) error {
	e, err := b.table.At(index)
	if err != nil {
		return err
	}
	if e.Expanded {
		return fmt.Errorf("cast %s: %w", e.Item.Name, ErrExpanded)
	}
	v, err := b.evaluate(ctx, "("+typeName+")("+e.Item.expression()+")")
	if err != nil {
		return err
	}
	v.Name = e.Item.Name
	return b.table.Set(index, &variable{Variable: v})
}

// ReadMemory issues readMemory. Partially readable ranges fail.
func (b *Backend) ReadMemory(ctx context.Context, address uint64, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("read %d bytes at 0x%x: %w", size, address, symbolgroup.ErrInaccessible)
	}
	data, err := b.client.ReadMemory(ctx, "0x"+strconv.FormatUint(address, 16), 0, size)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at 0x%x: %w: %v", size, address, symbolgroup.ErrInaccessible, err)
	}
	if len(data) < size {
		return nil, fmt.Errorf("read %d bytes at 0x%x: got %d: %w", size, address, len(data), symbolgroup.ErrInaccessible)
	}
	return data[:size], nil
}

// parseAddress reads a memory reference such as "0xc000012345".
func parseAddress(ref string) uint64 {
	if ref == "" {
		return 0
	}
	n, err := strconv.ParseUint(ref, 0, 64)
	if err != nil {
		return 0
	}
	return n
}
