package symbolgroup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/symtree/internal/symbolgroup/flat"
)

// fakeVar is a debuggee variable of the fake backend.
type fakeVar struct {
	name         string
	typ          string
	value        string
	addr         uint64
	readOnly     bool
	inaccessible bool
	children     []*fakeVar
}

func leaf(name, typ, value string) *fakeVar {
	return &fakeVar{name: name, typ: typ, value: value}
}

func ints(values ...string) []*fakeVar {
	out := make([]*fakeVar, len(values))
	for i, v := range values {
		out[i] = leaf(fmt.Sprintf("[%d]", i), "int", v)
	}
	return out
}

// vecVar lays out a vector as size, capacity and a data array.
func vecVar(name string, elems ...*fakeVar) *fakeVar {
	return &fakeVar{
		name:  name,
		typ:   "vec",
		value: "{...}",
		children: []*fakeVar{
			leaf("size", "size_t", strconv.Itoa(len(elems))),
			leaf("capacity", "size_t", "4"),
			{name: "data", typ: fmt.Sprintf("int[%d]", len(elems)), value: "0x3000", children: elems},
		},
	}
}

// fakeBackend is a flat symbol group over a fixed variable tree.
type fakeBackend struct {
	table       flat.Table[*fakeVar]
	symbols     map[string]*fakeVar
	memory      map[uint64][]byte
	expandCalls []int
}

func newFakeBackend(vars ...*fakeVar) *fakeBackend {
	b := &fakeBackend{symbols: map[string]*fakeVar{}, memory: map[uint64][]byte{}}
	for _, v := range vars {
		b.table.Append(flat.NoParent, v)
	}
	return b
}

func (b *fakeBackend) Count() int { return b.table.Len() }

func (b *fakeBackend) Record(_ context.Context, index int) (Record, error) {
	e, err := b.table.At(index)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		ParentIndex: e.Parent,
		Name:        e.Item.name,
		Type:        e.Item.typ,
		SubElements: len(e.Item.children),
		Address:     e.Item.addr,
	}
	if e.Item.readOnly {
		rec.Flags |= RecordReadOnly
	}
	return rec, nil
}

func (b *fakeBackend) ExpandRecord(_ context.Context, index int) (int, error) {
	e, err := b.table.At(index)
	if err != nil {
		return 0, err
	}
	b.expandCalls = append(b.expandCalls, index)
	return b.table.Expand(index, e.Item.children)
}

func (b *fakeBackend) ReadValue(_ context.Context, index int) (string, error) {
	e, err := b.table.At(index)
	if err != nil {
		return "", err
	}
	if e.Item.inaccessible {
		return "", ErrInaccessible
	}
	return e.Item.value, nil
}

func (b *fakeBackend) AddSymbol(_ context.Context, expression string) (int, error) {
	v, ok := b.symbols[expression]
	if !ok {
		return 0, fmt.Errorf("cannot evaluate %q", expression)
	}
	return b.table.Append(flat.NoParent, v), nil
}

func (b *fakeBackend) TypeCast(_ context.Context, index int, typeName string) error {
	e, err := b.table.At(index)
	if err != nil {
		return err
	}
	cast := *e.Item
	cast.typ = typeName
	return b.table.Set(index, &cast)
}

func (b *fakeBackend) ReadMemory(_ context.Context, address uint64, size int) ([]byte, error) {
	data, ok := b.memory[address]
	if !ok || len(data) < size {
		return nil, ErrInaccessible
	}
	return data[:size], nil
}

// testDumper formats the fake container types:
//   - vec: array over the "data" child, sized by "size";
//   - dict: map over the pairs of "entries", sized by "size";
//   - exprvec: list of the expressions g_a, missing and g_b;
//   - str: the raw value, peeking at "len";
//   - broken: always fails.
type testDumper struct{}

func (testDumper) SimpleFormat(ctx context.Context, v Value, _ ValueContext) (SimpleResult, bool, error) {
	switch v.Type() {
	case "vec", "dict":
		size, err := v.Field(ctx, "size")
		if err != nil {
			return SimpleResult{}, false, err
		}
		n, err := size.Int(ctx)
		if err != nil {
			return SimpleResult{}, false, err
		}
		kind := ContainerArray
		if v.Type() == "dict" {
			kind = ContainerMap
		}
		return SimpleResult{Value: fmt.Sprintf("<%d items>", n), Kind: kind, ContainerSize: int(n)}, true, nil
	case "exprvec":
		return SimpleResult{Value: "<exprs>", Kind: ContainerList, ContainerSize: -1}, true, nil
	case "str":
		if _, err := v.Field(ctx, "len"); err != nil {
			return SimpleResult{}, false, err
		}
		raw, err := v.Raw(ctx)
		return SimpleResult{Value: raw, ContainerSize: -1}, err == nil, err
	case "broken":
		return SimpleResult{}, false, errors.New("boom")
	}
	return SimpleResult{}, false, nil
}

func (testDumper) ComplexFormat(ctx context.Context, v Value, _ ValueContext) ([]ChildSpec, error) {
	switch v.Type() {
	case "vec":
		data, err := v.Field(ctx, "data")
		if err != nil {
			return nil, err
		}
		elems, err := data.Children(ctx)
		if err != nil {
			return nil, err
		}
		specs := make([]ChildSpec, len(elems))
		for i, e := range elems {
			specs[i] = ElementSpec(e)
		}
		return specs, nil
	case "dict":
		entries, err := v.Field(ctx, "entries")
		if err != nil {
			return nil, err
		}
		pairs, err := entries.Children(ctx)
		if err != nil {
			return nil, err
		}
		var specs []ChildSpec
		for _, p := range pairs {
			key, err := p.Field(ctx, "first")
			if err != nil {
				return nil, err
			}
			value, err := p.Field(ctx, "second")
			if err != nil {
				return nil, err
			}
			specs = append(specs, MapEntrySpec(key, value, p.Address(), p.Type()))
		}
		return specs, nil
	case "exprvec":
		return []ChildSpec{ExpressionSpec("g_a"), ExpressionSpec("missing"), ExpressionSpec("g_b")}, nil
	}
	return nil, nil
}

// newTestGroup builds a group over i (int), v (vec of 10, 20, 30) and
// s (str).
func newTestGroup(t *testing.T) (*SymbolGroup, *fakeBackend) {
	t.Helper()
	b := newFakeBackend(
		&fakeVar{name: "i", typ: "int", value: "42", addr: 0x1000},
		vecVar("v", ints("10", "20", "30")...),
		&fakeVar{name: "s", typ: "str", value: `"abc"`, children: []*fakeVar{
			leaf("len", "int", "3"),
			leaf("ptr", "char*", "0x2000"),
		}},
	)
	b.symbols["g_a"] = leaf("g_a", "int", "1")
	b.symbols["g_b"] = leaf("g_b", "int", "2")
	g, err := New(context.Background(), b, testDumper{})
	require.NoError(t, err)
	return g, b
}

// requireIndicesInSync checks that every real node's index addresses the
// backend record it was created for.
func requireIndicesInSync(t *testing.T, g *SymbolGroup, b *fakeBackend) {
	t.Helper()
	check := VisitorFunc(func(_ context.Context, n Node, fullIName string, _, _ int) VisitResult {
		sn, ok := n.(*SymbolNode)
		if !ok {
			return VisitContinue
		}
		e, err := b.table.At(sn.Index())
		require.NoError(t, err, fullIName)
		require.Equal(t, sn.Name(), e.Item.name, fullIName)
		wantParent := flat.NoParent
		if p, ok := sn.Parent().(*SymbolNode); ok && !p.IsRoot() {
			wantParent = p.Index()
		}
		require.Equal(t, wantParent, e.Parent, fullIName)
		return VisitContinue
	})
	Accept(context.Background(), g.Root(), check, "", 0, 0)
}
