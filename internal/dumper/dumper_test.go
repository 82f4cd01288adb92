package dumper

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/symtree/internal/symbolgroup"
	"github.com/dshills/symtree/internal/symbolgroup/memory"
)

const testFrame = `
locals:
  - name: count
    type: int
    value: "3"
  - name: names
    type: vector
    value: "{...}"
    address: 0x1008
    children:
      - {name: size, type: size_t, value: "2"}
      - name: data
        type: "string*"
        value: "0x2000"
        children:
          - {name: "[0]", type: string, value: ann}
          - {name: "[1]", type: string, value: bob}
  - name: label
    type: cstring
    value: "0x3000"
    children:
      - {name: len, type: int, value: "5"}
      - {name: ptr, type: "char*", value: "0x3000"}
  - name: d
    type: dict
    value: "{...}"
    children:
      - name: entries
        type: "pair*"
        value: "0x5000"
        children:
          - name: "[0]"
            type: pair
            children:
              - {name: first, type: string, value: a}
              - {name: second, type: int, value: "1"}
          - name: "[1]"
            type: pair
            children:
              - {name: first, type: string, value: b}
              - {name: second, type: int, value: "2"}
  - name: l
    type: list
    value: "{...}"
    children:
      - name: head
        type: "node*"
        value: "0x10"
        children:
          - {name: val, type: int, value: "7"}
          - name: next
            type: "node*"
            value: "0x20"
            children:
              - {name: val, type: int, value: "8"}
              - {name: next, type: "node*", value: "0x0"}
globals:
  - name: g_names
    type: "[]string"
    children:
      - {name: "[0]", type: string, value: x}
memory:
  - address: 0x3000
    text: hello
`

var testLayouts = []Config{
	{Name: "vector", Match: "vector", Kind: "array", SizeField: "size", DataField: "data"},
	{Name: "cstring", Match: "cstring", Kind: "string", SizeField: "len", DataField: "ptr"},
	{Name: "dict", Match: "dict", Kind: "map", DataField: "entries", KeyField: "first", ValueField: "second"},
	{Name: "list", Match: "list", Kind: "list", HeadField: "head", NextField: "next", ValueField: "val"},
}

func newTestGroup(t *testing.T, d symbolgroup.Dumper) *symbolgroup.SymbolGroup {
	t.Helper()
	snap, err := memory.Parse([]byte(testFrame))
	require.NoError(t, err)
	g, err := symbolgroup.New(context.Background(), memory.New(snap), d)
	require.NoError(t, err)
	return g
}

func layoutChain(t *testing.T) *Chain {
	t.Helper()
	chain := NewChain()
	for _, cfg := range append(testLayouts, DefaultConfigs()...) {
		l, err := NewLayout(cfg)
		require.NoError(t, err)
		chain.Add(l)
	}
	return chain
}

func humanParams() symbolgroup.DumpParameters {
	return symbolgroup.DumpParameters{Flags: symbolgroup.DumpHumanReadable | symbolgroup.DumpComplexDumpers}
}

func dump(t *testing.T, g *symbolgroup.SymbolGroup, iname string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, g.Dump(context.Background(), &buf, iname, humanParams()))
	return buf.String()
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		typ     string
		want    bool
	}{
		{"vector", "vector", true},
		{"vector", "vector<int>", true},
		{"vector", "myvector", false},
		{`^\[\d+\]`, "[4]int", true},
		{`^\[\d+\]`, "[]int", false},
		{"^map\\[", "map[string]int", true},
	}
	for _, tt := range tests {
		match, err := Matcher(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.want, match(tt.typ), "%s ~ %s", tt.pattern, tt.typ)
	}

	_, err := Matcher("")
	assert.ErrorIs(t, err, ErrBadConfig)
	_, err = Matcher("^[")
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestNewLayoutValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no match", Config{Kind: "array"}},
		{"bad regexp", Config{Match: "^(", Kind: "array"}},
		{"unknown kind", Config{Match: "x", Kind: "tree"}},
		{"list without links", Config{Match: "x", Kind: "list", HeadField: "head"}},
		{"map without data", Config{Match: "x", Kind: "map"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.cfg)
			assert.ErrorIs(t, err, ErrBadConfig)
		})
	}

	l, err := NewLayout(Config{Match: "vec", Kind: "vector"})
	require.NoError(t, err)
	assert.Equal(t, "vec", l.Name())
	assert.Equal(t, DefaultLimit, l.limit)
}

func TestLayoutArray(t *testing.T) {
	ctx := context.Background()
	g := newTestGroup(t, layoutChain(t))
	require.NoError(t, g.ExpandRunComplexDumpers(ctx, "local.names"))

	names, err := g.FindSymbol("local.names")
	require.NoError(t, err)
	assert.True(t, names.TestFlags(symbolgroup.FlagComplexDumperOk))
	assert.Equal(t, symbolgroup.ContainerArray, names.DumperKind())
	assert.Equal(t, 2, names.DumperContainerSize())

	assert.Equal(t,
		`{iname="local.names",name="names",type="vector",addr="0x1008",value="<2 items>",`+
			`valueenabled="true",valueeditable="false",numchild="2",children=[`+
			`{iname="local.names.0",name="[0]",type="string",value="ann",valueenabled="true",valueeditable="true",numchild="0"},`+
			`{iname="local.names.1",name="[1]",type="string",value="bob",valueenabled="true",valueeditable="true",numchild="0"}]}`,
		dump(t, g, "local.names"))

	// The backend children stay addressable.
	size, err := g.Find("local.names.size")
	require.NoError(t, err)
	assert.True(t, size.TestFlags(symbolgroup.FlagObscured))
}

func TestLayoutString(t *testing.T) {
	g := newTestGroup(t, layoutChain(t))
	out := dump(t, g, "local.label")
	assert.Contains(t, out, `value="\"hello\""`)

	label, err := g.FindSymbol("local.label")
	require.NoError(t, err)
	assert.True(t, label.TestFlags(symbolgroup.FlagExpandedByDumper))
	assert.NotContains(t, out, "children=")
}

func TestLayoutMap(t *testing.T) {
	ctx := context.Background()
	g := newTestGroup(t, layoutChain(t))
	require.NoError(t, g.ExpandRunComplexDumpers(ctx, "local.d"))

	node, err := g.Find("local.d.1")
	require.NoError(t, err)
	entry, ok := node.(*symbolgroup.MapNode)
	require.True(t, ok)
	assert.Equal(t, "pair", entry.Type())
	assert.Equal(t, "first", entry.Key().Target().Name())
	assert.Equal(t, "2", mustRaw(t, entry.Value().Target()))

	out := dump(t, g, "local.d")
	assert.Contains(t, out, `value="<2 items>"`)
	assert.Contains(t, out, `{iname="local.d.0.key",name="key",type="string",value="a"`)
	assert.Contains(t, out, `{iname="local.d.1.value",name="value",type="int",value="2"`)
}

func TestLayoutList(t *testing.T) {
	ctx := context.Background()
	g := newTestGroup(t, layoutChain(t))
	require.NoError(t, g.ExpandRunComplexDumpers(ctx, "local.l"))

	l, err := g.FindSymbol("local.l")
	require.NoError(t, err)
	assert.Equal(t, 2, l.DumperContainerSize())

	var values []string
	for _, c := range l.Children() {
		if c.TestFlags(symbolgroup.FlagObscured) {
			continue
		}
		ref, ok := c.(*symbolgroup.ReferenceNode)
		require.True(t, ok)
		values = append(values, mustRaw(t, ref.Target()))
	}
	assert.Equal(t, []string{"7", "8"}, values)
}

func TestDefaultSliceLayout(t *testing.T) {
	ctx := context.Background()
	g := newTestGroup(t, layoutChain(t))
	w, err := g.AddWatch(ctx, "g_names")
	require.NoError(t, err)
	require.NoError(t, w.Target().ExpandRunComplexDumpers(ctx, g.ValueContext()))
	assert.Equal(t, symbolgroup.ContainerArray, w.Target().DumperKind())
	assert.Equal(t, "<1 items>", w.Target().DumperValue())
}

func TestChainPrecedence(t *testing.T) {
	first, err := NewLayout(Config{Name: "first", Match: "vector", Kind: "array"})
	require.NoError(t, err)
	second, err := NewLayout(Config{Name: "second", Match: "vec", Kind: "array"})
	require.NoError(t, err)

	chain := NewChain(first)
	chain.Add(second)
	assert.Equal(t, "first", chain.Lookup("vector").Name())
	assert.Equal(t, "second", chain.Lookup("vec").Name())
	assert.Nil(t, chain.Lookup("map"))
	assert.Len(t, chain.Dumpers(), 2)
	assert.NoError(t, chain.Close())
}

func TestChainWrapsDumperErrors(t *testing.T) {
	bad, err := NewLayout(Config{Name: "bad", Match: "vector", Kind: "array", SizeField: "missing"})
	require.NoError(t, err)
	g := newTestGroup(t, NewChain(bad))

	names, err := g.FindSymbol("local.names")
	require.NoError(t, err)
	err = names.RunSimpleDumpers(context.Background(), g.ValueContext())
	require.ErrorIs(t, err, symbolgroup.ErrDumperFailed)
	assert.Contains(t, err.Error(), "bad:")
	assert.True(t, names.TestFlags(symbolgroup.FlagSimpleDumperFailed))
}

func mustRaw(t *testing.T, n *symbolgroup.SymbolNode) string {
	t.Helper()
	v, err := n.RawValue(context.Background())
	require.NoError(t, err)
	return v
}
