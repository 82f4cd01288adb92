package symbolgroup

import (
	"context"
	"fmt"
	"strings"
)

// ContainerKind is the classification a simple dumper assigns to a type.
type ContainerKind int

const (
	// ContainerNone is a plain value.
	ContainerNone ContainerKind = iota
	// ContainerArray is an indexed sequence.
	ContainerArray
	// ContainerList is a linked sequence.
	ContainerList
	// ContainerMap is an associative container of key/value pairs.
	ContainerMap
	// ContainerSet is an associative container of keys.
	ContainerSet
)

// String returns the kind name.
func (k ContainerKind) String() string {
	switch k {
	case ContainerNone:
		return "plain"
	case ContainerArray:
		return "array"
	case ContainerList:
		return "list"
	case ContainerMap:
		return "map"
	case ContainerSet:
		return "set"
	default:
		return "unknown"
	}
}

// ParseContainerKind parses a kind name; unknown names are ContainerNone.
func ParseContainerKind(s string) ContainerKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "array", "vector", "slice":
		return ContainerArray
	case "list":
		return ContainerList
	case "map", "hash":
		return ContainerMap
	case "set":
		return ContainerSet
	default:
		return ContainerNone
	}
}

// IsContainer reports whether complex dumping applies to the kind.
func (k ContainerKind) IsContainer() bool { return k != ContainerNone }

// SimpleResult is the outcome of simple dumping.
type SimpleResult struct {
	// Value is the one-line display value.
	Value string
	// Kind classifies the type.
	Kind ContainerKind
	// ContainerSize is the element count hint for containers, -1 if unknown.
	ContainerSize int
}

// Dumper is the injected per-type formatting capability. Returning false
// from SimpleFormat means no dumper handles the type; it is not an error.
type Dumper interface {
	SimpleFormat(ctx context.Context, v Value, vc ValueContext) (SimpleResult, bool, error)
	ComplexFormat(ctx context.Context, v Value, vc ValueContext) ([]ChildSpec, error)
}

// Element designates a container element: an existing real node or an
// expression the backend adds as a hidden symbol.
type Element struct {
	Node       *SymbolNode
	Expression string
}

// ChildSpec describes one synthetic child produced by complex dumping.
// Key and Value are set for map entries; Element otherwise.
type ChildSpec struct {
	Element Element
	Key     *Element
	Value   *Element
	Address uint64
	Type    string
}

// IsMapEntry reports whether the spec describes a key/value pair.
func (c ChildSpec) IsMapEntry() bool { return c.Key != nil && c.Value != nil }

// ElementSpec returns the spec of a plain element referencing v.
func ElementSpec(v Value) ChildSpec {
	return ChildSpec{Element: Element{Node: v.node}}
}

// ExpressionSpec returns the spec of a plain element added by expression.
func ExpressionSpec(expression string) ChildSpec {
	return ChildSpec{Element: Element{Expression: expression}}
}

// MapEntrySpec returns the spec of a key/value pair.
func MapEntrySpec(key, value Value, address uint64, typeName string) ChildSpec {
	return ChildSpec{
		Key:     &Element{Node: key.node},
		Value:   &Element{Node: value.node},
		Address: address,
		Type:    typeName,
	}
}

// Value is a dumper's view of a real node. Navigating into children expands
// nodes on demand and tags them FlagExpandedByDumper.
type Value struct {
	node *SymbolNode
}

// ValueOf wraps a real node.
func ValueOf(n *SymbolNode) Value { return Value{node: n} }

// Valid reports whether the value wraps a node.
func (v Value) Valid() bool { return v.node != nil }

// Node returns the wrapped node.
func (v Value) Node() *SymbolNode { return v.node }

// Name returns the node name.
func (v Value) Name() string { return v.node.Name() }

// Type returns the declared type.
func (v Value) Type() string { return v.node.Type() }

// Address returns the value address.
func (v Value) Address() uint64 { return v.node.Address() }

// Size returns the value size.
func (v Value) Size() uint64 { return v.node.Size() }

// SubElements returns the backend child count.
func (v Value) SubElements() int { return v.node.record.SubElements }

// Raw returns the backend value.
func (v Value) Raw(ctx context.Context) (string, error) {
	return v.node.RawValue(ctx)
}

// Int parses the backend value as an integer.
func (v Value) Int(ctx context.Context) (int64, error) {
	raw, err := v.Raw(ctx)
	if err != nil {
		return 0, err
	}
	n, ok := parseInteger(raw)
	if !ok {
		return 0, fmt.Errorf("%s: %q is not an integer: %w", v.Name(), raw, ErrDumperFailed)
	}
	return n, nil
}

// IsNull reports whether the value is a null pointer.
func (v Value) IsNull(ctx context.Context) bool {
	raw, err := v.Raw(ctx)
	if err != nil {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "0x0", "nil", "null", "<nil>":
		return true
	}
	if n, ok := parseInteger(raw); ok && n == 0 && v.node.record.IsPointer() {
		return true
	}
	return false
}

// Children expands the node if needed and returns its real children.
func (v Value) Children(ctx context.Context) ([]Value, error) {
	if err := v.node.expandForDumper(ctx); err != nil {
		return nil, err
	}
	var out []Value
	for _, c := range v.node.Children() {
		if sn, ok := c.(*SymbolNode); ok {
			out = append(out, Value{node: sn})
		}
	}
	return out, nil
}

// Field returns the child named name.
func (v Value) Field(ctx context.Context, name string) (Value, error) {
	children, err := v.Children(ctx)
	if err != nil {
		return Value{}, err
	}
	for _, c := range children {
		if c.Name() == name {
			return c, nil
		}
	}
	return Value{}, fmt.Errorf("%s has no field %q: %w", v.Name(), name, ErrNodeNotFound)
}

// Index returns the i-th real child.
func (v Value) Index(ctx context.Context, i int) (Value, error) {
	children, err := v.Children(ctx)
	if err != nil {
		return Value{}, err
	}
	if i < 0 || i >= len(children) {
		return Value{}, fmt.Errorf("%s has no child %d: %w", v.Name(), i, ErrNodeNotFound)
	}
	return children[i], nil
}
