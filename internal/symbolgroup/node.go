package symbolgroup

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// INameSeparator joins inames into paths ("local.v.0").
const INameSeparator = "."

// Kind identifies the concrete node type.
type Kind int

const (
	// KindSymbol is a real backend entry.
	KindSymbol Kind = iota
	// KindReference forwards to a real entry.
	KindReference
	// KindMap is a synthetic key/value pair.
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindReference:
		return "reference"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Node is a node of a symbol group tree. The set of implementations is
// closed: *SymbolNode, *ReferenceNode and *MapNode.
type Node interface {
	// Name is the display name.
	Name() string
	// IName is the internal identifier, unique among siblings.
	IName() string
	// Parent is the structural parent, nil for roots.
	Parent() Node
	// Children returns the child list. For references it is the live child
	// list of the target.
	Children() []Node
	// Kind returns the concrete node type.
	Kind() Kind

	Flags() Flags
	TestFlags(f Flags) bool
	AddFlags(f Flags)
	ClearFlags(f Flags)

	// Resolve returns the referenced node for references and the node itself
	// otherwise. The result is never a reference.
	Resolve() Node

	// Dump writes the protocol fields of the node as visited at fullIName.
	Dump(ctx context.Context, w io.Writer, fullIName string, p DumpParameters, vc ValueContext) error
	// Debug writes a diagnostic line for the node as visited at fullIName.
	Debug(w io.Writer, fullIName string, verbosity, depth int)

	base() *nodeBase
}

// nodeBase is the record shared by all node kinds.
type nodeBase struct {
	name     string
	iname    string
	parent   Node
	flags    Flags
	children []Node
}

func newNodeBase(name, iname string) nodeBase {
	return nodeBase{name: name, iname: iname}
}

func (b *nodeBase) Name() string { return b.name }
func (b *nodeBase) IName() string { return b.iname }
func (b *nodeBase) Parent() Node { return b.parent }
func (b *nodeBase) Children() []Node { return b.children }
func (b *nodeBase) Flags() Flags { return b.flags }
func (b *nodeBase) TestFlags(f Flags) bool { return b.flags&f != 0 }
func (b *nodeBase) AddFlags(f Flags) { b.flags |= f }
func (b *nodeBase) ClearFlags(f Flags) { b.flags &^= f }
func (b *nodeBase) base() *nodeBase { return b }
func (b *nodeBase) setParent(parent Node) { b.parent = parent }
func (b *nodeBase) reserveChildren(n int) { b.children = slices.Grow(b.children, n) }

// addChild appends c and makes self its structural parent.
func (b *nodeBase) addChild(self, c Node) {
	c.base().setParent(self)
	b.children = append(b.children, c)
}

// uniqueIName returns candidate or candidate#n so that it is unique among
// the current children.
func (b *nodeBase) uniqueIName(candidate string) string {
	taken := func(s string) bool {
		for _, c := range b.children {
			if c.IName() == s {
				return true
			}
		}
		return false
	}
	if !taken(candidate) {
		return candidate
	}
	for n := 2; ; n++ {
		s := candidate + "#" + strconv.Itoa(n)
		if !taken(s) {
			return s
		}
	}
}

// ChildAt returns the i-th child or nil.
func ChildAt(n Node, i int) Node {
	children := n.Children()
	if i < 0 || i >= len(children) {
		return nil
	}
	return children[i]
}

// IndexByIName returns the position of the child with iname or -1.
// Visible children win over obscured ones carrying the same iname.
func IndexByIName(n Node, iname string) int {
	obscured := -1
	for i, c := range n.Children() {
		if c.IName() != iname {
			continue
		}
		if !c.TestFlags(FlagObscured) {
			return i
		}
		if obscured < 0 {
			obscured = i
		}
	}
	return obscured
}

// ChildByIName returns the child with iname or nil.
func ChildByIName(n Node, iname string) Node {
	return ChildAt(n, IndexByIName(n, iname))
}

// AbsoluteFullIName returns the structural path of n built from parent
// links. It differs from the visited path for nodes reached through
// references.
func AbsoluteFullIName(n Node) string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent() {
		parts = append(parts, cur.IName())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, INameSeparator)
}

// ParentIName strips the last path segment: "local.vi" -> "local".
func ParentIName(iname string) string {
	if i := strings.LastIndex(iname, INameSeparator); i >= 0 {
		return iname[:i]
	}
	return ""
}

// JoinIName appends iname to a parent path.
func JoinIName(parent, iname string) string {
	if parent == "" {
		return iname
	}
	return parent + INameSeparator + iname
}

// IsExpanded reports whether the resolved node has children.
func IsExpanded(n Node) bool {
	return len(n.Children()) > 0
}

// ReferenceNode presents its own name and iname but forwards children and
// dumping to a real entry elsewhere in the tree. It never owns the target.
type ReferenceNode struct {
	nodeBase
	target *SymbolNode
}

// NewReferenceNode creates a reference to target. The target type rules out
// reference chains.
func NewReferenceNode(name, iname string, target *SymbolNode) *ReferenceNode {
	if target == nil {
		panic("symbolgroup: reference to nil node")
	}
	return &ReferenceNode{nodeBase: newNodeBase(name, iname), target: target}
}

// NewArrayReference creates the array element alias named "[i]" with iname "i".
func NewArrayReference(i int, target *SymbolNode) *ReferenceNode {
	return NewReferenceNode(fmt.Sprintf("[%d]", i), strconv.Itoa(i), target)
}

// Target returns the referenced node.
func (r *ReferenceNode) Target() *SymbolNode { return r.target }

// Children returns the live child list of the target.
func (r *ReferenceNode) Children() []Node { return r.target.Children() }

// Kind returns KindReference.
func (r *ReferenceNode) Kind() Kind { return KindReference }

// Resolve returns the target.
func (r *ReferenceNode) Resolve() Node { return r.target }

// Dump dumps the target under the reference's name.
func (r *ReferenceNode) Dump(ctx context.Context, w io.Writer, fullIName string, p DumpParameters, vc ValueContext) error {
	exp := ""
	if r.TestFlags(FlagWatchNode) {
		exp = r.target.Name()
	}
	return r.target.dumpNode(ctx, w, r.Name(), fullIName, exp, r.TestFlags(FlagUninitialized), p, vc)
}

// Debug writes the reference line followed by its target.
func (r *ReferenceNode) Debug(w io.Writer, fullIName string, verbosity, depth int) {
	fmt.Fprintf(w, "Reference '%s' [%s] -> '%s' [%s] ", r.Name(), fullIName,
		r.target.Name(), AbsoluteFullIName(r.target))
	if verbosity > 0 {
		fmt.Fprintf(w, "flags=%s ", r.Flags())
	}
	r.target.debugNode(w, verbosity)
}

// MapNode is a synthetic key/value pair produced by an associative
// container dumper. Its children are the references "key" and "value".
type MapNode struct {
	nodeBase
	address  uint64
	typeName string
}

// NewMapNode creates the i-th entry of a map container.
func NewMapNode(i int, address uint64, typeName string, key, value *SymbolNode) *MapNode {
	m := &MapNode{
		nodeBase: newNodeBase(fmt.Sprintf("[%d]", i), strconv.Itoa(i)),
		address:  address,
		typeName: typeName,
	}
	m.reserveChildren(2)
	m.addChild(m, NewReferenceNode("key", "key", key))
	m.addChild(m, NewReferenceNode("value", "value", value))
	return m
}

// Kind returns KindMap.
func (m *MapNode) Kind() Kind { return KindMap }

// Resolve returns m.
func (m *MapNode) Resolve() Node { return m }

// Address returns the entry address, 0 if unknown.
func (m *MapNode) Address() uint64 { return m.address }

// Type returns the entry type name.
func (m *MapNode) Type() string { return m.typeName }

// Key returns the key reference.
func (m *MapNode) Key() *ReferenceNode { return m.children[0].(*ReferenceNode) }

// Value returns the value reference.
func (m *MapNode) Value() *ReferenceNode { return m.children[1].(*ReferenceNode) }

// Dump writes the entry fields. Key and value are dumped as children.
func (m *MapNode) Dump(_ context.Context, w io.Writer, fullIName string, _ DumpParameters, _ ValueContext) error {
	writeBasicData(w, m.Name(), fullIName, m.typeName, "")
	if m.address != 0 {
		fmt.Fprintf(w, ",addr=\"0x%x\"", m.address)
	}
	_, err := io.WriteString(w, `,value="",valueenabled="false",valueeditable="false",numchild="2"`)
	return err
}

// Debug writes a diagnostic line.
func (m *MapNode) Debug(w io.Writer, fullIName string, verbosity, _ int) {
	fmt.Fprintf(w, "MapNode '%s' [%s]", m.Name(), fullIName)
	if verbosity > 0 {
		fmt.Fprintf(w, " type=%s flags=%s", m.typeName, m.Flags())
	}
	if verbosity > 1 && m.address != 0 {
		fmt.Fprintf(w, " addr=0x%x", m.address)
	}
	io.WriteString(w, "\n")
}

// writeBasicData writes the fields common to every protocol record.
func writeBasicData(w io.Writer, name, fullIName, typeName, expression string) {
	fmt.Fprintf(w, "iname=\"%s\",name=\"%s\"", escapeValue(fullIName), escapeValue(name))
	if expression != "" {
		fmt.Fprintf(w, ",exp=\"%s\"", escapeValue(expression))
	}
	if typeName != "" {
		fmt.Fprintf(w, ",type=\"%s\"", escapeValue(typeName))
	}
}
