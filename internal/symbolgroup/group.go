package symbolgroup

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/symtree/internal/logging"
)

// Root names and inames.
const (
	LocalsName  = "locals"
	LocalsIName = "local"
	WatchName   = "watches"
	WatchIName  = "watch"
)

// Prefixes of hidden root inames.
const (
	hiddenWatchPrefix      = "__watch_"
	hiddenExpressionPrefix = "__e"
)

// SymbolGroup mirrors the symbol group of one stack frame as a tree of
// nodes below two invisible roots: locals and watches.
//
// A SymbolGroup is not safe for concurrent use.
type SymbolGroup struct {
	id      uuid.UUID
	backend Backend
	dumper  Dumper
	log     *logging.Logger

	root      *SymbolNode
	watchRoot *SymbolNode

	expressions map[string]*SymbolNode
	watchSeq    int
}

// Option configures a SymbolGroup.
type Option func(*SymbolGroup)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *SymbolGroup) {
		if l != nil {
			g.log = l
		}
	}
}

// WithID sets the group identifier instead of a random one.
func WithID(id uuid.UUID) Option {
	return func(g *SymbolGroup) {
		g.id = id
	}
}

// New builds the tree from the current backend records. Records must
// follow their parents. A nil dumper disables formatting.
func New(ctx context.Context, backend Backend, dumper Dumper, opts ...Option) (*SymbolGroup, error) {
	g := &SymbolGroup{
		id:          uuid.New(),
		backend:     backend,
		dumper:      dumper,
		log:         logging.Nop(),
		expressions: make(map[string]*SymbolNode),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.WithComponent("symbolgroup").WithField("group", g.id.String()[:8])
	g.root = newRoot(g, LocalsName, LocalsIName)
	g.watchRoot = newRoot(g, WatchName, WatchIName)

	count := backend.Count()
	if err := g.attachRecords(ctx, 0, count, g.root); err != nil {
		return nil, fmt.Errorf("create symbol group: %w", err)
	}
	g.log.Debug("created with %d records", count)
	return g, nil
}

// ID returns the group identifier.
func (g *SymbolGroup) ID() uuid.UUID { return g.id }

// Root returns the invisible locals root.
func (g *SymbolGroup) Root() *SymbolNode { return g.root }

// WatchRoot returns the invisible watch root.
func (g *SymbolGroup) WatchRoot() *SymbolNode { return g.watchRoot }

// ValueContext returns the debuggee view handed to dumpers.
func (g *SymbolGroup) ValueContext() ValueContext {
	return ValueContext{Memory: g.backend}
}

// attachRecords creates nodes for count records starting at first. Each
// record is attached to the node of its parent index, owner being the
// fallback.
func (g *SymbolGroup) attachRecords(ctx context.Context, first, count int, owner *SymbolNode) error {
	parents := map[int]*SymbolNode{owner.index: owner}
	owner.reserveChildren(count)
	for i := first; i < first+count; i++ {
		rec, err := g.backend.Record(ctx, i)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		parent, ok := parents[rec.ParentIndex]
		if !ok {
			parent = owner
		}
		parents[i] = parent.newChild(i, rec)
	}
	return nil
}

// notifyExpanded renumbers every real node after index.
func (g *SymbolGroup) notifyExpanded(index, inserted int) {
	g.root.notifyExpanded(index, inserted)
	g.watchRoot.notifyExpanded(index, inserted)
}

// Find resolves an absolute iname such as "local.v.0" or "watch.1".
func (g *SymbolGroup) Find(iname string) (Node, error) {
	segments := strings.Split(iname, INameSeparator)
	var node Node
	switch segments[0] {
	case LocalsIName:
		node = g.root
	case WatchIName:
		node = g.watchRoot
	default:
		return nil, fmt.Errorf("%q: %w", iname, ErrNodeNotFound)
	}
	for _, s := range segments[1:] {
		if node = ChildByIName(node, s); node == nil {
			return nil, fmt.Errorf("%q: %w", iname, ErrNodeNotFound)
		}
	}
	return node, nil
}

// FindSymbol resolves iname to a real node, following references.
func (g *SymbolGroup) FindSymbol(iname string) (*SymbolNode, error) {
	node, err := g.Find(iname)
	if err != nil {
		return nil, err
	}
	sn, ok := node.Resolve().(*SymbolNode)
	if !ok {
		return nil, fmt.Errorf("%q is a %s node: %w", iname, node.Kind(), ErrNotASymbol)
	}
	return sn, nil
}

// Expand expands the node at iname.
func (g *SymbolGroup) Expand(ctx context.Context, iname string) error {
	sn, err := g.FindSymbol(iname)
	if err != nil {
		return err
	}
	return sn.Expand(ctx)
}

// ExpandRunComplexDumpers expands the node at iname and runs its dumpers.
func (g *SymbolGroup) ExpandRunComplexDumpers(ctx context.Context, iname string) error {
	sn, err := g.FindSymbol(iname)
	if err != nil {
		return err
	}
	return sn.ExpandRunComplexDumpers(ctx, g.ValueContext())
}

// ExpandAll expands each iname, with complex dumpers when p enables them.
// Paths are processed in order so that a path may name a child created by
// an earlier one.
func (g *SymbolGroup) ExpandAll(ctx context.Context, inames []string, p DumpParameters) error {
	for _, iname := range inames {
		var err error
		if p.ComplexDumpers() {
			err = g.ExpandRunComplexDumpers(ctx, iname)
		} else {
			err = g.Expand(ctx, iname)
		}
		if err != nil {
			return fmt.Errorf("expand %s: %w", iname, err)
		}
	}
	return nil
}

// AddSymbol adds expression as an additional top-level symbol with the
// given iname, sanitized like derived inames. Additional symbols are
// hidden in dumps.
func (g *SymbolGroup) AddSymbol(ctx context.Context, expression, iname string) (*SymbolNode, error) {
	if iname == "" {
		iname = expression
	}
	iname = inameFromName(iname)
	index, err := g.backend.AddSymbol(ctx, expression)
	if err != nil {
		return nil, fmt.Errorf("add symbol %q: %w", expression, err)
	}
	// Backends normally append; shift anything at or after the new index.
	g.notifyExpanded(index-1, 1)

	rec, err := g.backend.Record(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("add symbol %q: %w", expression, err)
	}
	node := newSymbolNode(g, index, rec, expression, g.root.uniqueIName(iname))
	node.AddFlags(FlagAdditionalSymbol)
	g.root.addChild(g.root, node)
	g.log.Debug("added symbol %q as %s at %d", expression, node.IName(), index)
	return node, nil
}

// addHiddenSymbol returns the additional node for expression, adding it on
// first use.
func (g *SymbolGroup) addHiddenSymbol(ctx context.Context, expression string) (*SymbolNode, error) {
	if n, ok := g.expressions[expression]; ok {
		return n, nil
	}
	n, err := g.AddSymbol(ctx, expression, hiddenExpressionPrefix+strconv.Itoa(len(g.expressions)))
	if err != nil {
		return nil, err
	}
	g.expressions[expression] = n
	return n, nil
}

// AddWatch evaluates expression and exposes it below the watch root as
// "watch.<n>".
func (g *SymbolGroup) AddWatch(ctx context.Context, expression string) (*ReferenceNode, error) {
	seq := g.watchSeq
	target, err := g.AddSymbol(ctx, expression, hiddenWatchPrefix+strconv.Itoa(seq))
	if err != nil {
		return nil, err
	}
	g.watchSeq++
	ref := NewReferenceNode(expression, strconv.Itoa(seq), target)
	ref.AddFlags(FlagWatchNode)
	g.watchRoot.addChild(g.watchRoot, ref)
	return ref, nil
}

// TypeCast re-types the unexpanded node at iname.
func (g *SymbolGroup) TypeCast(ctx context.Context, iname, typeName string) error {
	sn, err := g.FindSymbol(iname)
	if err != nil {
		return err
	}
	return sn.TypeCast(ctx, typeName)
}

// MarkUninitialized flags the named nodes as uninitialized. Unknown inames
// are ignored. It returns the number of nodes marked.
func (g *SymbolGroup) MarkUninitialized(inames []string) int {
	marked := 0
	for _, iname := range inames {
		node, err := g.Find(iname)
		if err != nil {
			g.log.Debug("mark uninitialized: %v", err)
			continue
		}
		node.AddFlags(FlagUninitialized)
		marked++
	}
	return marked
}

// Walk traverses the subtree at iname.
func (g *SymbolGroup) Walk(ctx context.Context, iname string, v Visitor) error {
	node, err := g.Find(iname)
	if err != nil {
		return err
	}
	child := 0
	if parent := node.Parent(); parent != nil {
		child = IndexByIName(parent, node.IName())
	}
	Accept(ctx, node, v, ParentIName(iname), child, 0)
	return nil
}

// Dump writes the protocol records of the subtree at iname. Dumping a root
// writes the list of its visible children.
func (g *SymbolGroup) Dump(ctx context.Context, w io.Writer, iname string, p DumpParameters) error {
	node, err := g.Find(iname)
	if err != nil {
		return err
	}
	root := node.Parent() == nil
	if root {
		io.WriteString(w, "[")
	}
	v := NewDumpVisitor(w, p, g.ValueContext())
	if err := g.Walk(ctx, iname, v); err != nil {
		return err
	}
	if root {
		io.WriteString(w, "]")
	}
	return v.Err()
}

// DumpAll writes both roots as locals=[...],watches=[...].
func (g *SymbolGroup) DumpAll(ctx context.Context, w io.Writer, p DumpParameters) error {
	io.WriteString(w, LocalsName+"=")
	if err := g.Dump(ctx, w, LocalsIName, p); err != nil {
		return err
	}
	io.WriteString(w, ","+WatchName+"=")
	return g.Dump(ctx, w, WatchIName, p)
}

// DebugDump writes the diagnostic listing of the subtree at iname.
func (g *SymbolGroup) DebugDump(w io.Writer, iname string, verbosity int) error {
	return g.Walk(context.Background(), iname, NewDebugVisitor(w, verbosity))
}
