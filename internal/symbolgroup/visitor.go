package symbolgroup

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// VisitResult directs the traversal.
type VisitResult int

const (
	// VisitContinue descends into the children of the node.
	VisitContinue VisitResult = iota
	// VisitSkipChildren continues with the next sibling.
	VisitSkipChildren
	// VisitStop ends the traversal.
	VisitStop
)

// String returns the directive name.
func (r VisitResult) String() string {
	switch r {
	case VisitContinue:
		return "continue"
	case VisitSkipChildren:
		return "skip-children"
	case VisitStop:
		return "stop"
	default:
		return fmt.Sprintf("VisitResult(%d)", int(r))
	}
}

// Visitor receives the nodes of a depth-first, pre-order traversal.
// fullIName is the path along which the node was reached, which differs
// from AbsoluteFullIName for nodes reached through references.
type Visitor interface {
	Visit(ctx context.Context, n Node, fullIName string, child, depth int) VisitResult
	// ChildrenVisited is called after the subtree of a node the visitor
	// continued into has been traversed.
	ChildrenVisited(n Node, depth int)
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(ctx context.Context, n Node, fullIName string, child, depth int) VisitResult

// Visit calls f.
func (f VisitorFunc) Visit(ctx context.Context, n Node, fullIName string, child, depth int) VisitResult {
	return f(ctx, n, fullIName, child, depth)
}

// ChildrenVisited does nothing.
func (f VisitorFunc) ChildrenVisited(Node, int) {}

// Accept walks n and its children. parentIName is the visited path of the
// parent and child the position of n in it. A root (no parent) is not
// visited itself; its children are visited at depth 0.
func Accept(ctx context.Context, n Node, v Visitor, parentIName string, child, depth int) VisitResult {
	fullIName := JoinIName(parentIName, n.IName())
	root := n.Parent() == nil

	result, childDepth := VisitContinue, 0
	if !root {
		result = v.Visit(ctx, n, fullIName, child, depth)
		childDepth = depth + 1
	}
	if result != VisitContinue {
		return result
	}

	// Children are fetched after the visit: dumping may have appended
	// synthetic ones.
	for i, c := range n.Children() {
		if Accept(ctx, c, v, fullIName, i, childDepth) == VisitStop {
			return VisitStop
		}
	}
	if !root {
		v.ChildrenVisited(n, depth)
	}
	return VisitContinue
}

// DebugVisitor writes an indented diagnostic listing of every node,
// obscured and hidden ones included. It shows cached state only.
type DebugVisitor struct {
	w         io.Writer
	verbosity int
}

// NewDebugVisitor creates a debug visitor.
func NewDebugVisitor(w io.Writer, verbosity int) *DebugVisitor {
	return &DebugVisitor{w: w, verbosity: verbosity}
}

// Visit writes one line for n.
func (d *DebugVisitor) Visit(_ context.Context, n Node, fullIName string, child, depth int) VisitResult {
	fmt.Fprintf(d.w, "%s%d ", strings.Repeat("  ", depth), child)
	n.Debug(d.w, fullIName, d.verbosity, depth)
	return VisitContinue
}

// ChildrenVisited does nothing.
func (d *DebugVisitor) ChildrenVisited(Node, int) {}

// DumpVisitor writes protocol records:
//
//	{iname="local.v",name="v",type="int",value="1",...,children=[{...},{...}]}
//
// Obscured and hidden additional nodes are skipped. Children are written
// only for nodes the user expanded whose value could be shown.
type DumpVisitor struct {
	w      io.Writer
	params DumpParameters
	vc     ValueContext

	// separator state per depth
	started []bool
	err     error
}

// NewDumpVisitor creates a protocol dump visitor.
func NewDumpVisitor(w io.Writer, p DumpParameters, vc ValueContext) *DumpVisitor {
	return &DumpVisitor{w: w, params: p, vc: vc}
}

// Err returns the first write or dump error.
func (d *DumpVisitor) Err() error { return d.err }

// Visit writes the record of n and opens its child list if visible.
func (d *DumpVisitor) Visit(ctx context.Context, n Node, fullIName string, _, depth int) VisitResult {
	if n.TestFlags(FlagObscured | FlagAdditionalSymbol) {
		return VisitSkipChildren
	}

	resolved := n.Resolve()
	sn, ok := resolved.(*SymbolNode)
	hidden := ok && (n.TestFlags(FlagUninitialized) || sn.placeholder(ctx, false) != "")
	if ok && !hidden && d.params.ComplexDumpers() && sn.IsExpanded() && !sn.TestFlags(FlagExpandedByDumper) {
		_ = sn.RunSimpleDumpers(ctx, d.vc)
		if err := sn.RunComplexDumpers(ctx, d.vc); err != nil {
			sn.group.log.Debug("dump %s: %v", fullIName, err)
		}
	}

	for len(d.started) <= depth {
		d.started = append(d.started, false)
	}
	if d.started[depth] {
		d.write(",")
	}
	d.started[depth] = true

	d.write("{")
	if err := n.Dump(ctx, d.w, fullIName, d.params, d.vc); err != nil && d.err == nil {
		d.err = err
	}
	if hidden || !IsExpanded(resolved) || resolved.TestFlags(FlagExpandedByDumper) {
		d.write("}")
		return VisitSkipChildren
	}
	d.write(",children=[")
	return VisitContinue
}

// ChildrenVisited closes the child list of n.
func (d *DumpVisitor) ChildrenVisited(_ Node, depth int) {
	d.write("]}")
	if len(d.started) > depth+1 {
		d.started = d.started[:depth+1]
	}
}

func (d *DumpVisitor) write(s string) {
	if _, err := io.WriteString(d.w, s); err != nil && d.err == nil {
		d.err = err
	}
}
