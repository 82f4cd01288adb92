package symbolgroup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Placeholders written for values that cannot be shown.
const (
	placeholderInaccessible  = "<not accessible>"
	placeholderUninitialized = "<uninitialized>"
)

// SymbolNode is a real node identified by its index in the backend's flat
// enumeration. The index shifts whenever an earlier record is expanded.
//
// Dumping happens in two phases:
//   - simple dumping produces the one-line value and classifies the type,
//     possibly as a container with an element count;
//   - complex dumping, for expanded containers, appends synthetic children
//     (array references or map entries) and marks the backend children
//     obscured. Obscured nodes stay addressable by iname.
//
// Dumpers navigating into children expand nodes on the way; those nodes are
// tagged FlagExpandedByDumper and their children are not rendered unless the
// user expands them explicitly.
type SymbolNode struct {
	nodeBase
	group  *SymbolGroup
	index  int
	record Record

	rawValue  string
	rawErr    error
	rawLoaded bool

	dumperValue string
	dumperKind  ContainerKind
	dumperSize  int
	complexRan  bool
}

func newSymbolNode(g *SymbolGroup, index int, rec Record, name, iname string) *SymbolNode {
	return &SymbolNode{
		nodeBase:   newNodeBase(name, iname),
		group:      g,
		index:      index,
		record:     rec,
		dumperSize: -1,
	}
}

// newRoot creates an invisible root node without backend record.
func newRoot(g *SymbolGroup, name, iname string) *SymbolNode {
	return newSymbolNode(g, NoParent, Record{ParentIndex: NoParent}, name, iname)
}

// Kind returns KindSymbol.
func (n *SymbolNode) Kind() Kind { return KindSymbol }

// Resolve returns n.
func (n *SymbolNode) Resolve() Node { return n }

// IsRoot reports whether n is a root without backend record.
func (n *SymbolNode) IsRoot() bool { return n.index == NoParent }

// Index returns the current flat backend index.
func (n *SymbolNode) Index() int { return n.index }

// Record returns the cached backend record.
func (n *SymbolNode) Record() Record { return n.record }

// Type returns the declared type.
func (n *SymbolNode) Type() string { return n.record.Type }

// Address returns the value address.
func (n *SymbolNode) Address() uint64 { return n.record.Address }

// Size returns the value size.
func (n *SymbolNode) Size() uint64 { return n.record.Size }

// SubElements returns the backend child count.
func (n *SymbolNode) SubElements() int { return n.record.SubElements }

// CanExpand reports whether the backend reports children.
func (n *SymbolNode) CanExpand() bool { return n.record.SubElements > 0 }

// IsExpanded reports whether children have been materialized.
func (n *SymbolNode) IsExpanded() bool { return len(n.children) > 0 }

// DumperKind returns the classification of the last simple dumper run.
func (n *SymbolNode) DumperKind() ContainerKind { return n.dumperKind }

// DumperContainerSize returns the container size, -1 if unknown.
func (n *SymbolNode) DumperContainerSize() int { return n.dumperSize }

// DumperValue returns the value produced by the simple dumper.
func (n *SymbolNode) DumperValue() string { return n.dumperValue }

// RawValue returns the backend value. Successful reads and inaccessible
// results are cached.
func (n *SymbolNode) RawValue(ctx context.Context) (string, error) {
	if n.IsRoot() {
		return "", nil
	}
	if n.rawLoaded {
		return n.rawValue, n.rawErr
	}
	value, err := n.group.backend.ReadValue(ctx, n.index)
	if err == nil || errors.Is(err, ErrInaccessible) {
		n.rawValue, n.rawErr, n.rawLoaded = value, err, true
	}
	return value, err
}

// IsMemoryAccessible is the quick check for readable values.
func (n *SymbolNode) IsMemoryAccessible(ctx context.Context) bool {
	_, err := n.RawValue(ctx)
	return err == nil
}

// FixedValue returns the dumper value if simple dumping succeeded and the
// raw backend value otherwise.
func (n *SymbolNode) FixedValue(ctx context.Context) (string, error) {
	if n.TestFlags(FlagSimpleDumperOk) {
		return n.dumperValue, nil
	}
	return n.RawValue(ctx)
}

// Expand materializes the backend children. Expanding an expanded node is a
// successful no-op that clears FlagExpandedByDumper: the second request is
// an explicit one.
func (n *SymbolNode) Expand(ctx context.Context) error {
	if n.IsExpanded() {
		n.ClearFlags(FlagExpandedByDumper)
		expansionsTotal.WithLabelValues("already").Inc()
		return nil
	}
	if n.IsRoot() || !n.CanExpand() {
		expansionsTotal.WithLabelValues("not_expandable").Inc()
		return fmt.Errorf("node '%s' does not have children: %w", n.Name(), ErrNotExpandable)
	}
	return n.expand(ctx)
}

// expandForDumper expands n for a dumper and tags it when the expansion
// was not already there.
func (n *SymbolNode) expandForDumper(ctx context.Context) error {
	if n.IsExpanded() {
		return nil
	}
	if err := n.Expand(ctx); err != nil {
		return err
	}
	n.AddFlags(FlagExpandedByDumper)
	return nil
}

func (n *SymbolNode) expand(ctx context.Context) error {
	g := n.group
	inserted, err := g.backend.ExpandRecord(ctx, n.index)
	if err != nil {
		expansionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("expand '%s': %w", n.Name(), err)
	}
	if inserted <= 0 {
		expansionsTotal.WithLabelValues("not_expandable").Inc()
		return fmt.Errorf("node '%s' does not have children: %w", n.Name(), ErrNotExpandable)
	}

	// Renumber the whole tree before the new nodes exist.
	g.notifyExpanded(n.index, inserted)

	if rec, err := g.backend.Record(ctx, n.index); err == nil {
		n.record = rec
	}
	if err := g.attachRecords(ctx, n.index+1, inserted, n); err != nil {
		expansionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("expand '%s': %w", n.Name(), err)
	}

	expansionsTotal.WithLabelValues("ok").Inc()
	insertedRecordsTotal.Add(float64(inserted))
	g.log.Debug("expanded %s at %d: %d records inserted", n.Name(), n.index, inserted)
	return nil
}

// notifyExpanded shifts the index of n and its structural descendants when
// they lie after the expanded record.
func (n *SymbolNode) notifyExpanded(index, inserted int) {
	if n.index > index {
		n.index += inserted
	}
	for _, c := range n.children {
		if sn, ok := c.(*SymbolNode); ok {
			sn.notifyExpanded(index, inserted)
		}
	}
}

// newChild creates the node for a backend record below n.
func (n *SymbolNode) newChild(index int, rec Record) *SymbolNode {
	child := newSymbolNode(n.group, index, rec, rec.Name, n.uniqueIName(inameFromName(rec.Name)))
	n.addChild(n, child)
	return child
}

// inameFromName derives an iname: "[3]" becomes "3" and separators are
// replaced.
func inameFromName(name string) string {
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		if _, err := strconv.Atoi(name[1 : len(name)-1]); err == nil {
			return name[1 : len(name)-1]
		}
	}
	iname := strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '"', '#':
			return '_'
		}
		return r
	}, name)
	if iname == "" {
		return "_"
	}
	return iname
}

// RunSimpleDumpers runs simple dumping once. Afterwards exactly one flag of
// FlagSimpleDumperMask is set. A dumper failure is reported but leaves the
// node showing its raw value.
func (n *SymbolNode) RunSimpleDumpers(ctx context.Context, vc ValueContext) error {
	if n.IsRoot() || n.TestFlags(FlagSimpleDumperMask) {
		return nil
	}
	g := n.group
	if g.dumper == nil || n.TestFlags(FlagUninitialized) || !n.IsMemoryAccessible(ctx) {
		n.AddFlags(FlagSimpleDumperNotApplicable)
		dumperRunsTotal.WithLabelValues("simple", "not_applicable").Inc()
		return nil
	}

	res, ok, err := g.dumper.SimpleFormat(ctx, ValueOf(n), vc)
	switch {
	case err != nil:
		n.AddFlags(FlagSimpleDumperFailed)
		dumperRunsTotal.WithLabelValues("simple", "failed").Inc()
		g.log.Warn("simple dumper for %s (%s) failed: %v", n.Name(), n.Type(), err)
		return fmt.Errorf("%w: simple dumper for '%s': %w", ErrDumperFailed, n.Name(), err)
	case !ok:
		n.AddFlags(FlagSimpleDumperNotApplicable)
		dumperRunsTotal.WithLabelValues("simple", "not_applicable").Inc()
		return nil
	}

	n.dumperValue = res.Value
	n.dumperKind = res.Kind
	n.dumperSize = res.ContainerSize
	if n.dumperSize < 0 {
		n.dumperSize = -1
	}
	n.AddFlags(FlagSimpleDumperOk)
	dumperRunsTotal.WithLabelValues("simple", "ok").Inc()
	return nil
}

// RunComplexDumpers synthesizes container children once, for nodes the
// simple dumper classified as non-empty containers.
func (n *SymbolNode) RunComplexDumpers(ctx context.Context, vc ValueContext) error {
	g := n.group
	if n.complexRan || g.dumper == nil || !n.TestFlags(FlagSimpleDumperOk) ||
		!n.dumperKind.IsContainer() || n.dumperSize == 0 {
		return nil
	}
	n.complexRan = true

	specs, err := g.dumper.ComplexFormat(ctx, ValueOf(n), vc)
	if err != nil {
		dumperRunsTotal.WithLabelValues("complex", "failed").Inc()
		g.log.Warn("complex dumper for %s (%s) failed: %v", n.Name(), n.Type(), err)
		return fmt.Errorf("%w: complex dumper for '%s': %w", ErrDumperFailed, n.Name(), err)
	}

	synthetic := make([]Node, 0, len(specs))
	for _, spec := range specs {
		child, err := n.synthesize(ctx, len(synthetic), spec)
		if err != nil {
			g.log.Warn("dropping element %d of %s: %v", len(synthetic), n.Name(), err)
			continue
		}
		synthetic = append(synthetic, child)
	}
	if len(synthetic) == 0 {
		dumperRunsTotal.WithLabelValues("complex", "empty").Inc()
		return nil
	}

	n.ClearFlags(FlagExpandedByDumper)
	// Backend children stay in place, addressable but hidden.
	for _, c := range n.children {
		c.AddFlags(FlagObscured)
	}
	for _, c := range synthetic {
		n.addChild(n, c)
	}
	n.dumperSize = len(synthetic)
	n.AddFlags(FlagComplexDumperOk)
	dumperRunsTotal.WithLabelValues("complex", "ok").Inc()
	return nil
}

// synthesize builds the i-th synthetic child from a spec.
func (n *SymbolNode) synthesize(ctx context.Context, i int, spec ChildSpec) (Node, error) {
	if spec.IsMapEntry() {
		key, err := n.resolveElement(ctx, *spec.Key)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		value, err := n.resolveElement(ctx, *spec.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return NewMapNode(i, spec.Address, spec.Type, key, value), nil
	}
	target, err := n.resolveElement(ctx, spec.Element)
	if err != nil {
		return nil, err
	}
	return NewArrayReference(i, target), nil
}

func (n *SymbolNode) resolveElement(ctx context.Context, el Element) (*SymbolNode, error) {
	switch {
	case el.Node != nil:
		for p := Node(n); p != nil; p = p.Parent() {
			if p == Node(el.Node) {
				return nil, fmt.Errorf("%w: element '%s' is an ancestor of '%s'", ErrDumperFailed, el.Node.Name(), n.Name())
			}
		}
		return el.Node, nil
	case el.Expression != "":
		return n.group.addHiddenSymbol(ctx, el.Expression)
	default:
		return nil, fmt.Errorf("%w: empty element", ErrDumperFailed)
	}
}

// ExpandRunComplexDumpers expands n, runs the simple dumper and, for
// containers, the complex dumper. A node with no backend children is still
// expandable when a container dumper produces children for it.
func (n *SymbolNode) ExpandRunComplexDumpers(ctx context.Context, vc ValueContext) error {
	switch {
	case n.IsExpanded() || n.TestFlags(FlagComplexDumperOk):
		n.ClearFlags(FlagExpandedByDumper)
	case n.CanExpand():
		if err := n.Expand(ctx); err != nil {
			return err
		}
	}
	if err := n.RunSimpleDumpers(ctx, vc); err != nil {
		n.group.log.Debug("expand %s: %v", n.Name(), err)
	}
	if err := n.RunComplexDumpers(ctx, vc); err != nil {
		n.group.log.Debug("expand %s: %v", n.Name(), err)
	}
	if !n.IsExpanded() {
		return fmt.Errorf("node '%s' does not have children: %w", n.Name(), ErrNotExpandable)
	}
	return nil
}

// TypeCast re-types an unexpanded node and resets its dumper state.
func (n *SymbolNode) TypeCast(ctx context.Context, typeName string) error {
	if n.IsRoot() {
		return ErrRootOperation
	}
	if n.IsExpanded() {
		return fmt.Errorf("cast '%s' to %s: %w", n.Name(), typeName, ErrTypeCastRejected)
	}
	if err := n.group.backend.TypeCast(ctx, n.index, typeName); err != nil {
		return fmt.Errorf("cast '%s' to %s: %w", n.Name(), typeName, err)
	}
	rec, err := n.group.backend.Record(ctx, n.index)
	if err != nil {
		return fmt.Errorf("cast '%s' to %s: %w", n.Name(), typeName, err)
	}
	n.record = rec
	n.ClearFlags(FlagSimpleDumperMask | FlagComplexDumperOk)
	n.rawValue, n.rawErr, n.rawLoaded = "", nil, false
	n.dumperValue, n.dumperKind, n.dumperSize, n.complexRan = "", ContainerNone, -1, false
	return nil
}

// numChild is the child count announced in the protocol record.
func (n *SymbolNode) numChild() int {
	if n.TestFlags(FlagSimpleDumperOk) && n.dumperKind.IsContainer() && n.dumperSize >= 0 {
		return n.dumperSize
	}
	return n.record.SubElements
}

// Dump writes the protocol fields of n.
func (n *SymbolNode) Dump(ctx context.Context, w io.Writer, fullIName string, p DumpParameters, vc ValueContext) error {
	return n.dumpNode(ctx, w, n.Name(), fullIName, "", false, p, vc)
}

// placeholder returns the text shown instead of the value when n cannot be
// presented, or "" when it can. uninitialized carries the flag of a
// reference presenting n.
func (n *SymbolNode) placeholder(ctx context.Context, uninitialized bool) string {
	switch {
	case uninitialized || n.TestFlags(FlagUninitialized):
		return placeholderUninitialized
	case !n.IsMemoryAccessible(ctx):
		return placeholderInaccessible
	}
	return ""
}

// dumpNode writes the fields of n under the given name and path; reference
// nodes use it to present the target under their own identity.
func (n *SymbolNode) dumpNode(ctx context.Context, w io.Writer, name, fullIName, expression string, uninitialized bool, p DumpParameters, vc ValueContext) error {
	placeholder := n.placeholder(ctx, uninitialized)
	if placeholder == "" {
		if err := n.RunSimpleDumpers(ctx, vc); err != nil {
			n.group.log.Debug("dump %s: %v", fullIName, err)
		}
	}

	writeBasicData(w, name, fullIName, n.Type(), expression)
	if n.record.Address != 0 {
		fmt.Fprintf(w, ",addr=\"0x%x\"", n.record.Address)
	}

	if placeholder != "" {
		_, err := fmt.Fprintf(w, `,value="%s",valueenabled="false",valueeditable="false",numchild="0"`, placeholder)
		return err
	}

	value := n.dumperValue
	if !n.TestFlags(FlagSimpleDumperOk) || p.Format(n.Type(), fullIName) == FormatRaw {
		value, _ = n.RawValue(ctx)
	}
	text, encoding := p.Recode(n.Type(), fullIName, value)
	if encoding != ValueEncodingNone {
		fmt.Fprintf(w, ",valueencoded=\"%d\",value=\"%s\"", encoding, text)
	} else {
		fmt.Fprintf(w, ",value=\"%s\"", escapeValue(text))
	}

	editable := n.record.Flags&RecordReadOnly == 0 && n.record.SubElements == 0 && !n.dumperKind.IsContainer()
	_, err := fmt.Fprintf(w, ",valueenabled=\"true\",valueeditable=\"%t\",numchild=\"%d\"", editable, n.numChild())
	return err
}

// Debug writes a diagnostic line for n.
func (n *SymbolNode) Debug(w io.Writer, fullIName string, verbosity, _ int) {
	fmt.Fprintf(w, "'%s' [%s] ", n.Name(), fullIName)
	n.debugNode(w, verbosity)
}

// debugNode writes the cached state of n without touching the backend.
func (n *SymbolNode) debugNode(w io.Writer, verbosity int) {
	value := n.rawValue
	switch {
	case n.TestFlags(FlagSimpleDumperOk):
		value = n.dumperValue
	case n.rawErr != nil:
		value = placeholderInaccessible
	case !n.rawLoaded:
		value = "?"
	}
	fmt.Fprintf(w, "= %s", value)
	if verbosity > 0 {
		fmt.Fprintf(w, " type=%s index=%d subelements=%d flags=%s",
			n.Type(), n.index, n.record.SubElements, n.Flags())
	}
	if verbosity > 1 {
		fmt.Fprintf(w, " addr=0x%x size=%d dumper=%s/%d", n.record.Address, n.record.Size, n.dumperKind, n.dumperSize)
	}
	io.WriteString(w, "\n")
}
