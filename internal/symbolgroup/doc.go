// Package symbolgroup keeps a tree view of a debugger's flat, index
// addressed symbol enumeration.
//
// The backend presents variables as a flat list of records where children
// follow their parent. Expanding a record inserts its children right after
// it, so every later index moves. SymbolNode tracks its record by index and
// the group renumbers all nodes after each insertion.
//
// On top of the real nodes, dumpers add synthetic ones: ReferenceNode
// aliases a real node under another name (array elements, watches) and
// MapNode pairs a key and a value reference. Visitors walk the tree along
// the path actually taken, so a node reached through a reference reports
// the reference's path:
//
//	g, _ := symbolgroup.New(ctx, backend, dumpers)
//	_ = g.ExpandRunComplexDumpers(ctx, "local.v")
//	_ = g.Dump(ctx, os.Stdout, "local", symbolgroup.DefaultDumpParameters())
package symbolgroup
