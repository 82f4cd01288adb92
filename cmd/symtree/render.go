package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/symtree/internal/config"
	"github.com/dshills/symtree/internal/logging"
	"github.com/dshills/symtree/internal/symbolgroup"
)

// renderOptions are the flags shared by dump and attach.
type renderOptions struct {
	iname         string
	expand        []string
	watches       []string
	casts         []string
	uninitialized []string
	debug         bool
	verbosity     int
	human         bool
	noComplex     bool
	typeFormats   string
	formats       string
}

func (o *renderOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.iname, "iname", "", "render only the subtree at this iname (e.g. local.v)")
	f.StringSliceVarP(&o.expand, "expand", "e", nil, "inames to expand, in order (list parents before children)")
	f.StringArrayVarP(&o.watches, "watch-expr", "w", nil, "add a watch expression (repeatable)")
	f.StringArrayVar(&o.casts, "cast", nil, "type cast as iname=type (repeatable)")
	f.StringSliceVar(&o.uninitialized, "uninitialized", nil, "inames to report as uninitialized")
	f.BoolVar(&o.debug, "debug", false, "write the diagnostic listing instead of protocol records")
	f.IntVar(&o.verbosity, "verbosity", 0, "detail of the diagnostic listing (0-2)")
	f.BoolVar(&o.human, "human", false, "write values unencoded")
	f.BoolVar(&o.noComplex, "no-complex", false, "disable container dumpers")
	f.StringVar(&o.typeFormats, "typeformats", "", "per-type formats as type:code,...")
	f.StringVar(&o.formats, "formats", "", "per-iname formats as iname:code,...")
}

// params layers the flags over the configured dump parameters.
func (o *renderOptions) params(cfg *config.Config) symbolgroup.DumpParameters {
	p := cfg.DumpParameters()
	if o.human {
		p.Flags |= symbolgroup.DumpHumanReadable
	}
	if o.noComplex {
		p.Flags &^= symbolgroup.DumpComplexDumpers
	}
	if o.typeFormats != "" {
		p.TypeFormats = config.MergeFormats(p.TypeFormats, o.typeFormats)
	}
	if o.formats != "" {
		p.IndividualFormats = config.MergeFormats(p.IndividualFormats, o.formats)
	}
	return p
}

// render applies casts, watches and expansions to g and writes it.
// Casts come first since expanded nodes cannot be cast.
func (o *renderOptions) render(ctx context.Context, g *symbolgroup.SymbolGroup, w io.Writer, p symbolgroup.DumpParameters, log *logging.Logger) error {
	for _, c := range o.casts {
		iname, typeName, ok := strings.Cut(c, "=")
		if !ok || iname == "" || typeName == "" {
			return fmt.Errorf("--cast %q: want iname=type", c)
		}
		if err := g.TypeCast(ctx, iname, typeName); err != nil {
			return err
		}
	}
	for _, expr := range o.watches {
		if _, err := g.AddWatch(ctx, expr); err != nil {
			log.Warn("watch %q: %v", expr, err)
		}
	}
	if err := g.ExpandAll(ctx, o.expand, p); err != nil {
		return err
	}
	g.MarkUninitialized(o.uninitialized)

	if o.debug {
		// The listing shows cached values; a dump fills the caches.
		if err := g.DumpAll(ctx, io.Discard, p); err != nil {
			return err
		}
		inames := []string{symbolgroup.LocalsIName, symbolgroup.WatchIName}
		if o.iname != "" {
			inames = []string{o.iname}
		}
		for _, iname := range inames {
			if err := g.DebugDump(w, iname, o.verbosity); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if o.iname != "" {
		err = g.Dump(ctx, w, o.iname, p)
	} else {
		err = g.DumpAll(ctx, w, p)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}
