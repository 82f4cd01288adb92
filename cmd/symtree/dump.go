package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/symtree/internal/config/watcher"
	"github.com/dshills/symtree/internal/dumper"
	"github.com/dshills/symtree/internal/symbolgroup"
	"github.com/dshills/symtree/internal/symbolgroup/memory"
)

func newDumpCmd(a *app) *cobra.Command {
	var (
		opts  renderOptions
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "dump SNAPSHOT",
		Short: "Render the symbol tree of a snapshot file",
		Example: `  symtree dump frame.yaml --human -e local.v
  symtree dump frame.yaml --debug --verbosity 2
  symtree -c symtree.toml dump frame.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return a.watchSnapshot(cmd.Context(), cmd.OutOrStdout(), args[0], &opts)
			}
			return a.dumpSnapshot(cmd.Context(), cmd.OutOrStdout(), args[0], &opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&watch, "watch", false, "render again whenever the snapshot or config file changes")
	return cmd
}

func (a *app) dumpSnapshot(ctx context.Context, w io.Writer, path string, opts *renderOptions) error {
	snap, err := memory.Load(path)
	if err != nil {
		return err
	}
	chain, err := dumper.Setup(ctx, a.cfg.Dumpers, a.cfg.Scripts, a.log)
	if err != nil {
		return err
	}
	defer chain.Close()

	g, err := symbolgroup.New(ctx, memory.New(snap), chain, symbolgroup.WithLogger(a.log))
	if err != nil {
		return err
	}
	g.MarkUninitialized(snap.Uninitialized)
	return opts.render(ctx, g, w, opts.params(a.cfg), a.log)
}

// watchSnapshot renders once, then on every change of the snapshot or the
// config file until ctx is done.
func (a *app) watchSnapshot(ctx context.Context, w io.Writer, path string, opts *renderOptions) error {
	if err := a.dumpSnapshot(ctx, w, path, opts); err != nil {
		a.log.Error("%v", err)
	}

	changes := make(chan watcher.Event, 1)
	notify := func(e watcher.Event) {
		select {
		case changes <- e:
		default:
		}
	}
	paths := []string{path}
	if a.configPath != "" {
		paths = append(paths, a.configPath)
	}
	for _, p := range paths {
		fw, err := watcher.New(p, watcher.WithLogger(a.log))
		if err != nil {
			return err
		}
		defer fw.Close()
		fw.OnChange(notify)
	}
	a.log.Info("watching %s", strings.Join(paths, ", "))

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-changes:
			if e.Op == watcher.OpRemove {
				a.log.Warn("%s removed", e.Path)
				continue
			}
			if a.configPath != "" {
				if err := a.reloadConfig(); err != nil {
					a.log.Error("%v", err)
					continue
				}
			}
			if err := a.dumpSnapshot(ctx, w, path, opts); err != nil {
				a.log.Error("%v", err)
			}
		}
	}
}
