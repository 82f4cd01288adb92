package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/symtree/internal/dumper"
	"github.com/dshills/symtree/internal/integration/debug"
	"github.com/dshills/symtree/internal/integration/debug/dap"
	"github.com/dshills/symtree/internal/symbolgroup"
)

type attachOptions struct {
	render     renderOptions
	frame      int
	waitStop   time.Duration
	terminate  bool
	listFrames bool
}

func newAttachCmd(a *app) *cobra.Command {
	var opts attachOptions
	cmd := &cobra.Command{
		Use:   "attach [ADDRESS]",
		Short: "Render the symbol tree of a frame of a live debuggee",
		Long: `attach connects to a debug adapter at ADDRESS (host:port), or to the
adapter configured in the [adapter] section, waits for the debuggee to
stop and renders the selected frame.`,
		Example: `  symtree attach 127.0.0.1:4711 --human
  symtree attach 127.0.0.1:4711 --frames
  symtree attach 127.0.0.1:4711 --frame 1001 -e local.cfg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := a.cfg.Adapter.Address
			if len(args) == 1 {
				address = args[0]
			}
			return a.attach(cmd.Context(), cmd.OutOrStdout(), address, &opts)
		},
	}
	opts.render.register(cmd)
	f := cmd.Flags()
	f.IntVar(&opts.frame, "frame", 0, "frame id to render (default: top frame)")
	f.DurationVar(&opts.waitStop, "wait-stop", 10*time.Second, "how long to wait for the debuggee to stop")
	f.BoolVar(&opts.terminate, "terminate", false, "terminate the debuggee when done")
	f.BoolVar(&opts.listFrames, "frames", false, "list the stack frames instead of rendering")
	return cmd
}

// connect dials address, retrying while the adapter starts, or spawns
// the configured adapter command.
func (a *app) connect(ctx context.Context, address string) (dap.Transport, error) {
	if address != "" {
		return dap.DialRetry(ctx, address, dap.DefaultRetryConfig())
	}
	if argv := a.cfg.Adapter.Command; len(argv) > 0 {
		return dap.Spawn(exec.Command(argv[0], argv[1:]...))
	}
	return nil, errors.New("no adapter address given and no adapter configured")
}

func (a *app) attach(ctx context.Context, w io.Writer, address string, opts *attachOptions) error {
	transport, err := a.connect(ctx, address)
	if err != nil {
		return err
	}
	chain, err := dumper.Setup(ctx, a.cfg.Dumpers, a.cfg.Scripts, a.log)
	if err != nil {
		transport.Close()
		return err
	}
	defer chain.Close()

	client := dap.NewClient(transport, dap.WithLogger(a.log))
	session := debug.NewSession(client, chain,
		debug.WithSessionLogger(a.log),
		debug.WithStateHandler(func(s debug.State) { a.log.Debug("debuggee %s", s) }))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := session.Stop(stopCtx, opts.terminate); serr != nil && !errors.Is(serr, dap.ErrClosed) {
			a.log.Warn("stop: %v", serr)
		}
	}()

	if err := session.Start(ctx, debug.StartConfig{
		AdapterID: a.cfg.Adapter.ID,
		Request:   a.cfg.Adapter.Request,
		Arguments: a.cfg.Adapter.Arguments,
	}); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.waitStop)
	defer cancel()
	if err := session.WaitStopped(waitCtx); err != nil {
		return err
	}

	frames, err := session.Frames(ctx)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("empty stack: %w", debug.ErrNoThread)
	}
	if opts.listFrames {
		for _, f := range frames {
			fmt.Fprintf(w, "%6d  %s:%d\n", f.ID, f.Name, f.Line)
		}
		return nil
	}

	frameID := opts.frame
	if frameID == 0 {
		frameID = frames[0].ID
	}
	p := opts.render.params(a.cfg)
	return session.WithFrame(ctx, frameID, func(g *symbolgroup.SymbolGroup) error {
		return opts.render.render(ctx, g, w, p, a.log)
	})
}
