// Package debug connects symbol groups to a live debuggee through the
// Debug Adapter Protocol.
package debug

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/symtree/internal/integration/debug/dap"
	"github.com/dshills/symtree/internal/logging"
	"github.com/dshills/symtree/internal/symbolgroup"
)

// State is the debuggee state as seen from adapter events.
type State int

const (
	// StateConnected is the state before Start.
	StateConnected State = iota
	// StateRunning means frame data is unavailable.
	StateRunning
	// StateStopped means frames can be inspected.
	StateStopped
	// StateTerminated is entered on exited or terminated events.
	StateTerminated
	// StateDisconnected is entered on Stop.
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// StartConfig describes how the session reaches the debuggee.
type StartConfig struct {
	// AdapterID is sent with initialize ("go", "lldb", ...).
	AdapterID string
	// Request is "attach" or "launch".
	Request string
	// Arguments are the adapter specific request arguments.
	Arguments map[string]any
}

// Session owns a DAP client and one symbol group per frame of the current
// stop. Groups are dropped whenever the debuggee resumes or stops again.
//
// Adapter events are handled on the client's receive goroutine and only
// touch the state fields; symbol groups are guarded by mu.
type Session struct {
	id     uuid.UUID
	client *dap.Client
	dumper symbolgroup.Dumper
	log    *logging.Logger

	initOnce    sync.Once
	initialized chan struct{}

	stateMu    sync.Mutex
	state      State
	threadID   int
	generation uint64
	stopped    chan struct{}
	onState    func(State)

	mu       sync.Mutex
	groups   map[int]*symbolgroup.SymbolGroup
	groupGen uint64
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// WithStateHandler is called after every state change.
func WithStateHandler(fn func(State)) SessionOption {
	return func(s *Session) {
		s.onState = fn
	}
}

// NewSession creates a session over client. Dumper may be nil.
func NewSession(client *dap.Client, dumper symbolgroup.Dumper, opts ...SessionOption) *Session {
	s := &Session{
		id:          uuid.New(),
		client:      client,
		dumper:      dumper,
		log:         logging.Nop(),
		initialized: make(chan struct{}),
		stopped:     make(chan struct{}),
		groups:      make(map[int]*symbolgroup.SymbolGroup),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("session").WithField("session", s.id.String()[:8])

	client.OnInitialized(func() {
		s.initOnce.Do(func() { close(s.initialized) })
	})
	client.OnStopped(func(b dap.StoppedEventBody) {
		s.log.Info("stopped: %s (thread %d)", b.Reason, b.ThreadID)
		s.setState(StateStopped, b.ThreadID)
	})
	client.OnContinued(func(b dap.ContinuedEventBody) {
		s.setState(StateRunning, b.ThreadID)
	})
	client.OnExited(func(b dap.ExitedEventBody) {
		s.log.Info("debuggee exited with code %d", b.ExitCode)
		s.setState(StateTerminated, 0)
	})
	client.OnTerminated(func() {
		s.setState(StateTerminated, 0)
	})
	client.OnOutput(func(b dap.OutputEventBody) {
		s.log.Debug("[%s] %s", b.Category, b.Output)
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// setState records a transition. Every transition invalidates the symbol
// groups of the previous stop.
func (s *Session) setState(state State, threadID int) {
	s.stateMu.Lock()
	s.generation++
	s.state = state
	if threadID != 0 || state != StateStopped {
		s.threadID = threadID
	}
	switch state {
	case StateStopped:
		select {
		case <-s.stopped:
		default:
			close(s.stopped)
		}
	default:
		select {
		case <-s.stopped:
			s.stopped = make(chan struct{})
		default:
		}
	}
	fn := s.onState
	s.stateMu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// Start initializes the adapter, sends the attach or launch request and
// completes the configuration phase.
func (s *Session) Start(ctx context.Context, cfg StartConfig) error {
	caps, err := s.client.Initialize(ctx, dap.InitializeArguments{
		ClientID:                 "symtree",
		ClientName:               "symtree",
		AdapterID:                cfg.AdapterID,
		LinesStartAt1:            true,
		ColumnsStartAt1:          true,
		PathFormat:               "path",
		SupportsVariableType:     true,
		SupportsMemoryReferences: true,
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	args := cfg.Arguments
	if args == nil {
		args = map[string]any{}
	}
	switch cfg.Request {
	case "launch":
		err = s.client.Launch(ctx, args)
	case "attach", "":
		err = s.client.Attach(ctx, args)
	default:
		return fmt.Errorf("unknown request %q", cfg.Request)
	}
	if err != nil {
		return err
	}

	select {
	case <-s.initialized:
	case <-ctx.Done():
		return fmt.Errorf("waiting for initialized: %w", ctx.Err())
	}
	if caps.SupportsConfigurationDoneRequest {
		if err := s.client.ConfigurationDone(ctx); err != nil {
			return err
		}
	}
	if s.State() == StateConnected {
		s.setState(StateRunning, 0)
	}
	s.log.Info("started (%s %s)", cfg.Request, cfg.AdapterID)
	return nil
}

// WaitStopped blocks until the debuggee stops.
func (s *Session) WaitStopped(ctx context.Context) error {
	s.stateMu.Lock()
	ch := s.stopped
	s.stateMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for stop: %w", ctx.Err())
	}
}

// Frames returns the stack of the stopped thread, or of the first thread
// when no stopped event named one.
func (s *Session) Frames(ctx context.Context) ([]dap.StackFrame, error) {
	s.stateMu.Lock()
	threadID := s.threadID
	s.stateMu.Unlock()

	if threadID == 0 {
		threads, err := s.client.Threads(ctx)
		if err != nil {
			return nil, err
		}
		if len(threads) == 0 {
			return nil, ErrNoThread
		}
		threadID = threads[0].ID
	}
	return s.client.StackTrace(ctx, dap.StackTraceArguments{ThreadID: threadID})
}

// WithFrame runs fn on the symbol group of frameID, creating it on first
// use after a stop. Calls are serialized; fn must not retain the group.
func (s *Session) WithFrame(ctx context.Context, frameID int, fn func(*symbolgroup.SymbolGroup) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateMu.Lock()
	state, gen := s.state, s.generation
	s.stateMu.Unlock()
	switch state {
	case StateDisconnected:
		return ErrSessionClosed
	case StateTerminated:
		return fmt.Errorf("frame %d: %w", frameID, ErrNotStopped)
	}

	if gen != s.groupGen {
		if len(s.groups) > 0 {
			s.log.Debug("dropping %d symbol groups", len(s.groups))
		}
		clear(s.groups)
		s.groupGen = gen
	}

	g, ok := s.groups[frameID]
	if !ok {
		backend, err := NewBackend(ctx, s.client, frameID)
		if err != nil {
			return err
		}
		g, err = symbolgroup.New(ctx, backend, s.dumper,
			symbolgroup.WithLogger(s.log.WithField("frame", frameID)))
		if err != nil {
			return err
		}
		s.groups[frameID] = g
		s.log.Debug("frame %d: symbol group %s with %d records", frameID, g.ID(), backend.Count())
	}
	return fn(g)
}

// Stop disconnects from the adapter and closes the client.
func (s *Session) Stop(ctx context.Context, terminate bool) error {
	var err error
	if s.State() != StateTerminated {
		err = s.client.Disconnect(ctx, dap.DisconnectArguments{TerminateDebuggee: terminate})
	}
	s.setState(StateDisconnected, 0)

	s.mu.Lock()
	clear(s.groups)
	s.mu.Unlock()

	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
