package debug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/symtree/internal/integration/debug/dap"
	"github.com/dshills/symtree/internal/symbolgroup"
)

func newTestSession(t *testing.T) (*Session, *fakeAdapter, <-chan State) {
	t.Helper()
	c, a := newTestClient(t)
	states := make(chan State, 16)
	s := NewSession(c, nil, WithStateHandler(func(st State) { states <- st }))
	require.NoError(t, s.Start(testContext(t), StartConfig{AdapterID: "go", Request: "attach"}))
	require.Equal(t, StateRunning, <-states)
	return s, a, states
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	select {
	case got := <-states:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("no transition to %s", want)
	}
}

func TestSessionStart(t *testing.T) {
	s, a, _ := newTestSession(t)
	assert.Equal(t, "initialize,attach,configurationDone", a.sent())
	assert.Equal(t, StateRunning, s.State())
	assert.NotEqual(t, s.ID().String(), "")
}

func TestSessionStartUnknownRequest(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewSession(c, nil)
	assert.Error(t, s.Start(testContext(t), StartConfig{Request: "restart"}))
}

func TestSessionFramesAfterStop(t *testing.T) {
	ctx := testContext(t)
	s, a, states := newTestSession(t)

	a.event("stopped", dap.StoppedEventBody{Reason: "breakpoint", ThreadID: 1})
	waitState(t, states, StateStopped)
	require.NoError(t, s.WaitStopped(ctx))

	frames, err := s.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "main.main", frames[0].Name)
	assert.Zero(t, a.count("threads"), "stopped thread is known")
}

func TestSessionFramesWithoutStopEvent(t *testing.T) {
	s, a, _ := newTestSession(t)
	frames, err := s.Frames(testContext(t))
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	assert.Equal(t, 1, a.count("threads"))
}

func TestSessionCachesGroupsPerStop(t *testing.T) {
	ctx := testContext(t)
	s, a, states := newTestSession(t)
	a.event("stopped", dap.StoppedEventBody{Reason: "step", ThreadID: 1})
	waitState(t, states, StateStopped)

	var first, second *symbolgroup.SymbolGroup
	require.NoError(t, s.WithFrame(ctx, 1, func(g *symbolgroup.SymbolGroup) error {
		first = g
		return g.Expand(ctx, "local.p")
	}))
	require.NoError(t, s.WithFrame(ctx, 1, func(g *symbolgroup.SymbolGroup) error {
		second = g
		return nil
	}))
	assert.Same(t, first, second)
	assert.Equal(t, 1, a.count("scopes"))

	require.NoError(t, s.WithFrame(ctx, 2, func(g *symbolgroup.SymbolGroup) error {
		_, err := g.Find("local.j")
		return err
	}))
	assert.Equal(t, 2, a.count("scopes"))

	a.event("continued", dap.ContinuedEventBody{ThreadID: 1})
	waitState(t, states, StateRunning)
	a.event("stopped", dap.StoppedEventBody{Reason: "step", ThreadID: 1})
	waitState(t, states, StateStopped)

	require.NoError(t, s.WithFrame(ctx, 1, func(g *symbolgroup.SymbolGroup) error {
		assert.NotSame(t, first, g)
		p, err := g.FindSymbol("local.p")
		require.NoError(t, err)
		assert.False(t, p.IsExpanded())
		return nil
	}))
	assert.Equal(t, 3, a.count("scopes"))
}

func TestSessionTerminated(t *testing.T) {
	ctx := testContext(t)
	s, a, states := newTestSession(t)
	a.event("terminated", nil)
	waitState(t, states, StateTerminated)

	err := s.WithFrame(ctx, 1, func(*symbolgroup.SymbolGroup) error { return nil })
	assert.ErrorIs(t, err, ErrNotStopped)

	require.NoError(t, s.Stop(ctx, false))
	assert.Zero(t, a.count("disconnect"))
}

func TestSessionStop(t *testing.T) {
	ctx := testContext(t)
	s, a, _ := newTestSession(t)

	require.NoError(t, s.Stop(ctx, true))
	assert.Equal(t, 1, a.count("disconnect"))
	assert.Equal(t, StateDisconnected, s.State())

	err := s.WithFrame(ctx, 1, func(*symbolgroup.SymbolGroup) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
