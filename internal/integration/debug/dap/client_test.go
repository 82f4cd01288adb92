package dap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientRequestResponse(t *testing.T) {
	mt := newMockTransport()
	mt.respond = func(req Request) (any, string) {
		switch req.Command {
		case "initialize":
			return Capabilities{SupportsReadMemoryRequest: true}, ""
		case "variables":
			var args VariablesArguments
			json.Unmarshal(req.Arguments, &args)
			if args.VariablesReference != 7 {
				return nil, "unknown reference"
			}
			return map[string]any{"variables": []Variable{
				{Name: "x", Value: "1", Type: "int"},
				{Name: "p", Value: "{...}", VariablesReference: 8},
			}}, ""
		}
		return nil, ""
	}
	c := NewClient(mt)
	defer c.Close()
	ctx := testContext(t)

	caps, err := c.Initialize(ctx, InitializeArguments{AdapterID: "go"})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !caps.SupportsReadMemoryRequest {
		t.Error("expected readMemory capability")
	}

	vars, err := c.Variables(ctx, VariablesArguments{VariablesReference: 7})
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if len(vars) != 2 || vars[1].VariablesReference != 8 {
		t.Errorf("variables = %+v", vars)
	}

	_, err = c.Variables(ctx, VariablesArguments{VariablesReference: 1})
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("err = %v, want ResponseError", err)
	}
	if respErr.Command != "variables" || respErr.Message != "unknown reference" {
		t.Errorf("ResponseError = %+v", respErr)
	}

	reqs := mt.requests()
	if len(reqs) != 3 {
		t.Fatalf("sent %d requests, want 3", len(reqs))
	}
	for i, req := range reqs {
		if req.Type != "request" || req.Seq != i+1 {
			t.Errorf("request %d = %+v", i, req.ProtocolMessage)
		}
	}
}

func TestClientCommandsWithoutBody(t *testing.T) {
	mt := newMockTransport()
	mt.respond = func(Request) (any, string) { return nil, "" }
	c := NewClient(mt)
	defer c.Close()
	ctx := testContext(t)

	if err := c.Attach(ctx, map[string]any{"mode": "remote"}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.ConfigurationDone(ctx); err != nil {
		t.Fatalf("ConfigurationDone: %v", err)
	}
	if err := c.Disconnect(ctx, DisconnectArguments{}); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	var commands []string
	for _, r := range mt.requests() {
		commands = append(commands, r.Command)
	}
	want := []string{"attach", "configurationDone", "disconnect"}
	if len(commands) != len(want) {
		t.Fatalf("commands = %v", commands)
	}
	for i := range want {
		if commands[i] != want[i] {
			t.Errorf("command %d = %s, want %s", i, commands[i], want[i])
		}
	}
}

func TestClientReadMemory(t *testing.T) {
	mt := newMockTransport()
	mt.respond = func(req Request) (any, string) {
		var args ReadMemoryArguments
		json.Unmarshal(req.Arguments, &args)
		if args.MemoryReference != "0x1000" || args.Offset != 4 || args.Count != 3 {
			return nil, "bad arguments"
		}
		return ReadMemoryResponseBody{Address: "0x1004", Data: base64.StdEncoding.EncodeToString([]byte("abc"))}, ""
	}
	c := NewClient(mt)
	defer c.Close()

	data, err := c.ReadMemory(testContext(t), "0x1000", 4, 3)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("data = %q", data)
	}
}

func TestClientContextCancel(t *testing.T) {
	mt := newMockTransport()
	c := NewClient(mt)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Threads(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClientCloseFailsPending(t *testing.T) {
	mt := newMockTransport()
	c := NewClient(mt)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Threads(context.Background())
		errc <- err
	}()
	for len(mt.requests()) == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request not released")
	}

	if _, err := c.Threads(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("request after close: %v", err)
	}
}

func TestClientSendError(t *testing.T) {
	mt := newMockTransport()
	mt.sendErr = errors.New("broken pipe")
	c := NewClient(mt)
	defer c.Close()

	if err := c.ConfigurationDone(testContext(t)); err == nil {
		t.Fatal("expected send error")
	}
}

func TestClientEvents(t *testing.T) {
	mt := newMockTransport()
	c := NewClient(mt)
	defer c.Close()

	stopped := make(chan StoppedEventBody, 1)
	continued := make(chan ContinuedEventBody, 1)
	initialized := make(chan struct{}, 1)
	terminated := make(chan struct{}, 1)
	output := make(chan string, 1)
	all := make(chan string, 8)

	c.OnStopped(func(b StoppedEventBody) { stopped <- b })
	c.OnContinued(func(b ContinuedEventBody) { continued <- b })
	c.OnInitialized(func() { initialized <- struct{}{} })
	c.OnTerminated(func() { terminated <- struct{}{} })
	c.OnOutput(func(b OutputEventBody) { output <- b.Output })
	c.On("", func(msg json.RawMessage) {
		var evt Event
		json.Unmarshal(msg, &evt)
		all <- evt.Event
	})

	mt.event("initialized", nil)
	mt.event("stopped", StoppedEventBody{Reason: "breakpoint", ThreadID: 3})
	mt.event("continued", ContinuedEventBody{ThreadID: 3})
	mt.event("output", OutputEventBody{Output: "hello\n"})
	mt.event("terminated", nil)

	wait := func(name string, ch <-chan struct{}) {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("no %s event", name)
		}
	}
	wait("initialized", initialized)
	select {
	case b := <-stopped:
		if b.Reason != "breakpoint" || b.ThreadID != 3 {
			t.Errorf("stopped = %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("no stopped event")
	}
	select {
	case b := <-continued:
		if b.ThreadID != 3 {
			t.Errorf("continued = %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("no continued event")
	}
	select {
	case s := <-output:
		if s != "hello\n" {
			t.Errorf("output = %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no output event")
	}
	wait("terminated", terminated)

	for _, want := range []string{"initialized", "stopped", "continued", "output", "terminated"} {
		select {
		case got := <-all:
			if got != want {
				t.Errorf("catch-all got %s, want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("catch-all missed %s", want)
		}
	}
}

func TestClientReceiveErrorFailsRequests(t *testing.T) {
	mt := newMockTransport()
	c := NewClient(mt)
	defer c.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Threads(context.Background())
		errc <- err
	}()
	for len(mt.requests()) == 0 {
		time.Sleep(time.Millisecond)
	}
	mt.Close()

	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(time.Second):
		t.Fatal("pending request not released")
	}
	if c.Err() == nil {
		t.Error("Err() should report the receive failure")
	}
}

func TestClientHandlerPanicKeepsReceiving(t *testing.T) {
	mt := newMockTransport()
	c := NewClient(mt)
	defer c.Close()

	got := make(chan int, 2)
	c.OnStopped(func(b StoppedEventBody) {
		if b.ThreadID == 1 {
			panic("boom")
		}
		got <- b.ThreadID
	})

	mt.event("stopped", StoppedEventBody{ThreadID: 1})
	mt.event("stopped", StoppedEventBody{ThreadID: 2})

	select {
	case id := <-got:
		if id != 2 {
			t.Errorf("thread = %d, want 2", id)
		}
	case <-time.After(time.Second):
		t.Fatal("receive loop stopped after a handler panic")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}
