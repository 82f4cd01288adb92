package dap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dshills/symtree/internal/logging"
)

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("dap client closed")

// ResponseError is an unsuccessful response.
type ResponseError struct {
	Command string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return e.Command + " failed"
	}
	return e.Command + " failed: " + e.Message
}

// Client sends requests to a debug adapter and dispatches its events.
//
// Event handlers run on the receive goroutine; a handler must not wait for
// the response of a request it sends.
type Client struct {
	transport Transport
	log       *logging.Logger

	seq     atomic.Int64
	mu      sync.Mutex
	pending map[int]chan *Response
	err     error

	handlerMu sync.RWMutex
	handlers  map[string][]func(json.RawMessage)

	done      chan struct{}
	closeOnce sync.Once
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient starts receiving on transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		log:       logging.Nop(),
		pending:   make(map[int]chan *Response),
		handlers:  make(map[string][]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("dap")
	go c.receiveLoop()
	return c
}

// Close stops the client and closes the transport. Pending requests fail
// with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
		c.fail(ErrClosed)
	})
	return err
}

// Err returns the error that stopped the receive loop, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// fail records err and releases every pending request.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
}

func (c *Client) receiveLoop() {
	for {
		content, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("receive: %v", err)
				c.fail(err)
			}
			return
		}
		c.dispatch(content)
	}
}

func (c *Client) dispatch(content []byte) {
	var base ProtocolMessage
	if err := json.Unmarshal(content, &base); err != nil {
		c.log.Debug("dropping malformed message: %v", err)
		return
	}

	switch base.Type {
	case "response":
		var resp Response
		if err := json.Unmarshal(content, &resp); err != nil {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestSeq]
		delete(c.pending, resp.RequestSeq)
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}

	case "event":
		var evt Event
		if err := json.Unmarshal(content, &evt); err != nil {
			return
		}
		c.handlerMu.RLock()
		handlers := slices.Concat(c.handlers[evt.Event], c.handlers[""])
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			c.safeCall(evt.Event, h, content)
		}
	}
}

// safeCall runs an event handler. A panicking handler does not stop the
// receive loop.
func (c *Client) safeCall(event string, h func(json.RawMessage), content []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("%s handler panicked: %v", event, r)
		}
	}()
	h(content)
}

// On registers a handler receiving the raw message of event. The empty
// event name matches every event.
func (c *Client) On(event string, handler func(msg json.RawMessage)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

func onEvent[T any](c *Client, event string, handler func(T)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = append(c.handlers[event], func(content json.RawMessage) {
		var evt Event
		if err := json.Unmarshal(content, &evt); err != nil {
			return
		}
		var body T
		if len(evt.Body) > 0 {
			if err := json.Unmarshal(evt.Body, &body); err != nil {
				c.log.Debug("%s event: %v", event, err)
				return
			}
		}
		handler(body)
	})
}

// OnInitialized registers a handler for the initialized event.
func (c *Client) OnInitialized(handler func()) {
	onEvent(c, "initialized", func(struct{}) { handler() })
}

// OnStopped registers a handler for the stopped event.
func (c *Client) OnStopped(handler func(StoppedEventBody)) { onEvent(c, "stopped", handler) }

// OnContinued registers a handler for the continued event.
func (c *Client) OnContinued(handler func(ContinuedEventBody)) { onEvent(c, "continued", handler) }

// OnExited registers a handler for the exited event.
func (c *Client) OnExited(handler func(ExitedEventBody)) { onEvent(c, "exited", handler) }

// OnTerminated registers a handler for the terminated event.
func (c *Client) OnTerminated(handler func()) {
	onEvent(c, "terminated", func(struct{}) { handler() })
}

// OnOutput registers a handler for the output event.
func (c *Client) OnOutput(handler func(OutputEventBody)) { onEvent(c, "output", handler) }

// request sends command and waits for its response.
func (c *Client) request(ctx context.Context, command string, args any) (*Response, error) {
	req := Request{
		ProtocolMessage: ProtocolMessage{Seq: int(c.seq.Add(1)), Type: "request"},
		Command:         command,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal arguments: %w", command, err)
		}
		req.Arguments = raw
	}
	content, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", command, err)
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	c.pending[req.Seq] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
	}
	if err := c.transport.Send(content); err != nil {
		forget()
		return nil, fmt.Errorf("%s: send: %w", command, err)
	}
	c.log.Debug("-> %s #%d", command, req.Seq)

	select {
	case <-ctx.Done():
		forget()
		return nil, fmt.Errorf("%s: %w", command, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", command, c.Err())
		}
		if !resp.Success {
			return nil, &ResponseError{Command: command, Message: resp.Message}
		}
		return resp, nil
	}
}

// call sends command and decodes the response body into T.
func call[T any](ctx context.Context, c *Client, command string, args any) (T, error) {
	var body T
	resp, err := c.request(ctx, command, args)
	if err != nil {
		return body, err
	}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return body, fmt.Errorf("%s: decode body: %w", command, err)
		}
	}
	return body, nil
}

// Initialize negotiates capabilities.
func (c *Client) Initialize(ctx context.Context, args InitializeArguments) (Capabilities, error) {
	return call[Capabilities](ctx, c, "initialize", args)
}

// Launch starts the debuggee. The arguments are adapter specific.
func (c *Client) Launch(ctx context.Context, args map[string]any) error {
	_, err := c.request(ctx, "launch", args)
	return err
}

// Attach attaches to a running debuggee. The arguments are adapter
// specific.
func (c *Client) Attach(ctx context.Context, args map[string]any) error {
	_, err := c.request(ctx, "attach", args)
	return err
}

// ConfigurationDone ends the configuration phase.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.request(ctx, "configurationDone", nil)
	return err
}

// Disconnect ends the debug session.
func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	_, err := c.request(ctx, "disconnect", args)
	return err
}

// Threads lists the debuggee threads.
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	body, err := call[struct {
		Threads []Thread `json:"threads"`
	}](ctx, c, "threads", nil)
	return body.Threads, err
}

// StackTrace returns the frames of a thread.
func (c *Client) StackTrace(ctx context.Context, args StackTraceArguments) ([]StackFrame, error) {
	body, err := call[struct {
		StackFrames []StackFrame `json:"stackFrames"`
	}](ctx, c, "stackTrace", args)
	return body.StackFrames, err
}

// Scopes returns the scopes of a frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]Scope, error) {
	body, err := call[struct {
		Scopes []Scope `json:"scopes"`
	}](ctx, c, "scopes", map[string]int{"frameId": frameID})
	return body.Scopes, err
}

// Variables returns the children of a variables reference.
func (c *Client) Variables(ctx context.Context, args VariablesArguments) ([]Variable, error) {
	body, err := call[struct {
		Variables []Variable `json:"variables"`
	}](ctx, c, "variables", args)
	return body.Variables, err
}

// Evaluate evaluates an expression in a frame.
func (c *Client) Evaluate(ctx context.Context, args EvaluateArguments) (EvaluateResponseBody, error) {
	return call[EvaluateResponseBody](ctx, c, "evaluate", args)
}

// ReadMemory reads count bytes at memoryReference+offset. Fewer bytes are
// returned when the adapter reports unreadable memory.
func (c *Client) ReadMemory(ctx context.Context, memoryReference string, offset, count int) ([]byte, error) {
	body, err := call[ReadMemoryResponseBody](ctx, c, "readMemory", ReadMemoryArguments{
		MemoryReference: memoryReference,
		Offset:          offset,
		Count:           count,
	})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, fmt.Errorf("readMemory: decode data: %w", err)
	}
	return data, nil
}
