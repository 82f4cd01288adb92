package dap

import (
	"encoding/json"
	"io"
	"sync"
)

// mockTransport answers requests through a handler and lets tests push
// events.
type mockTransport struct {
	mu      sync.Mutex
	sent    []Request
	recv    chan []byte
	closed  bool
	sendErr error

	// respond returns the response body, or an error message for an
	// unsuccessful response. A nil respond leaves requests unanswered.
	respond func(req Request) (any, string)
}

func newMockTransport() *mockTransport {
	return &mockTransport{recv: make(chan []byte, 16)}
}

func (t *mockTransport) Send(content []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	if t.sendErr != nil {
		return t.sendErr
	}

	var req Request
	if err := json.Unmarshal(content, &req); err != nil {
		return err
	}
	t.sent = append(t.sent, req)
	if t.respond == nil {
		return nil
	}

	body, failure := t.respond(req)
	resp := Response{
		ProtocolMessage: ProtocolMessage{Seq: 1000 + req.Seq, Type: "response"},
		RequestSeq:      req.Seq,
		Success:         failure == "",
		Command:         req.Command,
		Message:         failure,
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		resp.Body = raw
	}
	raw, _ := json.Marshal(resp)
	t.recv <- raw
	return nil
}

func (t *mockTransport) Receive() ([]byte, error) {
	content, ok := <-t.recv
	if !ok {
		return nil, io.EOF
	}
	return content, nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.recv)
	}
	return nil
}

func (t *mockTransport) event(name string, body any) {
	evt := Event{ProtocolMessage: ProtocolMessage{Type: "event"}, Event: name}
	if body != nil {
		evt.Body, _ = json.Marshal(body)
	}
	raw, _ := json.Marshal(evt)
	t.recv <- raw
}

func (t *mockTransport) requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request(nil), t.sent...)
}
