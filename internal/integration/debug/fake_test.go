package debug

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/dshills/symtree/internal/integration/debug/dap"
)

// fakeAdapter is an in-process debug adapter serving a fixed frame.
//
//	frame 1: locals (ref 100): i int 42, p *main.T -> {A 1, B 2}, s string
//	         registers (ref 900)
//	frame 2: locals (ref 200): j int 7
type fakeAdapter struct {
	mu       sync.Mutex
	recv     chan []byte
	closed   bool
	commands []string

	vars   map[int][]dap.Variable
	memory map[string][]byte
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		recv: make(chan []byte, 64),
		vars: map[int][]dap.Variable{
			100: {
				{Name: "i", Value: "42", Type: "int", EvaluateName: "i"},
				{Name: "p", Value: "*{A: 1, B: 2}", Type: "*main.T", EvaluateName: "p", VariablesReference: 101, MemoryReference: "0xc000010000"},
				{Name: "s", Value: `"hello"`, Type: "string", EvaluateName: "s",
					PresentationHint: &dap.VariablePresentationHint{Attributes: []string{"readOnly"}}},
				{Name: "gone", Value: "<error: optimized out>", Type: "int"},
			},
			101: {
				{Name: "A", Value: "1", Type: "int", EvaluateName: "p.A"},
				{Name: "B", Value: "2", Type: "int", EvaluateName: "p.B"},
			},
			102: {
				{Name: "[0]", Value: "9", Type: "int"},
				{Name: "[1]", Value: "8", Type: "int"},
			},
			200: {
				{Name: "j", Value: "7", Type: "int"},
			},
			900: {
				{Name: "rip", Value: "0x401000", Type: "uint64"},
			},
		},
		memory: map[string][]byte{"0x1000": []byte("hello")},
	}
}

func (a *fakeAdapter) Send(content []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return io.ErrClosedPipe
	}
	var req dap.Request
	if err := json.Unmarshal(content, &req); err != nil {
		return err
	}
	a.commands = append(a.commands, req.Command)

	body, failure := a.handle(req)
	a.push(dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      req.Seq,
		Success:         failure == "",
		Command:         req.Command,
		Message:         failure,
		Body:            mustJSON(body),
	})
	if req.Command == "initialize" {
		a.push(dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "initialized"})
	}
	return nil
}

func (a *fakeAdapter) handle(req dap.Request) (any, string) {
	switch req.Command {
	case "initialize":
		return dap.Capabilities{SupportsConfigurationDoneRequest: true, SupportsReadMemoryRequest: true}, ""
	case "attach", "launch", "configurationDone", "disconnect":
		return nil, ""
	case "threads":
		return map[string]any{"threads": []dap.Thread{{ID: 1, Name: "main"}}}, ""
	case "stackTrace":
		return map[string]any{"stackFrames": []dap.StackFrame{{ID: 1, Name: "main.main"}, {ID: 2, Name: "runtime.main"}}}, ""
	case "scopes":
		var args struct {
			FrameID int `json:"frameId"`
		}
		json.Unmarshal(req.Arguments, &args)
		switch args.FrameID {
		case 1:
			return map[string]any{"scopes": []dap.Scope{
				{Name: "Locals", PresentationHint: "locals", VariablesReference: 100},
				{Name: "Registers", PresentationHint: "registers", VariablesReference: 900},
			}}, ""
		case 2:
			return map[string]any{"scopes": []dap.Scope{{Name: "Locals", VariablesReference: 200}}}, ""
		}
		return nil, "unknown frame"
	case "variables":
		var args dap.VariablesArguments
		json.Unmarshal(req.Arguments, &args)
		vars, ok := a.vars[args.VariablesReference]
		if !ok {
			return nil, "unknown reference"
		}
		return map[string]any{"variables": vars}, ""
	case "evaluate":
		var args dap.EvaluateArguments
		json.Unmarshal(req.Arguments, &args)
		switch args.Expression {
		case "xs":
			return dap.EvaluateResponseBody{Result: "[]int len: 2", Type: "[]int", VariablesReference: 102, IndexedVariables: 2}, ""
		case "(uint8)(i)":
			return dap.EvaluateResponseBody{Result: "42", Type: "uint8"}, ""
		case "(main.U)(p)":
			return dap.EvaluateResponseBody{Result: "{...}", Type: "main.U", VariablesReference: 101}, ""
		}
		return nil, "could not find symbol " + args.Expression
	case "readMemory":
		var args dap.ReadMemoryArguments
		json.Unmarshal(req.Arguments, &args)
		data, ok := a.memory[args.MemoryReference]
		if !ok {
			return nil, "unreadable"
		}
		if args.Count < len(data) {
			data = data[:args.Count]
		}
		return dap.ReadMemoryResponseBody{Address: args.MemoryReference, Data: base64.StdEncoding.EncodeToString(data)}, ""
	}
	return nil, "unsupported " + req.Command
}

// event pushes an adapter event.
func (a *fakeAdapter) event(name string, body any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.push(dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: name, Body: mustJSON(body)})
}

func (a *fakeAdapter) push(msg any) {
	if !a.closed {
		a.recv <- mustJSON(msg)
	}
}

func (a *fakeAdapter) Receive() ([]byte, error) {
	content, ok := <-a.recv
	if !ok {
		return nil, io.EOF
	}
	return content, nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.recv)
	}
	return nil
}

// count returns how often command was sent.
func (a *fakeAdapter) count(command string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.commands {
		if c == command {
			n++
		}
	}
	return n
}

func (a *fakeAdapter) sent() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.commands, ",")
}

func mustJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
