// Package dap is a Debug Adapter Protocol client: framing, the message
// types the symbol tree needs, and a request/response client.
package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength bounds a single message (10MB).
const MaxContentLength = 10 * 1024 * 1024

// ErrMissingContentLength is returned for a header block without length.
var ErrMissingContentLength = errors.New("missing Content-Length header")

// Transport moves framed messages to and from a debug adapter.
type Transport interface {
	Send(content []byte) error
	Receive() ([]byte, error)
	Close() error
}

// streamTransport frames messages over a byte stream.
type streamTransport struct {
	r      *bufio.Reader
	w      io.Writer
	closer func() error

	mu sync.Mutex
}

// NewStreamTransport frames messages over rwc.
func NewStreamTransport(rwc io.ReadWriteCloser) Transport {
	return &streamTransport{r: bufio.NewReader(rwc), w: rwc, closer: rwc.Close}
}

// Dial connects to an adapter listening on address ("host:port").
func Dial(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewStreamTransport(conn), nil
}

// Spawn starts an adapter speaking DAP on its standard streams.
func Spawn(cmd *exec.Cmd) (Transport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return &streamTransport{
		r: bufio.NewReader(stdout),
		w: stdin,
		closer: func() error {
			stdin.Close()
			stdout.Close()
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			return cmd.Wait()
		},
	}, nil
}

func (t *streamTransport) Send(content []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return writeFrame(t.w, content)
}

func (t *streamTransport) Receive() ([]byte, error) {
	return readFrame(t.r)
}

func (t *streamTransport) Close() error {
	return t.closer()
}

// writeFrame writes the Content-Length header block and content.
func writeFrame(w io.Writer, content []byte) error {
	header := "Content-Length: " + strconv.Itoa(len(content)) + "\r\n\r\n"
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

// readFrame reads one message. Headers other than Content-Length are
// ignored.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q", line)
		}
		if !strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid Content-Length: %w", err)
		}
		if n < 0 || n > MaxContentLength {
			return nil, fmt.Errorf("Content-Length %d exceeds maximum %d", n, MaxContentLength)
		}
		length = n
	}
	if length < 0 {
		return nil, ErrMissingContentLength
	}

	content := make([]byte, length)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return content, nil
}
