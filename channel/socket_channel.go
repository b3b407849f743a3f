package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// availabilityPollInterval is how often Dial re-checks for a listener while
// waiting for one to appear.
const availabilityPollInterval = 20 * time.Millisecond

// SocketTransport implements Transport over Unix domain sockets. A bare
// channel name is resolved to a socket file in the OS temporary directory;
// a name containing a path separator is used as the socket path directly.
type SocketTransport struct{}

// NewSocketTransport returns the default cross-process transport.
//
// Returns:
//   - A Transport backed by Unix domain sockets
func NewSocketTransport() *SocketTransport {
	return &SocketTransport{}
}

// socketPath resolves a channel name to a socket file path.
func socketPath(name string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}

	return filepath.Join(os.TempDir(), name+".sock")
}

// Listen implements Transport. A stale socket file left behind by a dead
// process is removed before binding.
func (t *SocketTransport) Listen(name string) (Listener, error) {
	path := socketPath(name)
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, NewChannelError("create", err)
	}

	return &socketListener{ln: ln}, nil
}

// Dial implements Transport. It attempts an immediate connect; if no
// listener is available it polls until the timeout expires, then retries one
// final time. A pure timeout yields ErrTimeout; any other failure yields a
// *ChannelError.
func (t *SocketTransport) Dial(name string, timeout time.Duration) (Endpoint, error) {
	path := socketPath(name)

	ep, err := dialSocket(path)
	if err == nil {
		return ep, nil
	}
	if !isNoListener(err) {
		return nil, NewChannelError("connect", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		if remaining > availabilityPollInterval {
			remaining = availabilityPollInterval
		}
		time.Sleep(remaining)

		ep, err = dialSocket(path)
		if err == nil {
			return ep, nil
		}
		if !isNoListener(err) {
			return nil, NewChannelError("connect", err)
		}
	}

	return nil, ErrTimeout
}

// dialSocket performs a single connection attempt.
func dialSocket(path string) (Endpoint, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}

	return NewEndpoint(conn), nil
}

// isNoListener reports whether err means "no listener available right now",
// the condition Dial is allowed to wait out.
func isNoListener(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

// socketListener adapts a net.Listener to the Listener interface.
type socketListener struct {
	ln net.Listener
}

// Accept implements Listener.
func (l *socketListener) Accept() (Endpoint, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	return NewEndpoint(conn), nil
}

// Close implements Listener.
func (l *socketListener) Close() error {
	return l.ln.Close()
}

// socketEndpoint frames logical messages over a byte-stream connection with
// a 4-byte big-endian length prefix, reproducing message-mode semantics:
// each ReadChunk returns at most one message's bytes and reports overflow
// while part of the current message remains unread.
type socketEndpoint struct {
	conn net.Conn
	// remaining is the number of unread payload bytes of the message
	// currently being chunked out, zero between messages.
	remaining int
	header    [4]byte
}

// NewEndpoint wraps a byte-stream connection in the message framing used by
// the socket transport. Exposed so tests can build endpoints over net.Pipe.
//
// Parameters:
//   - conn: The underlying byte-stream connection
//
// Returns:
//   - An Endpoint with message-mode framing
func NewEndpoint(conn net.Conn) Endpoint {
	return &socketEndpoint{conn: conn}
}

// WriteMessage implements Endpoint. The header and payload are written as a
// single Write so concurrent closes cannot tear a message in half.
func (e *socketEndpoint) WriteMessage(data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("channel: message of %d bytes exceeds the %d byte limit", len(data), maxMessageSize)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(data)))
	copy(frame[4:], data)

	_, err := e.conn.Write(frame)
	return err
}

// ReadChunk implements Endpoint.
func (e *socketEndpoint) ReadChunk(buf []byte) (int, bool, error) {
	if e.remaining == 0 {
		if _, err := io.ReadFull(e.conn, e.header[:]); err != nil {
			return 0, false, err
		}

		size := binary.BigEndian.Uint32(e.header[:])
		if size > maxMessageSize {
			return 0, false, fmt.Errorf("channel: message header announces %d bytes, stream is corrupt", size)
		}
		e.remaining = int(size)
	}

	n := e.remaining
	if n > len(buf) {
		n = len(buf)
	}
	if n > 0 {
		if _, err := io.ReadFull(e.conn, buf[:n]); err != nil {
			return 0, false, err
		}
	}
	e.remaining -= n

	return n, e.remaining > 0, nil
}

// Close implements Endpoint.
func (e *socketEndpoint) Close() error {
	return e.conn.Close()
}
