package channel

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// memoryBacklog is how many connecting clients a memory listener queues
// before Dial blocks.
const memoryBacklog = 16

// memoryQueueDepth is how many undelivered messages one direction of a
// memory endpoint pair buffers.
const memoryQueueDepth = 16

// MemoryTransport implements Transport with in-process endpoints. Names form
// a namespace scoped to the transport instance. Framing semantics match the
// socket transport exactly, which makes it a faithful stand-in for tests and
// for wiring a server and client inside one process.
type MemoryTransport struct {
	listeners sync.Map // name -> *memoryListener
}

// NewMemoryTransport returns an empty in-process transport.
//
// Returns:
//   - A Transport whose channels live in process memory
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// Listen implements Transport.
func (t *MemoryTransport) Listen(name string) (Listener, error) {
	l := &memoryListener{
		name:      name,
		transport: t,
		pending:   make(chan Endpoint, memoryBacklog),
		quit:      make(chan struct{}),
	}

	if _, loaded := t.listeners.LoadOrStore(name, l); loaded {
		return nil, NewChannelError("create", fmt.Errorf("channel name %q is already in use", name))
	}

	return l, nil
}

// Dial implements Transport. It waits up to timeout for a listener with the
// given name to appear, polling the namespace, and returns ErrTimeout when
// none does.
func (t *MemoryTransport) Dial(name string, timeout time.Duration) (Endpoint, error) {
	deadline := time.Now().Add(timeout)

	for {
		if v, ok := t.listeners.Load(name); ok {
			l := v.(*memoryListener)
			client, server := newMemoryPair()
			select {
			case l.pending <- server:
				return client, nil
			case <-l.quit:
				// Listener shut down while we were connecting; fall
				// through and wait for a replacement.
			}
		}

		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		remaining := time.Until(deadline)
		if remaining > availabilityPollInterval {
			remaining = availabilityPollInterval
		}
		time.Sleep(remaining)
	}
}

// memoryListener queues endpoints handed over by Dial.
type memoryListener struct {
	name      string
	transport *MemoryTransport
	pending   chan Endpoint
	quit      chan struct{}
	closeOnce sync.Once
}

// Accept implements Listener.
func (l *memoryListener) Accept() (Endpoint, error) {
	select {
	case ep := <-l.pending:
		return ep, nil
	case <-l.quit:
		return nil, net.ErrClosed
	}
}

// Close implements Listener. Safe to call multiple times.
func (l *memoryListener) Close() error {
	l.closeOnce.Do(func() {
		l.transport.listeners.Delete(l.name)
		close(l.quit)
	})

	return nil
}

// memoryEndpoint is one end of an in-process duplex message channel.
type memoryEndpoint struct {
	in  chan []byte
	out chan []byte
	// local is closed when this end closes, remote when the peer closes.
	local  chan struct{}
	remote chan struct{}

	closeOnce sync.Once

	// pending holds the unread remainder of the message currently being
	// chunked out; inMessage distinguishes an empty message in progress
	// from no message at all.
	pending   []byte
	inMessage bool
}

// newMemoryPair creates two connected endpoints.
func newMemoryPair() (Endpoint, Endpoint) {
	ab := make(chan []byte, memoryQueueDepth)
	ba := make(chan []byte, memoryQueueDepth)
	closedA := make(chan struct{})
	closedB := make(chan struct{})

	a := &memoryEndpoint{in: ba, out: ab, local: closedA, remote: closedB}
	b := &memoryEndpoint{in: ab, out: ba, local: closedB, remote: closedA}
	return a, b
}

// WriteMessage implements Endpoint.
func (e *memoryEndpoint) WriteMessage(data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case e.out <- msg:
		return nil
	case <-e.local:
		return net.ErrClosed
	case <-e.remote:
		return io.ErrClosedPipe
	}
}

// ReadChunk implements Endpoint. Messages buffered before the peer closed
// are still delivered; only a drained queue reports io.EOF.
func (e *memoryEndpoint) ReadChunk(buf []byte) (int, bool, error) {
	if !e.inMessage {
		select {
		case msg := <-e.in:
			e.pending = msg
			e.inMessage = true
		default:
			select {
			case msg := <-e.in:
				e.pending = msg
				e.inMessage = true
			case <-e.local:
				return 0, false, net.ErrClosed
			case <-e.remote:
				return 0, false, io.EOF
			}
		}
	}

	n := copy(buf, e.pending)
	e.pending = e.pending[n:]
	overflow := len(e.pending) > 0
	if !overflow {
		e.pending = nil
		e.inMessage = false
	}

	return n, overflow, nil
}

// Close implements Endpoint. Safe to call multiple times.
func (e *memoryEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.local)
	})

	return nil
}
