package pipeserver

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-msgpipe/channel"
	"github.com/cyberinferno/go-msgpipe/correlation"
	"github.com/cyberinferno/go-msgpipe/pipeclient"
)

// recordingCallbacks reassembles messages like a real policy would and
// records every hook invocation. Hooks run on the server loop goroutine
// while tests read from their own, hence the mutex.
type recordingCallbacks struct {
	BaseCallbacks

	mu        sync.Mutex
	connected []correlation.Token
	partials  [][]byte
	received  [][]byte
	sent      int
	acc       map[correlation.Token][]byte

	// respond, when set, maps each reassembled message to a response.
	respond func(whole []byte) []byte
}

func newRecordingCallbacks(respond func([]byte) []byte) *recordingCallbacks {
	return &recordingCallbacks{
		acc:     make(map[correlation.Token][]byte),
		respond: respond,
	}
}

func (r *recordingCallbacks) OnConnected(c *Conn) {
	r.mu.Lock()
	r.connected = append(r.connected, c.Token())
	r.mu.Unlock()

	r.BaseCallbacks.OnConnected(c)
}

func (r *recordingCallbacks) OnPartialDataReceived(c *Conn, data []byte) {
	r.mu.Lock()
	r.partials = append(r.partials, bytes.Clone(data))
	r.acc[c.Token()] = append(r.acc[c.Token()], data...)
	r.mu.Unlock()

	r.BaseCallbacks.OnPartialDataReceived(c, data)
}

func (r *recordingCallbacks) OnDataReceived(c *Conn, data []byte) {
	r.mu.Lock()
	whole := append(r.acc[c.Token()], data...)
	delete(r.acc, c.Token())
	r.received = append(r.received, bytes.Clone(whole))
	respond := r.respond
	r.mu.Unlock()

	if respond != nil {
		c.SendData(respond(whole))
	}
}

func (r *recordingCallbacks) OnDataSent(c *Conn) {
	r.mu.Lock()
	r.sent++
	r.mu.Unlock()

	r.BaseCallbacks.OnDataSent(c)
}

func (r *recordingCallbacks) snapshot() (connected int, partials, received [][]byte, sent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connected), append([][]byte(nil), r.partials...), append([][]byte(nil), r.received...), r.sent
}

// startServer runs a server over the given transport and blocks until it is
// listening.
func startServer(t *testing.T, transport channel.Transport, name string, readSize, writeSize int, cb Callbacks) *Server {
	t.Helper()

	ready := make(chan struct{})
	srv, err := NewServer(Config{
		Name:            name,
		ReadBufferSize:  readSize,
		WriteBufferSize: writeSize,
		Transport:       transport,
		Ready:           ready,
	}, cb)
	require.NoError(t, err)

	go func() { _ = srv.Run() }()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(srv.Stop)

	return srv
}

// exchange connects a client, sends payload and returns the reassembled
// response.
func exchange(t *testing.T, transport channel.Transport, name string, clientBufSize int, payload []byte) []byte {
	t.Helper()

	client := pipeclient.NewClient(pipeclient.Config{
		ReadBufferSize: clientBufSize,
		Transport:      transport,
	})
	ok, err := client.Connect(name, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer client.Disconnect()

	require.NoError(t, client.SendData(payload))

	var sink pipeclient.BufferSink
	require.NoError(t, client.WaitForData(&sink))
	return sink.Data
}

func echoResponder(whole []byte) []byte { return whole }

func TestServer_RoundTrip(t *testing.T) {
	transport := channel.NewMemoryTransport()
	cb := newRecordingCallbacks(echoResponder)
	startServer(t, transport, "roundtrip", 64, 64, cb)

	payload := []byte("hello ipc")
	response := exchange(t, transport, "roundtrip", 64, payload)
	assert.Equal(t, payload, response)

	connected, partials, received, sent := cb.snapshot()
	assert.Equal(t, 1, connected)
	assert.Empty(t, partials, "a message within the buffer must not take the overflow path")
	require.Len(t, received, 1)
	assert.Equal(t, payload, received[0])
	assert.Equal(t, 1, sent)
}

func TestServer_ExactBufferBoundary(t *testing.T) {
	transport := channel.NewMemoryTransport()
	cb := newRecordingCallbacks(echoResponder)
	startServer(t, transport, "boundary", 16, 64, cb)

	payload := []byte("0123456789abcdef") // exactly the read buffer size
	response := exchange(t, transport, "boundary", 64, payload)
	assert.Equal(t, payload, response)

	_, partials, received, _ := cb.snapshot()
	assert.Empty(t, partials, "a message of exactly the buffer size must not be overflow")
	require.Len(t, received, 1)
	assert.Equal(t, payload, received[0])
}

func TestServer_OverflowReassembly(t *testing.T) {
	transport := channel.NewMemoryTransport()
	cb := newRecordingCallbacks(echoResponder)
	startServer(t, transport, "reassembly", 8, 64, cb)

	payload := append(bytes.Repeat([]byte("01234567"), 4), 'Z') // 33 bytes, N=8
	response := exchange(t, transport, "reassembly", 64, payload)
	assert.Equal(t, payload, response)

	_, partials, received, _ := cb.snapshot()
	// ceil(33/8) = 5 reads, all but the last partial.
	assert.Len(t, partials, 4)
	for _, chunk := range partials {
		assert.Len(t, chunk, 8)
	}
	require.Len(t, received, 1)
	assert.Equal(t, payload, received[0])
}

func TestServer_ResponseTruncation(t *testing.T) {
	transport := channel.NewMemoryTransport()
	oversized := bytes.Repeat([]byte("x"), 50)
	cb := newRecordingCallbacks(func([]byte) []byte { return oversized })
	startServer(t, transport, "truncate", 64, 10, cb)

	response := exchange(t, transport, "truncate", 64, []byte("req"))
	assert.Equal(t, oversized[:10], response, "responses beyond the write capacity are truncated, never extended")
}

func TestServer_SequentialClients(t *testing.T) {
	transport := channel.NewMemoryTransport()
	cb := newRecordingCallbacks(echoResponder)
	startServer(t, transport, "sequential", 64, 64, cb)

	// Each connect only succeeds if a fresh listening connection replaced
	// the previous one.
	for i := 0; i < 5; i++ {
		payload := []byte(fmt.Sprintf("client %d", i))
		assert.Equal(t, payload, exchange(t, transport, "sequential", 64, payload))
	}

	connected, _, received, _ := cb.snapshot()
	assert.Equal(t, 5, connected)
	assert.Len(t, received, 5)
}

func TestServer_ConcurrentClients(t *testing.T) {
	transport := channel.NewMemoryTransport()
	cb := newRecordingCallbacks(echoResponder)
	startServer(t, transport, "concurrent", 16, 64, cb)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		payload := []byte(fmt.Sprintf("payload from client %d spanning chunks", i))
		g.Go(func() error {
			client := pipeclient.NewClient(pipeclient.Config{
				ReadBufferSize: 64,
				Transport:      transport,
			})
			ok, err := client.Connect("concurrent", time.Second)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("connect timed out")
			}
			defer client.Disconnect()

			if err := client.SendData(payload); err != nil {
				return err
			}
			var sink pipeclient.BufferSink
			if err := client.WaitForData(&sink); err != nil {
				return err
			}
			if !bytes.Equal(payload, sink.Data) {
				return fmt.Errorf("response %q does not match payload %q", sink.Data, payload)
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
}

func TestServer_StaleCompletionIsDropped(t *testing.T) {
	transport := channel.NewMemoryTransport()
	cb := newRecordingCallbacks(echoResponder)
	srv := startServer(t, transport, "stale", 64, 64, cb)

	client := pipeclient.NewClient(pipeclient.Config{Transport: transport})
	ok, err := client.Connect("stale", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool { return srv.ActiveConnections() == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, client.Disconnect())
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 0 },
		time.Second, 5*time.Millisecond)

	connected, _, receivedBefore, _ := cb.snapshot()
	require.Equal(t, 1, connected)
	tok := cb.connected[0]

	// Inject a completion for the disconnected instance. The registry
	// lookup must fail and no callback may run.
	srv.signal.post(completion{kind: readCompleted, token: tok, n: 3})
	time.Sleep(50 * time.Millisecond)

	_, _, receivedAfter, _ := cb.snapshot()
	assert.Equal(t, len(receivedBefore), len(receivedAfter),
		"no completion handler may run after Disconnect")
}

func TestServer_Stop(t *testing.T) {
	transport := channel.NewMemoryTransport()
	ready := make(chan struct{})
	srv, err := NewServer(Config{
		Name:      "stoppable",
		Transport: transport,
		Ready:     ready,
	}, newRecordingCallbacks(nil))
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run() }()
	<-ready

	srv.Stop()
	select {
	case err := <-runErr:
		assert.NoError(t, err, "a stop-initiated shutdown is not an error")
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestNewServer_Validation(t *testing.T) {
	t.Run("missing name is rejected", func(t *testing.T) {
		_, err := NewServer(Config{}, newRecordingCallbacks(nil))
		assert.Error(t, err)
	})

	t.Run("missing callbacks are rejected", func(t *testing.T) {
		_, err := NewServer(Config{Name: "x"}, nil)
		assert.Error(t, err)
	})

	t.Run("already running server rejects a second Run", func(t *testing.T) {
		transport := channel.NewMemoryTransport()
		ready := make(chan struct{})
		srv, err := NewServer(Config{
			Name:      "single-run",
			Transport: transport,
			Ready:     ready,
		}, newRecordingCallbacks(nil))
		require.NoError(t, err)

		go func() { _ = srv.Run() }()
		<-ready
		defer srv.Stop()

		assert.Error(t, srv.Run())
	})
}
