package pipeserver

import (
	"errors"
	"io"

	"github.com/cyberinferno/go-msgpipe/channel"
	"github.com/cyberinferno/go-msgpipe/correlation"
	"github.com/cyberinferno/go-msgpipe/logger"
)

// Conn is one server-side connection endpoint. It owns a fixed-capacity read
// buffer and write buffer, drives its own read/respond cycle through the
// callbacks, and has at most one asynchronous operation outstanding at any
// time.
//
// A Conn manages its own lifetime: it is created by the Server in listening
// state, registered in the server's connection table when the client
// finishes connecting, and removed from that table by Disconnect. After
// Disconnect the instance must not be used; completions still in flight for
// it are detected by the failed table lookup and dropped.
type Conn struct {
	token     correlation.Token
	server    *Server
	callbacks Callbacks
	logger    logger.Logger

	endpoint channel.Endpoint
	readBuf  []byte
	writeBuf []byte

	connectionPending bool
	connected         bool
}

// Token returns the connection's correlation token. Tokens are unique per
// server process and never reused, which makes them suitable keys for
// per-connection state held by Callbacks implementations.
//
// Returns:
//   - The connection's token
func (c *Conn) Token() correlation.Token {
	return c.token
}

// beginListening posts an asynchronous accept for the next client against
// the shared completion queue. A client that connected before the accept was
// posted simply completes the operation immediately, so the server loop
// treats both cases uniformly.
func (c *Conn) beginListening(lis channel.Listener) {
	c.connectionPending = true

	sig := c.server.signal
	token := c.token
	go func() {
		ep, err := lis.Accept()
		sig.post(completion{kind: acceptCompleted, token: token, endpoint: ep, err: err})
	}()
}

// completeConnection finalizes the handshake once the accept completion
// arrived. Calling it with no connection pending is a no-op. On success the
// connection is registered for completion routing and the connected hook
// fires, which by default starts listening for data.
func (c *Conn) completeConnection(done completion) error {
	if !c.connectionPending {
		return nil
	}
	c.connectionPending = false

	if done.err != nil {
		return channel.NewChannelError("connect", done.err)
	}

	c.endpoint = done.endpoint
	c.connected = true
	c.server.registry.Store(c.token, c)
	c.logger.Debug("client connected", logger.Field{Key: "token", Value: uint64(c.token)})

	c.callbacks.OnConnected(c)
	return nil
}

// ListenForData issues an asynchronous read into the connection's read
// buffer. It is a no-op while the connection is not connected. The result
// arrives as a read completion handled by the server loop.
func (c *Conn) ListenForData() {
	if !c.connected {
		return
	}

	ep := c.endpoint
	buf := c.readBuf
	sig := c.server.signal
	token := c.token
	go func() {
		n, overflow, err := ep.ReadChunk(buf)
		sig.post(completion{kind: readCompleted, token: token, n: n, overflow: overflow, err: err})
	}()
}

// SendData copies data into the connection's write buffer and issues an
// asynchronous write. It is a no-op while the connection is not connected.
//
// Payloads longer than the write buffer capacity are silently truncated to
// that capacity; the client receives exactly the truncated prefix. This is
// documented lossy behavior, not an error.
//
// Parameters:
//   - data: The message to send; the bytes are copied before the call
//     returns
func (c *Conn) SendData(data []byte) {
	if !c.connected {
		return
	}

	n := copy(c.writeBuf, data)

	ep := c.endpoint
	out := c.writeBuf[:n]
	sig := c.server.signal
	token := c.token
	go func() {
		err := ep.WriteMessage(out)
		sig.post(completion{kind: writeCompleted, token: token, err: err})
	}()
}

// Disconnect drops the connection and ends the instance's lifetime: it is
// removed from the server's connection table so no further completion can
// reach it. Callers must not use the instance after calling Disconnect.
//
// Returns:
//   - A *ChannelError if releasing the endpoint failed; such a failure is
//     fatal and propagates out of the server loop
func (c *Conn) Disconnect() error {
	c.server.registry.Delete(c.token)
	c.connected = false

	if c.endpoint != nil {
		if err := c.endpoint.Close(); err != nil {
			return channel.NewChannelError("disconnect", err)
		}
	}

	c.logger.Debug("client disconnected", logger.Field{Key: "token", Value: uint64(c.token)})
	return nil
}

// onReadCompleted handles a finished read. A failed read disconnects the
// connection; the rest of the server is unaffected. Otherwise the bytes are
// surfaced through the partial-data hook when the message overflowed the
// read buffer, or the data hook when the message is complete. A message of
// exactly the buffer size is complete, never overflow.
func (c *Conn) onReadCompleted(done completion) error {
	if done.err != nil {
		if !errors.Is(done.err, io.EOF) {
			c.logger.Warn("pipe read failed",
				logger.Field{Key: "token", Value: uint64(c.token)},
				logger.Field{Key: "error", Value: done.err})
		}
		return c.Disconnect()
	}

	data := c.readBuf[:done.n]
	if done.overflow {
		c.callbacks.OnPartialDataReceived(c, data)
	} else {
		c.callbacks.OnDataReceived(c, data)
	}

	return nil
}

// onWriteCompleted handles a finished write. A failed write disconnects the
// connection; otherwise the sent hook fires, which by default listens for
// the next message.
func (c *Conn) onWriteCompleted(done completion) error {
	if done.err != nil {
		c.logger.Warn("pipe write failed",
			logger.Field{Key: "token", Value: uint64(c.token)},
			logger.Field{Key: "error", Value: done.err})
		return c.Disconnect()
	}

	c.callbacks.OnDataSent(c)
	return nil
}
