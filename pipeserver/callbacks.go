package pipeserver

// Callbacks is the capability contract invoked at each connection lifecycle
// point. One implementation instance services every connection of a Server,
// so implementations that hold per-connection state must index it by
// Conn.Token.
//
// All hooks run on the server's single loop goroutine, never concurrently.
// Data slices passed to hooks alias the connection's read buffer and are
// only valid for the duration of the call; copy them to keep them.
type Callbacks interface {
	// OnConnected is invoked once when a client finishes connecting.
	//
	// Parameters:
	//   - c: The newly connected connection
	OnConnected(c *Conn)

	// OnDataReceived is invoked when a complete message (or the final
	// chunk of an oversized one) arrives.
	//
	// Parameters:
	//   - c: The connection the data arrived on
	//   - data: The received bytes; valid only during the call
	OnDataReceived(c *Conn, data []byte)

	// OnPartialDataReceived is invoked when an incoming message exceeds
	// the connection's read buffer and this chunk is not the last one.
	// Implementations should accumulate the chunk and keep listening.
	//
	// Parameters:
	//   - c: The connection the data arrived on
	//   - data: The received chunk; valid only during the call
	OnPartialDataReceived(c *Conn, data []byte)

	// OnDataSent is invoked when a SendData write has completed.
	//
	// Parameters:
	//   - c: The connection the data was sent on
	OnDataSent(c *Conn)
}

// BaseCallbacks provides the default behavior for each hook. Embed it to
// override only the hooks a policy cares about:
//
//	type myCallbacks struct {
//		pipeserver.BaseCallbacks
//	}
//
// Defaults: OnConnected starts listening; OnDataReceived does nothing (the
// application decides whether to respond); OnPartialDataReceived and
// OnDataSent keep listening.
type BaseCallbacks struct{}

// OnConnected implements Callbacks by starting to listen for data.
func (BaseCallbacks) OnConnected(c *Conn) {
	c.ListenForData()
}

// OnDataReceived implements Callbacks and intentionally does nothing.
func (BaseCallbacks) OnDataReceived(c *Conn, data []byte) {
}

// OnPartialDataReceived implements Callbacks by listening for the rest of
// the message. Accumulating the chunk is the embedder's responsibility.
func (BaseCallbacks) OnPartialDataReceived(c *Conn, data []byte) {
	c.ListenForData()
}

// OnDataSent implements Callbacks by listening for the next message.
func (BaseCallbacks) OnDataSent(c *Conn) {
	c.ListenForData()
}
