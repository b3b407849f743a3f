// Package channel abstracts the named, duplex, message-framed IPC endpoint
// the pipe server and client are built on. One WriteMessage call corresponds
// to exactly one logical message on the wire; a reader with a buffer smaller
// than the message receives the message as a sequence of chunks where every
// chunk except the last reports overflow.
//
// Two transports are provided: a Unix domain socket transport for
// cross-process use and an in-memory transport for in-process wiring and
// tests. Both implement identical framing semantics.
package channel

import "time"

// DefaultBufferCapacity is the default data buffer capacity of pipe
// endpoints.
const DefaultBufferCapacity = 4096

// maxMessageSize bounds a single logical message. A header announcing more
// than this is treated as a corrupt stream.
const maxMessageSize = 1 << 30

// Endpoint is one end of an established duplex channel.
//
// Endpoints are not safe for concurrent use by multiple readers or multiple
// writers; the pipe server guarantees at most one outstanding operation per
// endpoint, and the client is synchronous. Close may be called concurrently
// with a blocked read or write to abort it.
type Endpoint interface {
	// ReadChunk reads the next chunk of the current incoming message into
	// buf. It blocks until data is available.
	//
	// Parameters:
	//   - buf: Destination buffer; its length is the chunk capacity
	//
	// Returns:
	//   - The number of bytes read into buf
	//   - true if the message did not fit and more chunks follow (overflow)
	//   - An error if the read failed; io.EOF when the peer is gone
	ReadChunk(buf []byte) (n int, overflow bool, err error)

	// WriteMessage writes data as one logical message.
	//
	// Parameters:
	//   - data: The message payload; may be empty
	//
	// Returns:
	//   - An error if the write failed
	WriteMessage(data []byte) error

	// Close releases the endpoint. The peer observes io.EOF once buffered
	// data is drained.
	//
	// Returns:
	//   - An error if closing failed
	Close() error
}

// Listener accepts incoming connections on a named channel.
type Listener interface {
	// Accept blocks until a client connects and returns the server-side
	// endpoint of the new connection.
	//
	// Returns:
	//   - The endpoint for the connected client
	//   - An error if accepting failed or the listener was closed
	Accept() (Endpoint, error)

	// Close stops listening. A blocked Accept returns an error.
	//
	// Returns:
	//   - An error if closing failed
	Close() error
}

// Transport creates listeners and dials endpoints by name. Server and client
// must agree on the name exactly.
type Transport interface {
	// Listen opens the named channel for incoming connections.
	//
	// Parameters:
	//   - name: The channel name shared between server and client
	//
	// Returns:
	//   - A Listener for the name
	//   - A *ChannelError if the channel could not be created
	Listen(name string) (Listener, error)

	// Dial connects to the named channel. If no listener is available it
	// waits up to timeout for one to appear and retries.
	//
	// Parameters:
	//   - name: The channel name shared between server and client
	//   - timeout: How long to wait for a listener before giving up
	//
	// Returns:
	//   - The client-side endpoint on success
	//   - ErrTimeout if no listener appeared within timeout; a
	//     *ChannelError for any other failure
	Dial(name string, timeout time.Duration) (Endpoint, error)
}
