// Package pipeclient implements the synchronous client side of the
// message-framed IPC transport. A Client connects to a named channel,
// sends whole messages with blocking writes, and receives responses by
// pushing chunks into a caller-supplied sink until a message is complete.
package pipeclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyberinferno/go-msgpipe/channel"
	"github.com/cyberinferno/go-msgpipe/logger"
)

// Sink receives the chunks of an incoming message. WaitForData pushes every
// chunk in order; concatenating them reproduces the message exactly.
type Sink interface {
	// Put receives one chunk. The slice is only valid during the call.
	//
	// Parameters:
	//   - data: The chunk bytes
	Put(data []byte)
}

// BufferSink is a Sink that concatenates all chunks into Data.
type BufferSink struct {
	Data []byte
}

// Put implements Sink.
func (b *BufferSink) Put(data []byte) {
	b.Data = append(b.Data, data...)
}

// Config holds configuration for a pipe client.
type Config struct {
	// ReadBufferSize is the client's receive buffer capacity; responses
	// larger than it arrive at the sink in multiple chunks. Defaults to
	// channel.DefaultBufferCapacity.
	ReadBufferSize int
	// Transport provides the named channel; defaults to the Unix domain
	// socket transport. Must match the server's transport.
	Transport channel.Transport
	// Logger receives structured client logs; defaults to a no-op logger.
	Logger logger.Logger
}

// DefaultConfig returns a Config with the default buffer capacity, the
// socket transport and no logging.
//
// Returns:
//   - A Config ready to pass to NewClient
func DefaultConfig() Config {
	return Config{
		ReadBufferSize: channel.DefaultBufferCapacity,
		Transport:      channel.NewSocketTransport(),
		Logger:         logger.NewNopLogger(),
	}
}

// Client is a blocking pipe client. It is intended for use by a single
// goroutine; independent clients in different goroutines or processes need
// no shared state.
type Client struct {
	transport channel.Transport
	logger    logger.Logger
	readBuf   []byte
	endpoint  channel.Endpoint
}

// NewClient creates a disconnected client. Zero-valued config fields are
// filled with defaults.
//
// Parameters:
//   - cfg: Client configuration
//
// Returns:
//   - A Client ready for Connect
func NewClient(cfg Config) *Client {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = channel.DefaultBufferCapacity
	}
	if cfg.Transport == nil {
		cfg.Transport = channel.NewSocketTransport()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}

	return &Client{
		transport: cfg.Transport,
		logger:    cfg.Logger,
		readBuf:   make([]byte, cfg.ReadBufferSize),
	}
}

// Connect attempts to open the named channel. If no server endpoint is
// available it waits up to timeout for one and retries. A pure timeout is a
// normal negative outcome reported as false, not an error.
//
// Parameters:
//   - name: The channel name; must match the server's name exactly
//   - timeout: How long to wait for a server endpoint
//
// Returns:
//   - true once connected; false if the timeout expired
//   - A *ChannelError for any failure other than a pure timeout
func (c *Client) Connect(name string, timeout time.Duration) (bool, error) {
	if c.endpoint != nil {
		return false, fmt.Errorf("pipeclient: already connected")
	}

	ep, err := c.transport.Dial(name, timeout)
	if errors.Is(err, channel.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.endpoint = ep
	c.logger.Debug("connected", logger.Field{Key: "name", Value: name})
	return true, nil
}

// IsConnected reports whether the client currently holds an endpoint.
//
// Returns:
//   - true if connected
func (c *Client) IsConnected() bool {
	return c.endpoint != nil
}

// SendData writes data as one logical message, blocking until the write
// completes.
//
// Parameters:
//   - data: The message payload
//
// Returns:
//   - A *ChannelError if the write failed, or an error when not connected
func (c *Client) SendData(data []byte) error {
	if c.endpoint == nil {
		return fmt.Errorf("pipeclient: not connected")
	}

	if err := c.endpoint.WriteMessage(data); err != nil {
		return channel.NewChannelError("write", err)
	}

	return nil
}

// WaitForData blocks until one complete message has been received, pushing
// each chunk to the sink as it arrives. Chunks before the last report
// overflow on the wire; the sink is responsible for concatenation.
//
// Parameters:
//   - sink: Receives the message chunks in order
//
// Returns:
//   - A *ChannelError if a read failed, or an error when not connected
func (c *Client) WaitForData(sink Sink) error {
	if c.endpoint == nil {
		return fmt.Errorf("pipeclient: not connected")
	}

	for {
		n, overflow, err := c.endpoint.ReadChunk(c.readBuf)
		if err != nil {
			return channel.NewChannelError("read", err)
		}

		sink.Put(c.readBuf[:n])
		if !overflow {
			return nil
		}
	}
}

// Disconnect releases the channel. It is idempotent; disconnecting a client
// that is not connected is a no-op.
//
// Returns:
//   - An error if releasing the endpoint failed
func (c *Client) Disconnect() error {
	if c.endpoint == nil {
		return nil
	}

	ep := c.endpoint
	c.endpoint = nil
	return ep.Close()
}
