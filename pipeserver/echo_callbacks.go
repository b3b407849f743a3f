package pipeserver

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/go-msgpipe/logger"
)

// accumulatorTTL bounds how long a partially reassembled message survives
// without progress. A connection that dies mid-message leaves its
// accumulator behind; the TTL reclaims it.
const accumulatorTTL = time.Minute

// EchoCallbacks is the baseline connection policy: it reassembles each
// incoming message from its overflow chunks and echoes the complete message
// back to the client. One instance services all connections of a server;
// per-connection reassembly accumulators are keyed by connection token and
// evicted after accumulatorTTL of inactivity.
type EchoCallbacks struct {
	BaseCallbacks

	logger  logger.Logger
	partial *cache.Cache
}

// NewEchoCallbacks creates the echo policy.
//
// Parameters:
//   - log: Logger for data events; nil for no logging
//
// Returns:
//   - A Callbacks implementation that echoes every message back
func NewEchoCallbacks(log logger.Logger) *EchoCallbacks {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &EchoCallbacks{
		logger:  log,
		partial: cache.New(accumulatorTTL, 2*accumulatorTTL),
	}
}

// accumulatorKey maps a connection to its reassembly accumulator.
func accumulatorKey(c *Conn) string {
	return strconv.FormatUint(uint64(c.Token()), 10)
}

// OnConnected implements Callbacks. Any stale accumulator under this token
// is discarded before the default listen kicks in.
func (e *EchoCallbacks) OnConnected(c *Conn) {
	e.partial.Delete(accumulatorKey(c))
	e.BaseCallbacks.OnConnected(c)
}

// OnPartialDataReceived implements Callbacks by appending the chunk to the
// connection's accumulator and listening for the rest of the message.
func (e *EchoCallbacks) OnPartialDataReceived(c *Conn, data []byte) {
	key := accumulatorKey(c)

	var acc []byte
	if v, ok := e.partial.Get(key); ok {
		acc = v.([]byte)
	}
	acc = append(acc, data...)
	e.partial.SetDefault(key, acc)

	e.BaseCallbacks.OnPartialDataReceived(c, data)
}

// OnDataReceived implements Callbacks. The final chunk is joined with any
// accumulated partial data, the accumulator is cleared, and the complete
// message is echoed back. The response is subject to the write buffer's
// truncation like any other SendData payload.
func (e *EchoCallbacks) OnDataReceived(c *Conn, data []byte) {
	key := accumulatorKey(c)

	whole := data
	if v, ok := e.partial.Get(key); ok {
		whole = append(v.([]byte), data...)
		e.partial.Delete(key)
	}

	e.logger.Debug("echoing message",
		logger.Field{Key: "token", Value: uint64(c.Token())},
		logger.Field{Key: "bytes", Value: len(whole)})

	c.SendData(whole)
}
