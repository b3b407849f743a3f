// Package pipeserver implements the server side of the message-framed IPC
// transport: a single goroutine services any number of client connections by
// multiplexing connection and I/O completions over one shared queue. Each
// connection is a self-managing state machine with at most one outstanding
// operation; behavior at each lifecycle point is supplied through the
// Callbacks capability contract.
package pipeserver

import (
	"fmt"
	"sync/atomic"

	"github.com/cyberinferno/go-msgpipe/channel"
	"github.com/cyberinferno/go-msgpipe/correlation"
	"github.com/cyberinferno/go-msgpipe/logger"
)

// Config holds configuration for a pipe server.
type Config struct {
	// Name is the channel name clients connect to.
	Name string
	// ReadBufferSize is the per-connection read buffer capacity N. An
	// incoming message larger than N is surfaced as overflow chunks.
	// Defaults to channel.DefaultBufferCapacity.
	ReadBufferSize int
	// WriteBufferSize is the per-connection write buffer capacity M.
	// SendData payloads are silently truncated to M. Defaults to
	// channel.DefaultBufferCapacity.
	WriteBufferSize int
	// Transport provides the named channel; defaults to the Unix domain
	// socket transport.
	Transport channel.Transport
	// Logger receives structured server logs; defaults to a no-op logger.
	Logger logger.Logger
	// Ready, when non-nil, is closed by Run once the server is listening.
	// Useful for callers that must not race their first client against
	// server startup.
	Ready chan struct{}
}

// DefaultConfig returns a Config with default buffer capacities, the socket
// transport and no logging for the given channel name.
//
// Parameters:
//   - name: The channel name clients connect to
//
// Returns:
//   - A Config ready to pass to NewServer
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		ReadBufferSize:  channel.DefaultBufferCapacity,
		WriteBufferSize: channel.DefaultBufferCapacity,
		Transport:       channel.NewSocketTransport(),
		Logger:          logger.NewNopLogger(),
	}
}

// Server accepts client connections on a named channel and drives all of
// them from one goroutine. It owns the shared completion queue and keeps
// exactly one connection listening for the next client at all times; a
// connection that finishes its handshake is handed over to the connection
// table and manages itself from then on.
type Server struct {
	cfg       Config
	callbacks Callbacks
	logger    logger.Logger
	transport channel.Transport

	signal   *signal
	registry *correlation.Table[*Conn]
	tokens   *correlation.Generator

	listener channel.Listener
	running  atomic.Bool
}

// NewServer creates a pipe server for the given configuration and callback
// policy. Zero-valued config fields are filled with defaults.
//
// Parameters:
//   - cfg: Server configuration; Name must be set
//   - callbacks: The lifecycle policy shared by all connections
//
// Returns:
//   - The server, ready for Run
//   - An error if the name or callbacks are missing
func NewServer(cfg Config, callbacks Callbacks) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("pipeserver: a channel name is required")
	}
	if callbacks == nil {
		return nil, fmt.Errorf("pipeserver: callbacks are required")
	}

	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = channel.DefaultBufferCapacity
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = channel.DefaultBufferCapacity
	}
	if cfg.Transport == nil {
		cfg.Transport = channel.NewSocketTransport()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}

	return &Server{
		cfg:       cfg,
		callbacks: callbacks,
		logger:    cfg.Logger,
		transport: cfg.Transport,
		signal:    newSignal(),
		registry:  correlation.NewTable[*Conn](),
		tokens:    correlation.NewGenerator(),
	}, nil
}

// newConn creates a connection in listening state.
func (s *Server) newConn() *Conn {
	return &Conn{
		token:     s.tokens.Next(),
		server:    s,
		callbacks: s.callbacks,
		logger:    s.logger,
		readBuf:   make([]byte, s.cfg.ReadBufferSize),
		writeBuf:  make([]byte, s.cfg.WriteBufferSize),
	}
}

// Run opens the named channel and serves until Stop is called or a fatal
// error occurs. It blocks on the calling goroutine; that goroutine is the
// only one that executes callbacks and completion handling, so no locking is
// needed between connections.
//
// The loop maintains the invariant that exactly one connection is listening
// for the next client: whenever a handshake completes, the finished
// connection is detached to manage itself and a fresh listening connection
// takes its place before the loop waits again.
//
// Returns:
//   - nil after Stop
//   - A *ChannelError for a failed channel create, a failed accept, a
//     failed disconnect, or an unexpected completion
func (s *Server) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeserver: server %s already running", s.cfg.Name)
	}
	defer s.running.Store(false)

	// A fresh queue per run: a previous run's shutdown released its posters
	// by closing the old queue.
	s.signal = newSignal()
	defer s.signal.shutdown()

	lis, err := s.transport.Listen(s.cfg.Name)
	if err != nil {
		return err
	}
	s.listener = lis
	defer lis.Close()

	listening := s.newConn()
	listening.beginListening(lis)

	if s.cfg.Ready != nil {
		close(s.cfg.Ready)
	}
	s.logger.Info("pipe server listening", logger.Field{Key: "name", Value: s.cfg.Name})

	for {
		done := s.signal.wait()
		switch done.kind {
		case acceptCompleted:
			if done.err != nil {
				if !s.running.Load() {
					return nil
				}
				return channel.NewChannelError("connect", done.err)
			}

			if err := listening.completeConnection(done); err != nil {
				return err
			}
			// The connected instance is now on its own; replace the
			// listening slot before waiting again.
			listening = s.newConn()
			listening.beginListening(lis)

		case readCompleted:
			conn, ok := s.registry.Load(done.token)
			if !ok {
				// Completion for an instance that already disconnected.
				continue
			}
			if err := conn.onReadCompleted(done); err != nil {
				return err
			}

		case writeCompleted:
			conn, ok := s.registry.Load(done.token)
			if !ok {
				continue
			}
			if err := conn.onWriteCompleted(done); err != nil {
				return err
			}

		default:
			return channel.NewChannelError("wait", fmt.Errorf("unexpected completion kind %d", done.kind))
		}
	}
}

// Stop shuts the server down: it closes the listener, which unblocks Run,
// and drops every live connection. Safe to call when the server is not
// running.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.registry.Range(func(token correlation.Token, conn *Conn) bool {
		s.registry.Delete(token)
		if conn.endpoint != nil {
			_ = conn.endpoint.Close()
		}
		return true
	})

	s.logger.Info("pipe server stopped", logger.Field{Key: "name", Value: s.cfg.Name})
}

// ActiveConnections returns the number of connected clients. Listening
// connections that have not completed their handshake are not counted.
//
// Returns:
//   - The count of live connections
func (s *Server) ActiveConnections() int {
	return s.registry.Len()
}
