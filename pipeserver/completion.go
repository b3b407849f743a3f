package pipeserver

import (
	"github.com/cyberinferno/go-msgpipe/channel"
	"github.com/cyberinferno/go-msgpipe/correlation"
)

// completionKind tags which asynchronous operation finished.
type completionKind int

const (
	acceptCompleted completionKind = iota
	readCompleted
	writeCompleted
)

// completion is one finished asynchronous operation, delivered through the
// shared signal queue to the server loop. The token correlates it back to
// the connection that issued the operation.
type completion struct {
	kind  completionKind
	token correlation.Token
	err   error

	// endpoint is set for acceptCompleted.
	endpoint channel.Endpoint
	// n and overflow are set for readCompleted.
	n        int
	overflow bool
}

// signal is the completion queue shared by every connection of one Server.
// All operations on all connections report here, which is what lets a single
// goroutine service the whole server.
type signal struct {
	ch chan completion
	// done is closed when the consuming loop exits so pending posters do
	// not leak.
	done chan struct{}
}

func newSignal() *signal {
	return &signal{
		ch:   make(chan completion, 64),
		done: make(chan struct{}),
	}
}

// post delivers a completion to the consumer. It blocks while the queue is
// full and discards the completion once the consumer is gone.
func (s *signal) post(c completion) {
	select {
	case s.ch <- c:
	case <-s.done:
	}
}

// wait blocks until the next completion arrives.
func (s *signal) wait() completion {
	return <-s.ch
}

// shutdown releases all pending and future posters.
func (s *signal) shutdown() {
	close(s.done)
}
