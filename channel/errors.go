package channel

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrTimeout is returned by Transport.Dial when no listener became available
// within the caller's timeout. It is a normal negative outcome for a
// connection attempt, not a channel failure.
var ErrTimeout = errors.New("channel: timed out waiting for an endpoint")

// ChannelError is the single error kind for OS-level channel failures. It
// carries the failed operation and the underlying error; when the underlying
// error exposes a numeric OS status code, the code is appended to the
// message.
type ChannelError struct {
	// Op is the channel operation that failed: "create", "connect",
	// "read", "write", "disconnect" or "wait".
	Op string
	// Err is the underlying error.
	Err error
}

// NewChannelError wraps err as a ChannelError for the given operation.
//
// Parameters:
//   - op: The channel operation that failed
//   - err: The underlying error
//
// Returns:
//   - A *ChannelError wrapping err
func NewChannelError(op string, err error) *ChannelError {
	return &ChannelError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	msg := fmt.Sprintf("channel %s failed: %v", e.Op, e.Err)

	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		msg += fmt.Sprintf(" (code %d)", int(errno))
	}

	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ChannelError) Unwrap() error {
	return e.Err
}
