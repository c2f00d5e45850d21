package phoenix

import (
	"errors"
	"fmt"
)

// Common socket errors
var (
	// ErrSocketClosed indicates the socket has been closed and no further
	// operations are possible.
	ErrSocketClosed = errors.New("socket closed")

	// ErrChannelClosed indicates the channel was closed cleanly (local leave
	// or socket shutdown), as opposed to erroring out.
	ErrChannelClosed = errors.New("channel closed")

	// ErrJoinTimeout indicates the join handshake was not acknowledged in time.
	ErrJoinTimeout = errors.New("join acknowledgement timed out")

	// ErrLeaveTimeout indicates the leave handshake was not acknowledged in
	// time. The channel is still closed locally.
	ErrLeaveTimeout = errors.New("leave acknowledgement timed out")

	// ErrChannelErrored indicates the server errored the channel (phx_error).
	ErrChannelErrored = errors.New("channel errored by server")

	// ErrReconnectExhausted indicates the reconnect backoff ran out of
	// attempts without re-establishing a session.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// ConnectionError indicates the websocket handshake with the endpoint failed.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// JoinError indicates a join handshake failed for one topic. It is surfaced
// to the caller that initiated the join and is not fatal to the socket.
type JoinError struct {
	Topic  string
	Reason string // status or response reported by the server, if any
	Err    error
}

func (e *JoinError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("failed to join %q: %s", e.Topic, e.Reason)
	}
	return fmt.Sprintf("failed to join %q: %v", e.Topic, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// LeaveError indicates a leave handshake failed or timed out. The channel is
// closed locally regardless.
type LeaveError struct {
	Topic string
	Err   error
}

func (e *LeaveError) Error() string {
	return fmt.Sprintf("failed to leave %q: %v", e.Topic, e.Err)
}

func (e *LeaveError) Unwrap() error { return e.Err }

// RejoinError indicates a channel could not be re-established after a
// reconnect. It is delivered to receivers of the affected channel, which
// then transitions to the terminal errored state.
type RejoinError struct {
	Topic string
	Err   error
}

func (e *RejoinError) Error() string {
	return fmt.Sprintf("failed to rejoin %q after reconnect: %v", e.Topic, e.Err)
}

func (e *RejoinError) Unwrap() error { return e.Err }

// TransportError wraps a failure reported by the underlying session.
type TransportError struct {
	Op  string // operation that failed
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
