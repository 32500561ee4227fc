package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrNegotiationTimeout is returned when the remote model does not confirm
	// the session configuration within the negotiation window. The session moves
	// to StateFailed and the error is retryable from the client's point of view.
	ErrNegotiationTimeout = errors.New("negotiation timeout")

	// ErrCapacityExceeded is returned by admission control when the registry is
	// at its concurrent-session ceiling. No session record is created.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrSessionClosed is returned by blocking operations that were cancelled
	// because the session closed underneath them.
	ErrSessionClosed = errors.New("session closed")
)

// CodecError indicates a malformed or truncated audio payload. The offending
// frame is dropped and the session continues.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s", e.Reason)
}

// TransportError indicates a broken connection to either the client or the
// remote model. It terminates the session.
type TransportError struct {
	Direction string // "inbound" or "outbound"
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Direction, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolViolation indicates an event arriving in a state that cannot accept
// it. It is logged and ignored; the session stays healthy.
type ProtocolViolation struct {
	State SessionState
	Event string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s not accepted in state %s", e.Event, e.State)
}
