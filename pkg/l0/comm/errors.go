package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandRequired indicates an empty command.
	ErrCommandRequired = errors.New("command is required")
	// ErrCommandTooLong indicates the command would overflow the peer's receive buffer.
	ErrCommandTooLong = errors.New("command is too long")
	// ErrInvalidCommand indicates the command contains line terminators.
	ErrInvalidCommand = errors.New("command must be a single line")

	// ErrIllegalState indicates the client can't accept the operation in its current state.
	ErrIllegalState = errors.New("illegal state")
	// ErrNotReady indicates the handshake has not been received yet.
	ErrNotReady = fmt.Errorf("%w: not ready", ErrIllegalState)
	// ErrBusy indicates another command is still waiting for its reply.
	ErrBusy = fmt.Errorf("%w: command in flight", ErrIllegalState)
	// ErrClosed indicates the client is closed.
	ErrClosed = fmt.Errorf("%w: closed", ErrIllegalState)

	// ErrNoReply indicates no reply was received before the command was abandoned.
	ErrNoReply = errors.New("no reply")
	// ErrPeerReset indicates the peer sent the handshake again while a
	// command was pending, so the command will never be answered.
	ErrPeerReset = errors.New("peer reset")
	// ErrShortWrite indicates the transport accepted fewer bytes than requested.
	ErrShortWrite = errors.New("write bytes mismatch")
)

// CommandError is reported when the peer replies with "NG".
type CommandError struct {
	Message string
	Reply   *Reply
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Message == "" {
		return "command error"
	}
	return e.Message
}

// ProtocolError indicates a line from the peer can't be understood.
// The stream can't be resynchronized after this and the connection is closed.
type ProtocolError struct {
	Line string
	Err  error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v: %q", e.Err, e.Line)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
