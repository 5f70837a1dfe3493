package resp

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned when the stream ends before a reply is complete.
var ErrConnectionClosed = errors.New("connection closed")

// ProtocolErrorKind classifies reply decoding errors.
type ProtocolErrorKind int

const (
	// ProtocolErrorMalformed indicates bad framing (bad length, missing CRLF, bad integer).
	ProtocolErrorMalformed ProtocolErrorKind = iota
	// ProtocolErrorUnknownPrefix indicates a reply starting with an unrecognized byte.
	ProtocolErrorUnknownPrefix
	// ProtocolErrorClosed indicates end of stream in the middle of a reply.
	ProtocolErrorClosed
	// ProtocolErrorTooLarge indicates a declared length beyond the decoder limits.
	ProtocolErrorTooLarge
)

// ProtocolError represents a malformed or truncated reply.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Msg  string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resp: %s: %v", e.Msg, e.Err)
	}
	return "resp: " + e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ServerError is an explicit error reply sent by the store.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "resp: server error: " + e.Message
}

// IsServerError returns true if err is or wraps a *ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

func closedError(msg string, err error) *ProtocolError {
	if err == nil {
		err = ErrConnectionClosed
	} else {
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return &ProtocolError{Kind: ProtocolErrorClosed, Msg: msg, Err: err}
}

func malformed(format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: ProtocolErrorMalformed, Msg: fmt.Sprintf(format, args...)}
}
