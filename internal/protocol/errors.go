package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure while serving a request.
type ErrorCode int

const (
	// ErrProtocol is a malformed request: unknown verb or wrong arity.
	ErrProtocol ErrorCode = iota

	// ErrPayload is an ADD payload that is not valid base64.
	ErrPayload

	// ErrStorage is a storage backend failure (missing file, I/O error).
	ErrStorage

	// ErrTransport is a socket failure or an unrecoverable framing error.
	// The connection is closed without a response.
	ErrTransport
)

func (c ErrorCode) String() string {
	switch c {
	case ErrProtocol:
		return "protocol"
	case ErrPayload:
		return "payload"
	case ErrStorage:
		return "storage"
	case ErrTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified request failure. Message is what the peer sees in
// the ERROR response, Err is the underlying cause (if any) kept for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewProtocolError(format string, args ...any) *Error {
	return &Error{Code: ErrProtocol, Message: fmt.Sprintf(format, args...)}
}

func NewPayloadError(message string, err error) *Error {
	return &Error{Code: ErrPayload, Message: message, Err: err}
}

func NewStorageError(message string, err error) *Error {
	return &Error{Code: ErrStorage, Message: message, Err: err}
}

func NewTransportError(message string, err error) *Error {
	return &Error{Code: ErrTransport, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain.
// Unclassified errors are treated as transport failures.
func CodeOf(err error) ErrorCode {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ErrTransport
}

// IsRecoverable reports whether the connection can keep serving requests
// after err has been reported to the peer.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return CodeOf(err) != ErrTransport
}
