package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric error code carried by the status byte of a
// synchronous response. Zero means success; everything else is a server-side
// failure of the requested operation.
type ErrorCode int

const (
	CodeSuccess           ErrorCode = 0
	CodeInvalidOperation  ErrorCode = 1
	CodeHostNotFound      ErrorCode = 2
	CodeConnectionRefused ErrorCode = 3
	CodeSendError         ErrorCode = 4
	CodeReceiveError      ErrorCode = 5
	CodeRecordExists      ErrorCode = 6
	CodeRecordNotFound    ErrorCode = 7
	CodeMiscellaneous     ErrorCode = 9999
)

var errorCodeNames = map[ErrorCode]string{
	CodeSuccess:           "success",
	CodeInvalidOperation:  "invalid operation",
	CodeHostNotFound:      "host not found",
	CodeConnectionRefused: "connection refused",
	CodeSendError:         "send error",
	CodeReceiveError:      "receive error",
	CodeRecordExists:      "record exists",
	CodeRecordNotFound:    "record not found",
	CodeMiscellaneous:     "miscellaneous error",
}

// ProtocolError is a nonzero status byte returned by the server. The request
// was framed correctly and fully consumed, so the connection remains usable.
type ProtocolError struct {
	Code ErrorCode
}

func (e *ProtocolError) Error() string {
	name, ok := errorCodeNames[e.Code]
	if !ok {
		name = "unknown"
	}
	return fmt.Sprintf("tyrant: %s (code %d)", name, e.Code)
}

// ShouldCloseConnection returns false: the status byte was the whole
// response, protocol state is intact.
func (e *ProtocolError) ShouldCloseConnection() bool {
	return false
}

// errorForCode maps a status byte to its error kind. Codes the protocol does
// not define indicate a framing bug, not a server condition, and surface as a
// ParseError.
func errorForCode(code byte) error {
	c := ErrorCode(code)
	if _, ok := errorCodeNames[c]; !ok {
		return &ParseError{Message: fmt.Sprintf("unknown error code %d", code)}
	}
	return &ProtocolError{Code: c}
}

// IsRecordNotFound reports whether err is the server's record-not-found
// condition.
func IsRecordNotFound(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == CodeRecordNotFound
}

// IsRecordExists reports whether err is the server's record-exists condition
// (putkeep on a present key).
func IsRecordExists(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == CodeRecordExists
}

// IsInvalidOperation reports whether err is the server's invalid-operation
// condition. The iteration cursor signals exhaustion this way.
func IsInvalidOperation(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == CodeInvalidOperation
}

// ConnError wraps a socket-level failure. No status byte was received, so
// the connection state is unknown and the connection must be discarded.
type ConnError struct {
	Op  string // "dial", "read" or "write"
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("tyrant: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

func (e *ConnError) ShouldCloseConnection() bool {
	return true
}

// ParseError is a client-side framing failure: the server's bytes did not
// match the protocol. The read position is unknown afterwards.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "tyrant: parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "tyrant: parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// EncodingError is raised when a value read from the wire is not valid UTF-8
// but the caller asked for text. The payload was fully consumed, so the
// connection remains usable.
type EncodingError struct {
	Message string
}

func (e *EncodingError) Error() string {
	return "tyrant: encoding error: " + e.Message
}

func (e *EncodingError) ShouldCloseConnection() bool {
	return false
}

// ArgumentError is caller misuse detected before any bytes hit the wire:
// malformed slice bounds, offset without limit, unknown lookup names,
// condition shape mismatches.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return "tyrant: " + e.Message
}

func (e *ArgumentError) ShouldCloseConnection() bool {
	return false
}

// ErrConnClosed is returned when a command is issued on a closed connection.
var ErrConnClosed = errors.New("tyrant: connection closed")

// errorWithConnectionState is implemented by all protocol error kinds to
// tell pools whether the connection can be reused.
type errorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires discarding the
// connection it occurred on. Unknown error types are treated conservatively.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}
	var e errorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}
	return true
}
