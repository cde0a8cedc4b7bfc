package yeelight

import (
	"fmt"

	"github.com/juju/errors"
)

// ─── Error Kinds ────────────────────────────────────────────────────────────────
//
// Every failure of a Session is reported as one of the kinds below, matched
// with errors.Is. None of them is retried inside the session.

const (
	// ErrConnect means the socket could not be established. A fresh Connect
	// may be attempted.
	ErrConnect = errors.ConstError("connect failed")

	// ErrTransportFailure means a write or read failed mid-session, including
	// a transport deadline. The session is dead.
	ErrTransportFailure = errors.ConstError("transport failure")

	// ErrConnectionClosed means the peer closed the stream before the
	// matching reply arrived. The session is dead.
	ErrConnectionClosed = errors.ConstError("connection closed by device")

	// ErrProtocolCorruption means an inbound line was not JSON at all. Framing
	// can no longer be trusted, so the session is dead.
	ErrProtocolCorruption = errors.ConstError("protocol corruption")

	// ErrSessionBroken is returned by every call on a session that has already
	// failed fatally.
	ErrSessionBroken = errors.ConstError("session is broken")

	// ErrRequestRejected means the device answered the request with an error
	// object. The session is still usable.
	ErrRequestRejected = errors.ConstError("request rejected by device")
)

// IsFatal reports whether err leaves the session that produced it unusable.
func IsFatal(err error) bool {
	for _, kind := range []error{
		ErrTransportFailure,
		ErrConnectionClosed,
		ErrProtocolCorruption,
		ErrSessionBroken,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// ─── Error Types ────────────────────────────────────────────────────────────────

// SessionError describes a failed session operation.
type SessionError struct {
	// Kind is one of the Err* constants above.
	Kind error

	// Op is the operation that failed ("dial", "write", "read", "decode").
	Op string

	// Addr is the device address.
	Addr string

	// RequestID is the id assigned to the failed request. It is only
	// meaningful when HasRequest is true.
	RequestID  uint64
	HasRequest bool

	// Err is the underlying cause, if any.
	Err error
}

func (e *SessionError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Addr)
	if e.HasRequest {
		msg += fmt.Sprintf(" (request %d)", e.RequestID)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind.
func (e *SessionError) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the underlying cause.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// DecodeError is returned by DecodeLine for bytes that are not valid JSON.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed line %q: %v", truncate(e.Line, 64), e.Err)
}

// Is matches ErrProtocolCorruption.
func (e *DecodeError) Is(target error) bool {
	return target == ErrProtocolCorruption
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DeviceError is the device's error answer to a request.
type DeviceError struct {
	RequestID uint64
	Code      int
	Message   string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("request %d rejected by device: %s (code %d)", e.RequestID, e.Message, e.Code)
}

// Is matches ErrRequestRejected.
func (e *DeviceError) Is(target error) bool {
	return target == ErrRequestRejected
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
