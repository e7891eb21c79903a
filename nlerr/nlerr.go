// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nlerr defines the error taxonomy shared by the netlink core.
package nlerr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMalformed marks a declared length or offset inconsistency found
	// while decoding a datagram. The datagram is discarded, never retried.
	KindMalformed
	// KindProtocol marks a kernel-reported failure embedded in a response.
	KindProtocol
	// KindIO marks a fatal socket error; the socket must be recreated.
	KindIO
	// KindClosed marks use of a closed socket, queue or request handle.
	KindClosed
	// KindUnsupported marks operations unavailable on this platform.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindClosed:
		return "closed"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error represents a structured error in the netlink core.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{
		Kind:    kind,
		Message: msg,
	}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a kind and message.
func Wrap(err error, kind Kind, msg string) error {
	return &Error{
		Kind:       kind,
		Message:    msg,
		Underlying: err,
	}
}

// GetKind extracts the Kind from an error, walking the wrap chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var p *ProtocolError
	if errors.As(err, &p) {
		return KindProtocol
	}
	return KindUnknown
}

// ProtocolError is a kernel-reported failure carried inside an NLMSG_ERROR
// response. Code is the positive errno value reported by the kernel; Msg
// carries the human-readable extended ack string when the kernel sent one.
type ProtocolError struct {
	Code unix.Errno
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("netlink error: %v (errno %d): %s", unix.ErrnoName(e.Code), int(e.Code), e.Msg)
	}
	return fmt.Sprintf("netlink error: %v (errno %d)", unix.ErrnoName(e.Code), int(e.Code))
}

// Is reports a match against bare errno values, so callers may write
// errors.Is(err, unix.ENODEV).
func (e *ProtocolError) Is(target error) bool {
	if errno, ok := target.(unix.Errno); ok {
		return errno == e.Code
	}
	return false
}

// NewProtocol builds a ProtocolError from a kernel-reported code. The code
// arrives negative on the wire; it is normalized here.
func NewProtocol(code int32) *ProtocolError {
	if code < 0 {
		code = -code
	}
	return &ProtocolError{Code: unix.Errno(code)}
}

// Transient reports whether a socket error is worth retrying in place.
// EINTR and EAGAIN are transient; everything else, ENOBUFS included, is
// terminal for the socket.
func Transient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
