// Package apperr defines the closed set of error kinds the gateway's core
// surfaces to callers, independent of the Go error chain that produced them.
package apperr

import "fmt"

// Kind is one of a fixed taxonomy of error conditions. It is not a Go error
// type itself; it is recovered from an *Error via errors.As.
type Kind string

const (
	Invalid         Kind = "E_INVALID"
	DuplicatePath   Kind = "E_DUPLICATE_PATH"
	PortInUse       Kind = "E_PORT_IN_USE"
	PortExhausted   Kind = "E_PORT_EXHAUSTED"
	BadMAC          Kind = "E_BAD_MAC"
	NICCreate       Kind = "E_NIC_CREATE"
	NICLease        Kind = "E_NIC_LEASE"
	NICStatic       Kind = "E_NIC_STATIC"
	MediaDead       Kind = "E_MEDIA_DEAD"
	Bind            Kind = "E_BIND"
	NotFound        Kind = "E_NOT_FOUND"
	Cancelled       Kind = "E_CANCELLED"
	Timeout         Kind = "E_TIMEOUT"
	Internal        Kind = "E_INTERNAL"
)

// Error wraps a Kind with a human-readable message, an optional camera id
// the error pertains to, and the underlying cause (if any).
type Error struct {
	Kind     Kind
	CameraID int
	HasID    bool
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.HasID {
		return fmt.Sprintf("%s: camera %d: %s", e.Kind, e.CameraID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no camera association.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause in its chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithCamera attaches a camera id to err, returning a new *Error.
func WithCamera(id int, err *Error) *Error {
	cp := *err
	cp.CameraID = id
	cp.HasID = true
	return &cp
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			if ae.Kind == kind {
				return true
			}
			err = ae.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
