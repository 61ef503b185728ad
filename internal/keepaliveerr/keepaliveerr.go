// Package keepaliveerr defines the sentinel/wrapper errors for the error
// taxonomy, following smux's own style of package-level sentinel errors
// (ErrInvalidProtocol/ErrGoAway/ErrTimeout/ErrWouldBlock) plus one wrapper
// type per taxonomy class so callers can errors.As to a specific class
// rather than string-matching a message.
package keepaliveerr

import "fmt"

// Class is one of the error taxonomy entries.
type Class string

const (
	ConfigError       Class = "ConfigError"
	InitError         Class = "InitError"
	IpcError          Class = "IpcError"
	NetworkError      Class = "NetworkError"
	TimerError        Class = "TimerError"
	ChildExitError    Class = "ChildExitError"
	ShutdownExecError Class = "ShutdownExecError"
)

// Error wraps an underlying cause with the taxonomy class that produced it.
// Only IpcError, NetworkError and TimerError are authorization-relevant
// (they propagate by breaking the owning event loop); ChildExitError is reported
// by the parent but does not by itself suppress a pending shutdown.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns an *Error tagging err with class, or nil if err is nil.
func Wrap(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// Is reports whether err is a keepaliveerr.Error of the given class.
func Is(err error, class Class) bool {
	var e *Error
	if ok := As(err, &e); !ok {
		return false
	}
	return e.Class == class
}

// As is a thin errors.As wrapper kept local so callers only need to import
// this one package for the common case of checking a taxonomy class.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
