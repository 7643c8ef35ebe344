// Package status carries the error taxonomy shared by every public
// operation in tablemesh. Every operation that can fail returns an error
// that is either nil or satisfies errors.As(err, *status.Error).
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies the kind of failure, following the taxonomy operators
// must report. OK is never returned as an error; it exists so a Code can be
// printed with String() before it's wrapped into an Error.
type Code int

const (
	OK Code = iota
	Invalid
	KeyError
	IndexError
	IOError
	ExecutionError
	UnknownError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Invalid:
		return "Invalid"
	case KeyError:
		return "KeyError"
	case IndexError:
		return "IndexError"
	case IOError:
		return "IOError"
	case ExecutionError:
		return "ExecutionError"
	case UnknownError:
		return "UnknownError"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Sentinel errors for errors.Is checks against a bare Code, mirroring the
// teacher's sentinel-error style but covering the full taxonomy the spec
// requires.
var (
	ErrInvalid   = errors.New("invalid")
	ErrKey       = errors.New("key error")
	ErrIndex     = errors.New("index error")
	ErrIO        = errors.New("io error")
	ErrExecution = errors.New("execution error")
	ErrUnknown   = errors.New("unknown error")
)

func sentinelFor(c Code) error {
	switch c {
	case Invalid:
		return ErrInvalid
	case KeyError:
		return ErrKey
	case IndexError:
		return ErrIndex
	case IOError:
		return ErrIO
	case ExecutionError:
		return ErrExecution
	default:
		return ErrUnknown
	}
}

// Error is a status-coded error. It wraps an underlying cause (which may be
// nil) and is compatible with errors.Is against the package's sentinels and
// errors.As against *Error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is the sentinel for e's Code, so callers can
// write errors.Is(err, status.ErrKey) without importing this package's Code type.
func (e *Error) Is(target error) bool {
	return errors.Is(sentinelFor(e.Code), target)
}

// New builds a status error with no wrapped cause.
func New(code Code, format string, args ...any) error {
	if code == OK {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a status error that preserves cause as its Unwrap target.
func Wrap(code Code, cause error, format string, args ...any) error {
	if code == OK {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the Code from err, returning UnknownError if err is not a
// *Error and OK if err is nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return UnknownError
}

// IsOK reports whether err is nil, matching the original Status::is_ok.
func IsOK(err error) bool { return err == nil }
