// Package errkind defines the closed set of error classifications used
// throughout the async filesystem engine and the staging buffer.
//
// Every operation that can fail - synchronous or asynchronous - reports
// its failure (or its success) as one of these Kinds, following the
// same pattern vfscommon uses for its enum types (String/Set/Type).
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the outcome of an operation.
type Kind int

// The complete set of outcomes an operation can report.
const (
	Success Kind = iota
	InternalFailure
	InvalidArgument
	OperationNotPermitted
	OpenFailure
	ReadFailure
	WriteFailure
	AppendFailure
	EndOfFile
	UnknownError
	Stopped
)

var kindNames = map[Kind]string{
	Success:               "success",
	InternalFailure:       "internal_failure",
	InvalidArgument:       "invalid_argument",
	OperationNotPermitted: "operation_not_permitted",
	OpenFailure:           "open_failure",
	ReadFailure:           "read_failure",
	WriteFailure:          "write_failure",
	AppendFailure:         "append_failure",
	EndOfFile:             "end_of_file",
	UnknownError:          "unknown_error",
	Stopped:               "stopped",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(k))
}

// Set implements pflag.Value so Kind can be used as a config/flag value.
func (k *Kind) Set(s string) error {
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return errors.Errorf("unknown error kind %q", s)
}

// Type implements pflag.Value.
func (k Kind) Type() string {
	return "Kind"
}

// Error is the (kind, message) pair returned by every operation in this
// module. A zero Error (Kind: Success) is never constructed by callers -
// success is reported by a nil *Error.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a Kind, preserving it as the cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return New(kind, format, args...)
	}
	return &Error{Kind: kind, Message: errors.Wrapf(err, format, args...).Error(), cause: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Cause returns the wrapped error, if any, satisfying github.com/pkg/errors.Causer.
func (e *Error) Cause() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether err carries the given Kind. A nil err is treated as Success.
func Is(err error, kind Kind) bool {
	if err == nil {
		return kind == Success
	}
	fe, ok := err.(*Error)
	if !ok {
		return false
	}
	return fe.Kind == kind
}

// IsEndOfFile reports whether err signals end-of-file.
func IsEndOfFile(err error) bool {
	return Is(err, EndOfFile)
}

// IsStopped reports whether err signals a stopped reader.
func IsStopped(err error) bool {
	return Is(err, Stopped)
}

// KindOf extracts the Kind carried by err, or Success for nil and
// UnknownError for any error not produced by this package.
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	if fe, ok := err.(*Error); ok {
		return fe.Kind
	}
	return UnknownError
}
