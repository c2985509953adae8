package udferr

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrKind classifies where in a session an error happened.
type ErrKind int16

const (
	Setup     ErrKind = iota // command, tuple width or bootstrap could not be established
	Protocol                 // the peer broke the framing contract
	Execution                // the command failed on a tuple
	Reporting                // the exception frame itself could not be written
	Unknown                  // Unknown err kind
)

func (ek ErrKind) String() string {
	switch ek {
	case Setup:
		return "Setup"
	case Protocol:
		return "Protocol"
	case Execution:
		return "Execution"
	case Reporting:
		return "Reporting"
	default:
		return "Unknown"
	}
}

// UDFError is the error record of a failed session.
type UDFError struct {
	errKind    ErrKind
	errMessage string
	trace      string
	cause      error
}

func New(kind ErrKind, msg string) *UDFError {
	return &UDFError{
		errKind:    kind,
		errMessage: msg,
	}
}

// Wrap builds a UDFError around cause, using msg as context.
func Wrap(kind ErrKind, cause error, msg string) *UDFError {
	e := &UDFError{
		errKind: kind,
		cause:   cause,
	}
	if cause != nil {
		e.errMessage = fmt.Sprintf("%s: %v", msg, cause)
	} else {
		e.errMessage = msg
	}
	return e
}

// WithTrace attaches a stack trace captured at the failure site.
func (e *UDFError) WithTrace(trace string) *UDFError {
	e.trace = trace
	return e
}

func (e *UDFError) Error() string {
	return fmt.Sprintf("%s: %s", e.errKind, e.errMessage)
}

func (e *UDFError) Unwrap() error {
	return e.cause
}

func (e *UDFError) ErrorKind() ErrKind {
	return e.errKind
}

func (e *UDFError) ErrorMessage() string {
	return e.errMessage
}

// Trace returns the text reported to the host: the error line followed by the
// captured stack, if any.
func (e *UDFError) Trace() string {
	if e.trace == "" {
		return e.Error() + "\n"
	}
	return e.Error() + "\n\n" + e.trace
}

// FromError gets error information from the UDFError
func FromError(err error) (udfErr *UDFError, ok bool) {
	if err == nil {
		return nil, true
	}
	var ue *UDFError
	if errors.As(err, &ue) {
		return ue, true
	}
	if se, ok := err.(interface {
		ErrorKind() ErrKind
		ErrorMessage() string
	}); ok {
		return &UDFError{errKind: se.ErrorKind(), errMessage: se.ErrorMessage(), cause: err}, true
	}
	return &UDFError{errKind: Unknown, errMessage: err.Error(), cause: err}, false
}

// IsKind reports whether err, or one of the errors combined into it, is a UDFError
// of the given kind.
func IsKind(err error, kind ErrKind) bool {
	for _, e := range multierr.Errors(err) {
		var ue *UDFError
		if errors.As(e, &ue) && ue.errKind == kind {
			return true
		}
	}
	return false
}

// RemoteError is the failure a worker reported over the wire with an exception frame.
type RemoteError struct {
	Trace string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("udf worker raised an exception: %s", e.Trace)
}
