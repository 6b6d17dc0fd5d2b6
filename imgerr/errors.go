package imgerr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure that crosses a public API.
type ErrorKind int

const (
	Unknown ErrorKind = iota

	// InvalidParameter is bad caller input. The caller can always recover by fixing the input.
	InvalidParameter

	// SourceIncomplete is not a failure as such. It reports that an incremental source
	// does not yet hold enough bytes for the requested work.
	SourceIncomplete

	// UnknownFormat means no plugin matched the input.
	UnknownFormat

	// Malformed means a header or serialized payload is internally inconsistent.
	Malformed

	// AllocFailed means the allocator was exhausted or the request exceeded the size ceiling.
	AllocFailed

	// IoAbnormal is an underlying file or descriptor error.
	IoAbnormal
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidParameter:
		return "invalid parameter"
	case SourceIncomplete:
		return "source incomplete"
	case UnknownFormat:
		return "unknown format"
	case Malformed:
		return "malformed data"
	case AllocFailed:
		return "allocation failed"
	case IoAbnormal:
		return "io abnormal"
	default:
		return "unknown error"
	}
}

var (
	ErrInvalidParameter = &Error{Kind: InvalidParameter}
	ErrSourceIncomplete = &Error{Kind: SourceIncomplete}
	ErrUnknownFormat    = &Error{Kind: UnknownFormat}
	ErrMalformed        = &Error{Kind: Malformed}
	ErrAllocFailed      = &Error{Kind: AllocFailed}
	ErrIoAbnormal       = &Error{Kind: IoAbnormal}
)

// Error is the typed error value returned by every package in this module.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can compare against the
// package sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind ErrorKind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. An err that already carries a kind keeps it.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Rekind tags err with kind even when it already carries one. The old kind is
// dropped from the chain so errors.Is no longer matches it.
func Rekind(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		err = errors.New(err.Error())
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind carried by err, or Unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
