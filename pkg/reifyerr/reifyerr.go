// Package reifyerr defines the structured error values described in
// spec.md §7: a stable kind code, an optional source span, an optional
// internal location, and a cause chain.
//
// It generalizes the teacher's fmt.Errorf("...: %w", err) wrapping idiom
// into a typed error so callers can switch on Kind rather than parse
// messages, while still composing with errors.Is/errors.As and %w.
package reifyerr

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-consumable top-level error code named in
// spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindCatalog
	KindConflict
	KindStorageIo
	KindSerialization
	KindType
	KindFlow
	KindCancelled
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "Parse"
	case KindCatalog:
		return "Catalog"
	case KindConflict:
		return "Conflict"
	case KindStorageIo:
		return "StorageIo"
	case KindSerialization:
		return "Serialization"
	case KindType:
		return "Type"
	case KindFlow:
		return "Flow"
	case KindCancelled:
		return "Cancelled"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Span is a byte range in the offending RQL source, when one exists.
type Span struct {
	Start, End int
}

// Location pins an Internal error to a source position for bug reports.
type Location struct {
	File, Function string
	Line           int
}

// Error is the structured error value every reifydb component returns.
type Error struct {
	Kind     Kind
	Message  string
	Span     *Span
	Location *Location
	Cause    error

	// Flow-specific chain context (spec.md §7: "chain includes operator
	// id, version, node id"), set only for KindFlow errors.
	OperatorId string
	NodeId     string
	Version    uint64
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a reifyerr.Error with the same Kind,
// enabling errors.Is(err, reifyerr.Conflict("")) style checks.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Parse(span *Span, format string, args ...any) *Error {
	e := newf(KindParse, nil, format, args...)
	e.Span = span
	return e
}

func Catalog(format string, args ...any) *Error {
	return newf(KindCatalog, nil, format, args...)
}

// Conflict wraps a transaction write-write or read-write conflict.
// spec.md §7: recoverable and retryable by clients.
func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, nil, format, args...)
}

func StorageIo(cause error, format string, args ...any) *Error {
	return newf(KindStorageIo, cause, format, args...)
}

func Serialization(cause error, format string, args ...any) *Error {
	return newf(KindSerialization, cause, format, args...)
}

func TypeError(format string, args ...any) *Error {
	return newf(KindType, nil, format, args...)
}

// Flow wraps an operator invariant violation, carrying the chain
// context spec.md §7 requires (operator id, version, node id).
func Flow(operatorId, nodeId string, version uint64, format string, args ...any) *Error {
	e := newf(KindFlow, nil, format, args...)
	e.OperatorId = operatorId
	e.NodeId = nodeId
	e.Version = version
	return e
}

// Cancelled wraps cooperative cancellation observed by an actor loop or
// a storage iterator (spec.md §5 "Cancellation").
func Cancelled(format string, args ...any) *Error {
	return newf(KindCancelled, nil, format, args...)
}

// Internal wraps a programmer error; it carries a source location so
// reports are actionable (spec.md §7).
func Internal(loc Location, format string, args ...any) *Error {
	e := newf(KindInternal, nil, format, args...)
	e.Location = &loc
	return e
}

// Is reports whether err is a reifyerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err if it is a reifyerr.Error, else
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown
	}
	return e.Kind
}
