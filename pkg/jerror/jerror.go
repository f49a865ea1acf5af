// Package jerror defines the structured error type shared by every jetta
// package. Each error carries a Kind for coarse handling, a stable Code for
// machine matching and a Details map for diagnostics.
package jerror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the coarse classification of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers malformed cookies, names, values, URLs and attributes.
	KindValidation
	// KindPolicy covers SameSite, third-party, secure-context and public suffix breaches.
	KindPolicy
	// KindLimit covers byte, size and redirect limits.
	KindLimit
	// KindTimeout covers the initial and inter-chunk timers.
	KindTimeout
	// KindTransport covers aborts and errors from the underlying connection.
	KindTransport
	// KindIntegrity covers checksum mismatches.
	KindIntegrity
	// KindIO covers file read, write and stat failures.
	KindIO
	// KindNotReady is returned while a dependency such as the public
	// suffix list is still loading or failed to load.
	KindNotReady
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindPolicy:
		return "PolicyViolation"
	case KindLimit:
		return "LimitExceeded"
	case KindTimeout:
		return "Timeout"
	case KindTransport:
		return "TransportError"
	case KindIntegrity:
		return "IntegrityError"
	case KindIO:
		return "IOError"
	case KindNotReady:
		return "NotReady"
	default:
		return "UnknownError"
	}
}

// Error is a structured jetta error.
// Use errors.As to extract it, or errors.Is with a bare New(code, nil) to
// match on code alone.
type Error struct {
	Kind    Kind
	Code    Code
	Details map[string]any
	// Cause is the underlying error, if any.
	Cause error
	// transient marks transport failures that may succeed on a retry.
	transient bool
}

// Error implements the error interface.
// Format: "code: message (k=v, ...): cause"
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Code.Message())
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsTransient returns true if this error may be retried.
func (e *Error) IsTransient() bool {
	return e.transient
}

// Detail returns a single detail value.
func (e *Error) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// With returns e after setting a detail value. It mutates e.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error for code. details may be nil.
func New(code Code, details map[string]any) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Details: details,
	}
}

// Wrap creates an Error for code with cause attached.
func Wrap(code Code, cause error, details map[string]any) *Error {
	e := New(code, details)
	e.Cause = cause
	return e
}

// Transient creates an Error that may be retried.
func Transient(code Code, cause error, details map[string]any) *Error {
	e := Wrap(code, cause, details)
	e.transient = true
	return e
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var je *Error
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if je, ok := As(err); ok {
		return je.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	if je, ok := As(err); ok {
		return je.Code
	}
	return ""
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// IsTransient reports whether err is a transient *Error.
func IsTransient(err error) bool {
	je, ok := As(err)
	return ok && je.transient
}
