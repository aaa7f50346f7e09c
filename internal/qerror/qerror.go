// Package qerror defines the error taxonomy shared by all analysis stages.
package qerror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// SecurityViolation means the statement was blocked before any
	// database contact.
	SecurityViolation Kind = iota
	// SyntaxError means the database rejected the statement during the
	// syntax probe.
	SyntaxError
	// ConnectionError is a retryable failure to reach the database.
	ConnectionError
	// PermissionError means an optional metadata source was unavailable.
	PermissionError
	// CollectorError means plan retrieval failed; fatal for the request.
	CollectorError
	// StoreError means history persistence failed; the response is
	// downgraded, never discarded.
	StoreError
	// UsageError means an invalid depth/preset/flag argument.
	UsageError
)

func (k Kind) String() string {
	switch k {
	case SecurityViolation:
		return "security_violation"
	case SyntaxError:
		return "syntax_error"
	case ConnectionError:
		return "connection_error"
	case PermissionError:
		return "permission_error"
	case CollectorError:
		return "collector_error"
	case StoreError:
		return "store_error"
	case UsageError:
		return "usage_error"
	default:
		return "unknown"
	}
}

// Error carries a machine-readable kind and a human remediation hint.
type Error struct {
	Kind Kind
	Msg  string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg, hint string) *Error {
	return &Error{Kind: kind, Msg: msg, Hint: hint}
}

func Newf(kind Kind, hint, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Hint: hint}
}

func Wrap(kind Kind, err error, msg, hint string) *Error {
	return &Error{Kind: kind, Msg: msg, Hint: hint, Err: err}
}

// KindOf reports the kind of err if it carries one.
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}

// Message returns the human message of err without the kind prefix, or the
// full error text for foreign errors.
func Message(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		if qe.Err != nil {
			return fmt.Sprintf("%s: %v", qe.Msg, qe.Err)
		}
		return qe.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HintOf returns the remediation hint of err, if any.
func HintOf(err error) string {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Hint
	}
	return ""
}

// Is lets errors.Is match on bare kinds via IsKind sentinels.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ExitCode maps errors to the CLI status codes: 0 success, 2 security
// rejection, 3 connection failure, 4 collector/analysis failure, 5 invalid
// depth/preset argument.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch k, ok := KindOf(err); {
	case !ok:
		return 1
	case k == SecurityViolation:
		return 2
	case k == ConnectionError:
		return 3
	case k == UsageError:
		return 5
	default:
		return 4
	}
}
