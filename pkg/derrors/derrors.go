// Package derrors carries the coded error taxonomy shared by services and the
// transport layer. Stores return sentinel errors; services wrap them here so
// callers can branch on a stable code instead of string matching.
package derrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// CodeAuth covers bad credentials and duplicate registration.
	CodeAuth Code = "auth_error"
	// CodeStore covers network or permission failures on remote reads/writes/uploads.
	CodeStore Code = "store_error"
	// CodeCache covers serialization or I/O failures in the local cache. Always non-fatal.
	CodeCache Code = "cache_error"
	// CodeNotFound covers point-read and detail-lookup misses.
	CodeNotFound Code = "not_found"
	// CodePermission covers ownership violations on writes.
	CodePermission Code = "permission_denied"
	// CodeInvalidInput covers malformed caller input.
	CodeInvalidInput Code = "invalid_input"
	// CodeInternal is the fallback for everything else.
	CodeInternal Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error. Returns nil for nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeInternal when the chain has none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
