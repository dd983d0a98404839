package errors

import (
	"fmt"
)

// QuokkaError is the interface implemented by all quokka-lua errors.
type QuokkaError interface {
	error         // Embed the standard error interface
	Kind() string // e.g., "Format", "Runtime", "Resource"
	// Message returns the specific error message without kind info.
	// This might be useful if the caller wants to format the error differently.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// --- Concrete Error Types ---

// FormatError represents malformed, truncated, or architecture-inconsistent
// bytecode. It is fatal to the load only; nothing is ever left half-decoded.
type FormatError struct {
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Format Error: %s", e.Msg)
}
func (e *FormatError) Kind() string    { return "Format" }
func (e *FormatError) Message() string { return e.Msg }
func (e *FormatError) Unwrap() error   { return e.Cause }
func (e *FormatError) CausedBy(cause error) *FormatError {
	e.Cause = cause
	return e
}

// RuntimeError represents a type mismatch during execution (calling a
// non-callable, indexing a non-table, arithmetic on a non-coercible value)
// or a host native callable reporting failure. Fatal to the current call
// chain; the VM unwinds to the pre-call depth and stays usable.
type RuntimeError struct {
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("Runtime Error: %s", e.Msg)
}
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// ResourceError represents register stack overflow or heap exhaustion.
// Same recovery contract as RuntimeError.
type ResourceError struct {
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("Resource Error: %s", e.Msg)
}
func (e *ResourceError) Kind() string    { return "Resource" }
func (e *ResourceError) Message() string { return e.Msg }
func (e *ResourceError) Unwrap() error   { return e.Cause }
func (e *ResourceError) CausedBy(cause error) *ResourceError {
	e.Cause = cause
	return e
}

// --- Helpers for creating errors ---

func NewFormatError(format string, args ...interface{}) *FormatError {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

func NewRuntimeError(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...)}
}

func NewResourceError(format string, args ...interface{}) *ResourceError {
	return &ResourceError{Msg: fmt.Sprintf(format, args...)}
}
