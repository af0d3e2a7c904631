// Package apperr defines the error kinds the engine surfaces to its callers.
//
// Every error leaving a stage executor or operator action is an *Error so the
// host (CLI, scheduler) can map it to an exit code or status without string
// matching. Collaborator failures that were recovered locally surface as
// KindStageFailed with the underlying reason attached as Cause.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error
type Kind string

const (
	KindNotFound    Kind = "NOT_FOUND"
	KindValidation  Kind = "VALIDATION_ERROR"
	KindGating      Kind = "GATING_ERROR"
	KindStageFailed Kind = "STAGE_FAILED"
	KindConflict    Kind = "CONFLICT"
	KindInternal    Kind = "INTERNAL"
)

// Sentinels for errors.Is checks against a kind
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrGating      = &Error{Kind: KindGating}
	ErrStageFailed = &Error{Kind: KindStageFailed}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrInternal    = &Error{Kind: KindInternal}
)

// Error is the engine's structured error
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to traverse the cause chain.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound reports a missing topic, article or source.
func NotFound(resource string, id interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// Validation reports malformed caller input.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Gating reports a stage invoked from a status that does not allow it.
func Gating(op string, current, required string) *Error {
	return &Error{
		Kind:    KindGating,
		Op:      op,
		Message: fmt.Sprintf("topic is %s, stage requires at least %s", current, required),
	}
}

// StageFailed wraps a collaborator failure that ended a stage.
func StageFailed(op string, cause error) *Error {
	return &Error{Kind: KindStageFailed, Op: op, Message: "stage failed", Cause: cause}
}

// Conflict reports a lost compare-and-swap on topic status.
func Conflict(op string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps unexpected storage errors.
func Internal(op string, cause error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Cause: cause}
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsInternal reports an explicit KindInternal error in the chain. Foreign
// errors are not internal here even though KindOf reports them as such.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// ExitCode maps an error kind to a process exit status for CLI hosts
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindNotFound:
		return 3
	case KindValidation:
		return 4
	case KindGating:
		return 5
	case KindConflict:
		return 6
	case KindStageFailed:
		return 7
	default:
		return 1
	}
}
