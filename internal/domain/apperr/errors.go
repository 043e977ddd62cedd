// Package apperr defines the error taxonomy of the pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error
type Kind string

const (
	// KindSchema means required columns are missing; the job aborts and is never retried
	KindSchema Kind = "SchemaError"
	// KindRow is a per-record failure; the job continues
	KindRow Kind = "RowError"
	// KindRetryableIO is a transient store or file failure that triggers backoff
	KindRetryableIO Kind = "RetryableIOError"
	// KindValidationFailure is an unmet expectation; recorded as data
	KindValidationFailure Kind = "ValidationFailure"
	// KindAssignmentGap means no eligible user exists for a record
	KindAssignmentGap Kind = "AssignmentGapError"
)

// Error carries a kind and the operation that produced it
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error; nil stays nil
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Schema reports missing required columns
func Schema(op string, missing []string) *Error {
	return &Error{Kind: KindSchema, Op: op, Message: fmt.Sprintf("missing required columns %v", missing)}
}

// RetryableIO wraps a transient failure
func RetryableIO(op string, cause error) error {
	return Wrap(KindRetryableIO, op, cause)
}

// AssignmentGap reports a record with no eligible preparer
func AssignmentGap(op, glCode, department string) *Error {
	return &Error{
		Kind:    KindAssignmentGap,
		Op:      op,
		Message: fmt.Sprintf("no eligible preparer for %s in %q", glCode, department),
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a job failing with err may be retried.
// Only schema errors are permanent; anything unclassified is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindSchema
}
