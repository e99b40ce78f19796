// Package errors provides custom error types for the sync engine
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeRejected          ErrorCode = "REJECTED"
)

// Operation represents the type of sync operation
type Operation string

const (
	OpSync  Operation = "sync"
	OpPush  Operation = "push"
	OpPull  Operation = "pull"
	OpApply Operation = "apply"
	OpMerge Operation = "merge"
	OpStore Operation = "store"
	OpLoad  Operation = "load"
	OpSave  Operation = "save"
	OpClose Operation = "close"
)

// Kind classifies an error independently of the operation that produced it.
type Kind string

const (
	KindOther    Kind = ""
	KindInvalid  Kind = "invalid"
	KindInternal Kind = "internal"
	KindNotFound Kind = "not_found"
	KindClosed   Kind = "closed"
	KindRejected Kind = "rejected"
	KindCanceled Kind = "canceled"
)

// Component names the part of the system an error originated from.
type Component string

// SyncError represents an error that occurred during synchronization
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "store", "remote")
	Component string

	// Kind of failure
	Kind Kind

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	if e.Err == nil {
		return msg
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Op converts a string into an Operation for use with E.
func Op(op string) Operation {
	return Operation(op)
}

// E builds a SyncError from its arguments. Recognised argument types are
// Operation, Component, Kind, ErrorCode, error, string (appended to the
// message of the underlying error) and map[string]interface{} (metadata).
// If the underlying error is itself a SyncError, unset fields are inherited
// from it.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}

	e := &SyncError{}
	var notes []string
	for _, arg := range args {
		switch a := arg.(type) {
		case Operation:
			e.Op = a
		case Component:
			e.Component = string(a)
		case Kind:
			e.Kind = a
		case ErrorCode:
			e.Code = a
		case *SyncError:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			notes = append(notes, a)
		case map[string]interface{}:
			e.Metadata = a
		}
	}

	if len(notes) > 0 {
		note := strings.Join(notes, "; ")
		if e.Err != nil {
			e.Err = fmt.Errorf("%w (%s)", e.Err, note)
		} else {
			e.Err = errors.New(note)
		}
	}

	var inner *SyncError
	if errors.As(e.Err, &inner) {
		if e.Kind == KindOther {
			e.Kind = inner.Kind
		}
		if e.Code == "" {
			e.Code = inner.Code
		}
		e.Retryable = e.Retryable || inner.Retryable
	}

	return e
}

// WrapOpComponent annotates err with op and component, keeping nil as nil.
func WrapOpComponent(err error, op, component string) error {
	if err == nil {
		return nil
	}
	return E(Op(op), Component(component), err)
}

// WrapOpComponentKind is WrapOpComponent with a Kind.
func WrapOpComponentKind(err error, op, component string, kind Kind) error {
	if err == nil {
		return nil
	}
	return E(Op(op), Component(component), kind, err)
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "storage",
		Kind:      KindInternal,
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Kind:      KindInvalid,
		Err:       cause,
		Retryable: false,
	}
}

// NewNetworkError creates a new network-related SyncError
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeNetworkFailure,
		Op:        op,
		Component: "remote",
		Err:       cause,
		Retryable: true,
	}
}

// NewRejectedError creates a SyncError for an authority that refused a mutation.
func NewRejectedError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeRejected,
		Op:        op,
		Component: "remote",
		Kind:      KindRejected,
		Err:       cause,
	}
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable SyncError
func NewRetryable(op Operation, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsKind reports whether any SyncError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var syncErr *SyncError
		if !errors.As(err, &syncErr) {
			return false
		}
		if syncErr.Kind == kind {
			return true
		}
		err = syncErr.Err
	}
	return false
}
