package service

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the service layer
var (
	// ErrInsufficientCredits indicates the account balance does not cover
	// the task's credit cost. Admission fails with no side effects.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrTaskNotFound indicates the task does not exist or is not visible
	// to the requesting account.
	ErrTaskNotFound = errors.New("task not found")

	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotCancellable indicates the task is already in a terminal state.
	ErrNotCancellable = errors.New("task is not cancellable")

	// ErrInvalidTaskType indicates the requested task type is unknown.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrEmailTaken indicates an account with the given email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// ServiceError wraps errors from the service layer with operation context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "admit_task", "cancel_task")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}
