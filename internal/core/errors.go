package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrLinkedToBill = errors.New("transaction is linked to a bill; mark the bill unpaid instead")
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidAmount = &ValidationError{Field: "amount", Reason: "must be a positive number"}
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ReferenceError reports a document that points at another document which
// does not exist, e.g. a transaction whose accountId is unknown.
type ReferenceError struct {
	Collection string
	ID         string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("referenced %s %q does not exist", e.Collection, e.ID)
}

func (e *ReferenceError) Unwrap() error { return ErrNotFound }
