// Package apierr defines the failure taxonomy shared by the stores and the
// bug service, and normalizes it into the JSON error bodies served over HTTP.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is a generic sentinel for missing records.
	ErrNotFound = errors.New("not found")
	// ErrMalformedID means an identifier is not in the store's id shape.
	ErrMalformedID = errors.New("malformed identifier")
	// ErrDuplicate means a store-level uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate key")
	// ErrEmptyQuery means a search was invoked without search terms.
	ErrEmptyQuery = errors.New("empty search query")
)

// NotFoundError names the entity that was missing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", strings.ToLower(e.Entity), e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound returns a NotFoundError for entity/id.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError carries field-level violation messages.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Violations returns the ordered violation messages.
func (e *ValidationError) Violations() []string { return e.Messages }

// Validation returns a ValidationError for msgs.
func Validation(msgs ...string) error {
	return &ValidationError{Messages: msgs}
}

// Error is a caller-facing error with a declared HTTP status.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the declared HTTP status.
func (e *Error) StatusCode() int { return e.Status }

// New returns an Error with the given status.
func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// BadRequest returns a 400 Error with msg as the caller-visible message.
func BadRequest(msg string) *Error {
	return New(http.StatusBadRequest, "bad_request", errors.New(msg))
}
