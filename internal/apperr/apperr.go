// Package apperr defines the error taxonomy shared by the annotation,
// moderation, cascade and export components.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation  Kind = "VALIDATION_ERROR"
	KindNotFound    Kind = "NOT_FOUND"
	KindForbidden   Kind = "FORBIDDEN"
	KindPersistence Kind = "PERSISTENCE_ERROR"
	KindRender      Kind = "RENDER_ERROR"
)

// Error is the typed error surfaced by services. Details carries optional
// field-level information for validation failures.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func ValidationWithDetails(message string, details any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Persistence wraps a storage failure. Already-typed errors pass through
// unchanged so a validation failure raised inside a transaction keeps its kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

func Render(op string, err error) *Error {
	return &Error{Kind: KindRender, Message: op, Err: err}
}

func KindOf(err error) (Kind, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind, true
	}
	return "", false
}

func IsValidation(err error) bool  { return is(err, KindValidation) }
func IsNotFound(err error) bool    { return is(err, KindNotFound) }
func IsForbidden(err error) bool   { return is(err, KindForbidden) }
func IsPersistence(err error) bool { return is(err, KindPersistence) }
func IsRender(err error) bool      { return is(err, KindRender) }

func is(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}
