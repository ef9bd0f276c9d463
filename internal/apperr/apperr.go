// Package apperr carries machine-readable error codes across the service
// boundary so handlers can map them to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeDepositExceeds    Code = "DEPOSIT_EXCEEDS_AMOUNT"
	CodeNegativeAmount    Code = "NEGATIVE_AMOUNT"
	CodeUnknownStatus     Code = "UNKNOWN_STATUS"
	CodeUnknownColumn     Code = "UNKNOWN_COLUMN"
	CodeUnknownAction     Code = "UNKNOWN_ACTION"
	CodeReadOnlyProject   Code = "READ_ONLY_PROJECT"
	CodeDuplicateIntake   Code = "DUPLICATE_SUBMISSION"
	CodeLeadNotWon        Code = "LEAD_NOT_WON"
	CodeInvalidTransition Code = "INVALID_STATUS_TRANSITION"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Store errors
	CodePersistence Code = "PERSISTENCE_FAILED"

	// Session errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeSessionExpired  Code = "SESSION_EXPIRED"
	CodeForbidden       Code = "FORBIDDEN"
)

// HTTPStatus maps a code to the HTTP status a handler should answer with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput,
		CodeDepositExceeds,
		CodeNegativeAmount,
		CodeUnknownStatus,
		CodeUnknownColumn,
		CodeUnknownAction:
		return http.StatusBadRequest

	case CodeInvalidTransition,
		CodeReadOnlyProject,
		CodeDuplicateIntake,
		CodeLeadNotWon:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	case CodeUnauthenticated, CodeSessionExpired:
		return http.StatusUnauthorized

	case CodeForbidden:
		return http.StatusForbidden

	case CodePersistence:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code and optional structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMeta returns e with key=value added to its metadata.
func (e *Error) WithMeta(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Validation reports a rejected input value.
func Validation(field, msg string) *Error {
	return New(CodeInvalidInput, msg).WithMeta("field", field)
}

// Transition reports an illegal status move and the targets that were allowed.
func Transition[S ~string](from, to S, allowed []S) *Error {
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	e := Newf(CodeInvalidTransition, "cannot move from %s to %s", from, to)
	e.WithMeta("from", string(from))
	e.WithMeta("to", string(to))
	e.WithMeta("allowed", strings.Join(names, ","))
	return e
}

func NotFound(entity, id string) *Error {
	return Newf(CodeNotFound, "%s %s not found", entity, id).WithMeta("entity", entity).WithMeta("id", id)
}

// Persistence wraps a store failure for operation op.
func Persistence(op string, err error) *Error {
	return &Error{Code: CodePersistence, Message: op, Cause: err}
}

func Forbidden(permission string) *Error {
	return New(CodeForbidden, "insufficient permissions").WithMeta("permission", permission)
}

// GetCode extracts the code from any error. Non-domain errors yield CodeUnknown.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata returns the metadata of a domain error, or nil.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
