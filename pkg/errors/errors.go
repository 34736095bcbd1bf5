// Package errors defines the failure taxonomy of identity resolution and maps it
// onto HTTP errors for callers that surface them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindPartialBatch Kind = "partial_batch"
	KindInternal     Kind = "internal"
)

const (
	CodeNotFoundOrAlreadyMerged = "not_found_or_already_merged"
	CodeAlreadyResolved         = "already_resolved"
	CodeScopeAlreadyMigrated    = "scope_already_migrated"
	CodeScopeNotMigrated        = "scope_not_migrated"
	CodeRollbackBlockedByMerge  = "rollback_blocked_by_merge"
	CodeInvalidInput            = "invalid_input"
	CodeStorage                 = "storage_failure"
)

// IdentityError is returned by every service in this module. IDs names the
// records a caller should target when retrying.
type IdentityError struct {
	Kind    Kind
	Code    string
	Message string
	IDs     []string
	cause   error
}

func (e *IdentityError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(e.IDs, ", "))
}

func (e *IdentityError) Unwrap() error {
	return e.cause
}

func (e *IdentityError) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPartialBatch:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

func (e *IdentityError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(e.StatusCode(), e.Error()).AddMetaValue("code", e.Code).AddMetaValue("ids", e.IDs)
}

func Validation(format string, args ...any) *IdentityError {
	return &IdentityError{Kind: KindValidation, Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFoundOrMerged(ids ...string) *IdentityError {
	return &IdentityError{
		Kind:    KindNotFound,
		Code:    CodeNotFoundOrAlreadyMerged,
		Message: "record does not exist or has already been merged",
		IDs:     ids,
	}
}

func AlreadyResolved(candidateID string) *IdentityError {
	return &IdentityError{
		Kind:    KindConflict,
		Code:    CodeAlreadyResolved,
		Message: "duplicate candidate is already resolved",
		IDs:     []string{candidateID},
	}
}

func NotFound(what string, id string) *IdentityError {
	return &IdentityError{Kind: KindNotFound, Code: "not_found", Message: what + " not found", IDs: []string{id}}
}

func Conflict(code, message string, ids ...string) *IdentityError {
	return &IdentityError{Kind: KindConflict, Code: code, Message: message, IDs: ids}
}

func PartialBatch(message string, ids ...string) *IdentityError {
	return &IdentityError{Kind: KindPartialBatch, Code: "partial_batch", Message: message, IDs: ids}
}

// Internal wraps a storage failure. Errors that already carry a kind, including
// repository 4xx errors, pass through.
func Internal(err error, message string) error {
	if err == nil {
		return nil
	}
	var ie *IdentityError
	if errors.As(err, &ie) {
		return err
	}
	if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) < http.StatusInternalServerError {
		return err
	}
	return &IdentityError{Kind: KindInternal, Code: CodeStorage, Message: message, cause: err}
}

// KindOf reports the kind of err. Repository HTTP errors map by status code.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if httperror.IsHTTPError(err) {
		switch httperror.GetStatusCode(err) {
		case http.StatusBadRequest:
			return KindValidation
		case http.StatusNotFound:
			return KindNotFound
		case http.StatusConflict:
			return KindConflict
		}
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the code of an IdentityError, or "" for other errors.
func CodeOf(err error) string {
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// IDsOf returns the offending IDs carried by err.
func IDsOf(err error) []string {
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.IDs
	}
	return nil
}

// As is errors.As, re-exported so callers need only this package.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New returns a plain sentinel error.
func New(message string) error {
	return errors.New(message)
}
