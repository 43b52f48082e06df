package service

import (
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/pkg/metrics"
)

type ErrorCode string

const (
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeConflict         ErrorCode = "CONFLICT"
	ErrorCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	ErrorCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrorCodeTransientStorage ErrorCode = "TRANSIENT_STORAGE"
	ErrorCodeUnspecified      ErrorCode = "UNSPECIFIED"
	ErrorCodeInvalidBody      ErrorCode = "INVALID_BODY"
	ErrorCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden        ErrorCode = "FORBIDDEN"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// storageError maps a repository failure that has no domain meaning.
func storageError(err error, message string) *Error {
	if repository.IsUnavailable(err) {
		return NewError(ErrorCodeTransientStorage, message)
	}
	return NewError(ErrorCodeUnspecified, message)
}

// asError unwraps the *Error returned from a transaction body. Anything else
// came from begin or commit and is treated as a storage failure.
func asError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return storageError(err, message)
}

func record(operation string, err *Error) {
	outcome := "ok"
	if err != nil {
		outcome = string(err.Code)
	}
	metrics.RecordOperation(operation, outcome)
}
