package requests

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type APIError struct {
	Code    string
	Message string
	// INVALID_ARGUMENT のときだけ使う。違反は最初の1件で止めず全件列挙する。
	Violations []string
}

func (e *APIError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s", e.Code, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeInsufficientBranches = "INSUFFICIENT_BRANCHES"
	CodeAlreadyResolved      = "ALREADY_RESOLVED"
	CodeInvalidState         = "INVALID_STATE"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

func NewValidationError(violations []string) error {
	return &APIError{Code: CodeInvalidArgument, Message: "validation failed", Violations: violations}
}

func NewInvalidTransitionError(msg string) error {
	return &APIError{Code: CodeInvalidTransition, Message: msg}
}

func NewInsufficientBranchesError(msg string) error {
	return &APIError{Code: CodeInsufficientBranches, Message: msg}
}

func NewAlreadyResolvedError() error {
	return &APIError{Code: CodeAlreadyResolved, Message: "request is already resolved"}
}

func NewInvalidStateError(msg string) error {
	return &APIError{Code: CodeInvalidState, Message: msg}
}

func NewForbiddenError(msg string) error {
	return &APIError{Code: CodeForbidden, Message: msg}
}

func NewNotFoundError(msg string) error {
	return &APIError{Code: CodeNotFound, Message: msg}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if !errors.As(err, &api) {
		return http.StatusInternalServerError
	}
	switch api.Code {
	case CodeInvalidArgument, CodeInvalidTransition:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeAlreadyResolved, CodeInvalidState, CodeInsufficientBranches:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
