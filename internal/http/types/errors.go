// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"fmt"
	"net/http"
)

// Code is the machine-readable rejection code clients branch on. Clients
// must never infer the cause from the human-readable message.
type Code string

func (c Code) String() string {
	return string(c)
}

const (
	CodeAuthRequired            Code = "auth_required"
	CodeSessionExpiredOrRevoked Code = "session_expired_or_revoked"
	CodeAccountLocked           Code = "account_locked"
	CodeAccountDisabled         Code = "account_disabled"
	CodeInvalidCredential       Code = "invalid_credential"
	CodeAdminRequired           Code = "admin_required"
	CodeOwnerRequired           Code = "owner_required"
	CodeDepartmentAccessDenied  Code = "department_access_denied"
	CodeApprovalAccessDenied    Code = "approval_access_denied"
	CodeTenantRequired          Code = "tenant_required"
	CodeTenantNotFound          Code = "tenant_not_found"
	CodeModuleNotInstalled      Code = "module_not_installed"
	CodePermissionDenied        Code = "permission_denied"
	CodeRateLimited             Code = "rate_limited"
	CodePayloadTooLarge         Code = "payload_too_large"
	CodeValidationFailed        Code = "validation_failed"
	CodeNotFound                Code = "not_found"
	CodeConflict                Code = "conflict"
	CodeInternalError           Code = "internal_error"
)

// APIError is a typed gate or handler failure. It implements error so
// services can return it directly and the outer boundary maps it once.
type APIError struct {
	Status  int
	Code    Code
	Title   string
	Message string
	Details map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(status int, code Code, title, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Title:   title,
		Message: message,
	}
}

func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// Constructors for the taxonomy. Each rejection carries its own status and
// code so clients can branch deterministically.

func ErrAuthRequired() *APIError {
	return NewAPIError(http.StatusUnauthorized, CodeAuthRequired, "Unauthorized", "authentication is required")
}

func ErrSessionExpiredOrRevoked() *APIError {
	return NewAPIError(http.StatusUnauthorized, CodeSessionExpiredOrRevoked, "Unauthorized", "session is expired or revoked")
}

func ErrAccountLocked(retryAfterSeconds int64) *APIError {
	e := NewAPIError(http.StatusUnauthorized, CodeAccountLocked, "Unauthorized", "account is temporarily locked")
	return e.WithDetails(map[string]interface{}{"retry_after_seconds": retryAfterSeconds})
}

func ErrAccountDisabled() *APIError {
	return NewAPIError(http.StatusUnauthorized, CodeAccountDisabled, "Unauthorized", "account is disabled")
}

func ErrInvalidCredential() *APIError {
	return NewAPIError(http.StatusUnauthorized, CodeInvalidCredential, "Unauthorized", "invalid credentials")
}

func ErrAdminRequired() *APIError {
	return NewAPIError(http.StatusForbidden, CodeAdminRequired, "Forbidden", "administrator access is required")
}

func ErrOwnerRequired() *APIError {
	return NewAPIError(http.StatusForbidden, CodeOwnerRequired, "Forbidden", "owner access is required")
}

func ErrDepartmentAccessDenied() *APIError {
	return NewAPIError(http.StatusForbidden, CodeDepartmentAccessDenied, "Forbidden", "department access is required")
}

func ErrApprovalAccessDenied() *APIError {
	return NewAPIError(http.StatusForbidden, CodeApprovalAccessDenied, "Forbidden", "approval capability is required")
}

func ErrTenantRequired() *APIError {
	return NewAPIError(http.StatusForbidden, CodeTenantRequired, "Forbidden", "an organization context is required")
}

func ErrTenantNotFound() *APIError {
	return NewAPIError(http.StatusForbidden, CodeTenantNotFound, "Forbidden", "organization no longer exists")
}

func ErrModuleNotInstalled(moduleID string) *APIError {
	e := NewAPIError(http.StatusForbidden, CodeModuleNotInstalled, "Forbidden", "module is not enabled for this organization")
	return e.WithDetails(map[string]interface{}{"module": moduleID})
}

func ErrPermissionDenied(permission string) *APIError {
	e := NewAPIError(http.StatusForbidden, CodePermissionDenied, "Forbidden", "permission denied")
	return e.WithDetails(map[string]interface{}{"permission": permission})
}

func ErrRateLimited(retryAfterSeconds int64) *APIError {
	e := NewAPIError(http.StatusTooManyRequests, CodeRateLimited, "Too Many Requests", "too many requests")
	return e.WithDetails(map[string]interface{}{"retry_after_seconds": retryAfterSeconds})
}

func ErrPayloadTooLarge(maxBytes int64) *APIError {
	e := NewAPIError(http.StatusBadRequest, CodePayloadTooLarge, "Bad Request", "request body exceeds the allowed size")
	return e.WithDetails(map[string]interface{}{"max_bytes": maxBytes})
}

func ErrValidationFailed(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, CodeValidationFailed, "Bad Request", message)
}

func ErrNotFound() *APIError {
	return NewAPIError(http.StatusNotFound, CodeNotFound, "Not Found", "resource not found")
}

func ErrConflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, CodeConflict, "Conflict", message)
}

func ErrInternal() *APIError {
	return NewAPIError(http.StatusInternalServerError, CodeInternalError, "Internal Server Error", "an internal error occurred")
}
