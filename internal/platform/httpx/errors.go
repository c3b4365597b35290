// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain and access errors to HTTP responses using RFC7807.
// Denials are 403, missing authentication 401, last-admin and
// self-role-change violations 400.
func RespondError(w http.ResponseWriter, err error) {
	var denied *access.DeniedError
	switch {
	case errors.Is(err, access.ErrNotAuthenticated), errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Not Authenticated", "authentication required")
	case errors.As(err, &denied):
		JSON(w, http.StatusForbidden, ProblemDetail{
			Title:    "Forbidden",
			Status:   http.StatusForbidden,
			Detail:   "Access denied. Insufficient permissions.",
			Resource: string(denied.Resource),
			Action:   string(denied.Action),
			Current:  string(denied.Role),
		})
	case errors.Is(err, access.ErrForbidden), errors.Is(err, access.ErrScopeDenied), errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "Access denied. Insufficient permissions.")
	case errors.Is(err, access.ErrLastAdmin):
		Problem(w, http.StatusBadRequest, "Last Admin", "Cannot demote the last active admin")
	case errors.Is(err, access.ErrSelfRoleChange):
		Problem(w, http.StatusBadRequest, "Self Role Change", "Cannot change your own role")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", "invalid email or password")
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
