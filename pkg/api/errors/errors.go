// Package errors maps service errors onto JSON responses without exposing
// internal details.
package errors

import (
	stderrors "errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/models"
)

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, reason string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// ForbiddenError returns a forbidden error carrying the denial reason, so the
// operator sees why the mutation was rejected.
func ForbiddenError(c echo.Context, reason string) error {
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: reason,
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// ConflictError returns a conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}

// FromDomain routes a service error to the matching response by its domain
// error code.
func FromDomain(c echo.Context, err error) error {
	switch {
	case domain.IsNotFound(err):
		return NotFoundError(c, "lead")
	case domain.IsValidation(err):
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: domainMessage(err),
		})
	case domain.IsForbidden(err):
		return ForbiddenError(c, domainMessage(err))
	case domain.IsConflict(err):
		return ConflictError(c, domainMessage(err))
	default:
		return InternalError(c, err)
	}
}

// domainMessage strips the error code prefix, leaving the operator-facing
// message.
func domainMessage(err error) string {
	var derr *domain.DomainError
	if stderrors.As(err, &derr) {
		return derr.Message
	}
	return err.Error()
}
