// Package middleware authenticates requests and places the acting operator
// on the echo context. Engines never read identity from globals; handlers
// pull the actor from here and pass it down explicitly.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/auth"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/models"
)

const actorKey = "actor"

// ActorMiddleware validates the Bearer token and stores the resulting
// domain.Actor on the context.
func ActorMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "missing_token",
					Message: "Authorization header is required",
				})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token_format",
					Message: "Authorization header must be 'Bearer {token}'",
				})
			}

			claims, err := auth.ValidateJWT(parts[1], secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: err.Error(),
				})
			}

			actor, err := claims.Actor()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: err.Error(),
				})
			}

			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

// GetActor returns the authenticated operator from the context.
func GetActor(c echo.Context) (domain.Actor, bool) {
	actor, ok := c.Get(actorKey).(domain.Actor)
	return actor, ok
}

// RequireElevated rejects agents; managers and admins pass.
func RequireElevated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := GetActor(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "You are not authorized to access this resource.",
				})
			}
			if !actor.Role.Elevated() {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   "forbidden",
					Message: "This operation requires a manager role.",
				})
			}
			return next(c)
		}
	}
}
