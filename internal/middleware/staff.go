package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireStaff returns a middleware function that enforces that the
// authenticated user carries the staff claim.  It assumes JWTAuth has
// already stored the flag in the context; an authenticated non-staff
// caller is rejected with 403 Forbidden.
func RequireStaff() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			staff, ok := c.Get(CtxIsStaff).(bool)
			if !ok || !staff {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "staff access required"})
			}
			return next(c)
		}
	}
}
