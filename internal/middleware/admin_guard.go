package middleware

import "github.com/labstack/echo/v4"

// AdminGuard ensures only admin users can reach the wrapped routes.
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return RequireRoles("admin")(next)
}
