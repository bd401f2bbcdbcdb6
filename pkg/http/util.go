package http

import "github.com/labstack/echo/v4"

// HeaderUserSub carries the authenticated subject set by the upstream auth proxy.
const HeaderUserSub = "X-User-Sub"

// UserSub returns the caller subject or "system" when the request is anonymous.
// Audit rows record it as the acting user.
func UserSub(c echo.Context) string {
	if sub := c.Request().Header.Get(HeaderUserSub); sub != "" {
		return sub
	}
	return "system"
}
