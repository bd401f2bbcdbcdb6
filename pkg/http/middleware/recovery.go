package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "SOCPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a generic 500 in the API envelope.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				l.Error("panic recovered",
					applogger.String("panic", fmt.Sprint(r)),
					applogger.String("request_id", GetRequestID(c)),
					applogger.String("route", c.Path()),
					applogger.String("stack", string(debug.Stack())),
				)
				if !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status":  http.StatusInternalServerError,
						"message": "Something went wrong",
					})
				}
			}()
			return next(c)
		}
	}
}
