package middleware

import (
	"time"

	applogger "SOCPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one debug line per request. userHeader names the
// header carrying the analyst identity, which is logged when present.
func RequestLogging(l *applogger.Logger, userHeader string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			fields := []applogger.Field{
				applogger.String("request_id", GetRequestID(c)),
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			if user := req.Header.Get(userHeader); userHeader != "" && user != "" {
				fields = append(fields, applogger.String("user_sub", user))
			}
			l.Debug("request", fields...)
			return err
		}
	}
}
