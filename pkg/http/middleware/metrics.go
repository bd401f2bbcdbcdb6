package middleware

import (
	"errors"
	"fmt"
	"time"

	applogger "SOCPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socpulse",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route template and status.",
	}, []string{"route", "method", "status"})

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "socpulse",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API latency. Training routes land in the upper buckets.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
	}, []string{"route", "method"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "socpulse",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Requests currently being served.",
	})
)

// Metrics labels by route template (c.Path()), never the raw URI, so
// incident ids do not explode cardinality. Probe and scrape routes are
// skipped.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			switch route {
			case "/health", "/ready", "/metrics":
				return next(c)
			case "":
				route = "unmatched"
			}

			inFlight.Inc()
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)
			inFlight.Dec()

			code := statusOf(c, err)
			method := c.Request().Method
			requestsTotal.WithLabelValues(route, method, fmt.Sprintf("%dxx", code/100)).Inc()
			requestSeconds.WithLabelValues(route, method).Observe(elapsed.Seconds())

			switch {
			case code >= 500:
				l.Error("request failed",
					applogger.String("route", route),
					applogger.Int("status", code),
					applogger.String("request_id", GetRequestID(c)),
				)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("slow request",
					applogger.String("route", route),
					applogger.Duration("duration_ms", elapsed),
				)
			}
			return err
		}
	}
}

// statusOf reads the code echo will write; error responses are written
// after the middleware chain returns.
func statusOf(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	if err != nil && !c.Response().Committed {
		return 500
	}
	return c.Response().Status
}
