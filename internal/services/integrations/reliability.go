package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	svcmetrics "SOCPulse/internal/service/metrics"
	xhttp "SOCPulse/pkg/http"
	applogger "SOCPulse/pkg/logger"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityConfig tunes the outbound call wrapper.
type ReliabilityConfig struct {
	RatePerSecond float64       `yaml:"rate_per_second" default:"4"`
	Burst         int           `yaml:"burst" default:"4"`
	Attempts      uint          `yaml:"attempts" default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" default:"200ms"`
	CallTimeout   time.Duration `yaml:"call_timeout" default:"10s"`
	TripAfter     uint32        `yaml:"trip_after" default:"5"`
	OpenTimeout   time.Duration `yaml:"open_timeout" default:"30s"`
}

func (c *ReliabilityConfig) withDefaults() {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 4
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.TripAfter == 0 {
		c.TripAfter = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

// Reliability rate-limits, retries and circuit-breaks calls to one integration.
type Reliability struct {
	name    string
	cfg     ReliabilityConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *applogger.Logger
}

func NewReliability(name string, cfg ReliabilityConfig, logger *applogger.Logger) *Reliability {
	cfg.withDefaults()
	if logger == nil {
		logger = applogger.NewNop()
	}
	r := &Reliability{
		name:    name,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
	}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripAfter
		},
		// client errors say nothing about the integration's health
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			svcmetrics.BreakerState.WithLabelValues(name).Set(float64(to))
			r.logger.Warn("integration breaker state changed",
				applogger.String("integration", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})
	return r
}

// Retryable reports whether err is worth another attempt: transport
// errors and 429/5xx responses are, client errors and cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// Do runs fn with a per-attempt timeout. The returned error is the last
// attempt's error.
func (r *Reliability) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", r.name, err)
	}

	start := time.Now()
	var last error
	_, err := r.cb.Execute(func() (interface{}, error) {
		retryErr := retry.New(
			retry.Context(ctx),
			retry.Attempts(r.cfg.Attempts),
			retry.Delay(r.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(Retryable),
		).Do(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			last = fn(cctx)
			return last
		})
		if retryErr != nil && last != nil {
			return nil, last
		}
		return nil, retryErr
	})

	svcmetrics.IntegrationLatency.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	svcmetrics.IntegrationCalls.WithLabelValues(r.name, outcome).Inc()

	if err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	return nil
}
